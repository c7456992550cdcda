package relation

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/leadgraph/leadgraph/internal/engine/metadata"
	"github.com/leadgraph/leadgraph/internal/engine/schema"
	"github.com/leadgraph/leadgraph/internal/engine/store"
)

// Querier is the query subset of database/sql needed by the resolver.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Resolver turns relation chains into concrete id-set traversals.
type Resolver struct {
	db     Querier
	cache  *metadata.SchemaCache
	config Config
	logger *zap.Logger
}

// NewResolver creates a resolver with the given bounds.
func NewResolver(db Querier, cache *metadata.SchemaCache, config Config, logger *zap.Logger) *Resolver {
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultConfig().MaxDepth
	}
	if config.MaxFrontier <= 0 {
		config.MaxFrontier = DefaultConfig().MaxFrontier
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{db: db, cache: cache, config: config, logger: logger}
}

// ResolveRelationChain returns the ids of entities reachable from
// active entities of rootEntityType by following hops in order. An
// empty frontier at any hop short-circuits to an empty result.
func (r *Resolver) ResolveRelationChain(ctx context.Context, rootEntityType string, hops []Hop) ([]uuid.UUID, error) {
	rts, err := r.validateChain(ctx, rootEntityType, hops)
	if err != nil {
		return nil, err
	}

	rootType, err := r.cache.EntityType(ctx, rootEntityType)
	if err != nil {
		return nil, err
	}

	frontier, err := r.rootFrontier(ctx, rootType.ID)
	if err != nil {
		return nil, err
	}

	for i, hop := range hops {
		if len(frontier) == 0 {
			return nil, nil
		}
		if len(frontier) > r.config.MaxFrontier {
			return nil, fmt.Errorf("%w: %d ids before hop %d", ErrFrontierExceeded, len(frontier), i+1)
		}
		frontier, err = r.expandHop(ctx, rts[i], hop.Direction, hop.Filters, frontier, nil)
		if err != nil {
			return nil, err
		}
	}

	return frontier, nil
}

// ResolveEntitiesWithRelatedFacets returns root entities matching the
// chain whose chain-terminal entities carry at least one of the target
// facet types (if given) and none of the negative ones (if given).
//
// The facet check runs once against the final frontier, then a backward
// pass over the recorded frontiers recovers the qualifying roots. This
// avoids per-path enumeration on fan-out chains.
func (r *Resolver) ResolveEntitiesWithRelatedFacets(ctx context.Context, rootEntityType string, hops []Hop, targetFacetTypes, negativeFacetTypes []string) ([]uuid.UUID, error) {
	rts, err := r.validateChain(ctx, rootEntityType, hops)
	if err != nil {
		return nil, err
	}

	targetIDs, err := r.facetTypeIDs(ctx, targetFacetTypes)
	if err != nil {
		return nil, err
	}
	negativeIDs, err := r.facetTypeIDs(ctx, negativeFacetTypes)
	if err != nil {
		return nil, err
	}

	rootType, err := r.cache.EntityType(ctx, rootEntityType)
	if err != nil {
		return nil, err
	}

	// Forward pass, keeping every intermediate frontier for the walk back.
	frontiers := make([][]uuid.UUID, 0, len(hops)+1)
	frontier, err := r.rootFrontier(ctx, rootType.ID)
	if err != nil {
		return nil, err
	}
	frontiers = append(frontiers, frontier)

	for i, hop := range hops {
		if len(frontier) == 0 {
			return nil, nil
		}
		if len(frontier) > r.config.MaxFrontier {
			return nil, fmt.Errorf("%w: %d ids before hop %d", ErrFrontierExceeded, len(frontier), i+1)
		}
		frontier, err = r.expandHop(ctx, rts[i], hop.Direction, hop.Filters, frontier, nil)
		if err != nil {
			return nil, err
		}
		frontiers = append(frontiers, frontier)
	}

	terminal, err := r.filterByFacets(ctx, frontier, targetIDs, negativeIDs)
	if err != nil {
		return nil, err
	}

	// Walk back hop by hop, constraining each step to the forward
	// frontier recorded at that depth.
	current := terminal
	for i := len(hops) - 1; i >= 0; i-- {
		if len(current) == 0 {
			return nil, nil
		}
		current, err = r.expandHop(ctx, rts[i], hops[i].Direction.invert(), hops[i].Filters, current, frontiers[i])
		if err != nil {
			return nil, err
		}
	}

	return current, nil
}

// RelationPathDetails traces the frontier reached after each hop
// starting from a single entity. Used to explain why an entity
// matched; correctness does not depend on it.
func (r *Resolver) RelationPathDetails(ctx context.Context, entityID uuid.UUID, hops []Hop) ([]PathStep, error) {
	entityType, err := r.entityTypeSlug(ctx, entityID)
	if err != nil {
		return nil, err
	}
	rts, err := r.validateChain(ctx, entityType, hops)
	if err != nil {
		return nil, err
	}

	frontier := []uuid.UUID{entityID}
	steps := make([]PathStep, 0, len(hops))
	for i, hop := range hops {
		frontier, err = r.expandHop(ctx, rts[i], hop.Direction, hop.Filters, frontier, nil)
		if err != nil {
			return nil, err
		}
		name := rts[i].Name
		if hop.Direction == Incoming && rts[i].NameInverse != "" {
			name = rts[i].NameInverse
		}
		steps = append(steps, PathStep{
			RelationType: hop.RelationType,
			RelationName: name,
			Direction:    hop.Direction,
			EntityIDs:    frontier,
		})
		if len(frontier) == 0 {
			break
		}
	}
	return steps, nil
}

// validateChain checks depth, direction, relation type existence and
// type sequencing. No entity or edge rows are touched.
func (r *Resolver) validateChain(ctx context.Context, rootEntityType string, hops []Hop) ([]*schema.RelationType, error) {
	if len(hops) > r.config.MaxDepth {
		return nil, fmt.Errorf("%w: %d hops, maximum %d", ErrDepthExceeded, len(hops), r.config.MaxDepth)
	}

	current := rootEntityType
	rts := make([]*schema.RelationType, len(hops))
	for i, hop := range hops {
		if !hop.Direction.Valid() {
			return nil, fmt.Errorf("%w: %q in hop %d", ErrInvalidDirection, hop.Direction, i+1)
		}
		rt, err := r.cache.RelationType(ctx, hop.RelationType)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, fmt.Errorf("%w: %q in hop %d", ErrUnknownRelationType, hop.RelationType, i+1)
			}
			return nil, err
		}

		var from, to string
		if hop.Direction == Outgoing {
			from, to = rt.SourceEntityType, rt.TargetEntityType
		} else {
			from, to = rt.TargetEntityType, rt.SourceEntityType
		}
		if from != current {
			return nil, fmt.Errorf("%w: hop %d (%s, %s) starts at %s but chain is at %s",
				ErrTypeMismatch, i+1, rt.Slug, hop.Direction, from, current)
		}
		current = to
		rts[i] = rt
	}
	return rts, nil
}

// rootFrontier loads the active entities of the root type.
func (r *Resolver) rootFrontier(ctx context.Context, entityTypeID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM entities WHERE entity_type_id = $1 AND is_active`, entityTypeID)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// expandHop follows one hop's edges from the frontier. A non-nil
// restrictTo additionally bounds the reachable set; the backward pass
// uses it to stay inside the forward frontiers. Fan-in is always
// allowed: cardinality constrains writes, not traversal.
func (r *Resolver) expandHop(ctx context.Context, rt *schema.RelationType, direction Direction, filter *HopFilter, frontier []uuid.UUID, restrictTo []uuid.UUID) ([]uuid.UUID, error) {
	fromColumn, toColumn := "source_entity_id", "target_entity_id"
	if direction == Incoming {
		fromColumn, toColumn = toColumn, fromColumn
	}

	var sb strings.Builder
	args := []interface{}{rt.ID, pq.Array(idStrings(frontier))}
	counter := 3

	fmt.Fprintf(&sb, `SELECT DISTINCT r.%s FROM entity_relations r
		WHERE r.relation_type_id = $1 AND r.%s = ANY($2::uuid[])`, toColumn, fromColumn)

	if restrictTo != nil {
		fmt.Fprintf(&sb, " AND r.%s = ANY($%d::uuid[])", toColumn, counter)
		args = append(args, pq.Array(idStrings(restrictTo)))
		counter++
	}

	if filter != nil {
		if filter.MinConfidence != nil {
			fmt.Fprintf(&sb, " AND r.confidence_score >= $%d", counter)
			args = append(args, *filter.MinConfidence)
			counter++
		}
		if filter.VerifiedOnly {
			sb.WriteString(" AND r.human_verified")
		}
		for _, key := range sortedKeys(filter.Attributes) {
			fmt.Fprintf(&sb, " AND r.attributes ->> $%d = $%d", counter, counter+1)
			args = append(args, key, fmt.Sprintf("%v", filter.Attributes[key]))
			counter += 2
		}
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	next, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("expanded hop",
		zap.String("relation_type", rt.Slug),
		zap.String("direction", string(direction)),
		zap.Int("frontier_in", len(frontier)),
		zap.Int("frontier_out", len(next)))
	return next, nil
}

// filterByFacets keeps the terminal ids that carry at least one target
// facet (if any are given) and none of the negative ones.
func (r *Resolver) filterByFacets(ctx context.Context, terminal []uuid.UUID, targetIDs, negativeIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(terminal) == 0 || (len(targetIDs) == 0 && len(negativeIDs) == 0) {
		return terminal, nil
	}

	var sb strings.Builder
	args := []interface{}{pq.Array(idStrings(terminal))}
	counter := 2

	sb.WriteString(`SELECT e.id FROM entities e WHERE e.id = ANY($1::uuid[])`)
	if len(targetIDs) > 0 {
		fmt.Fprintf(&sb, ` AND EXISTS (SELECT 1 FROM facet_values fv
			WHERE fv.entity_id = e.id AND fv.facet_type_id = ANY($%d::uuid[]))`, counter)
		args = append(args, pq.Array(idStrings(targetIDs)))
		counter++
	}
	if len(negativeIDs) > 0 {
		fmt.Fprintf(&sb, ` AND NOT EXISTS (SELECT 1 FROM facet_values fv
			WHERE fv.entity_id = e.id AND fv.facet_type_id = ANY($%d::uuid[]))`, counter)
		args = append(args, pq.Array(idStrings(negativeIDs)))
		counter++
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// facetTypeIDs resolves facet type slugs through the cache.
func (r *Resolver) facetTypeIDs(ctx context.Context, slugs []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(slugs))
	for _, slug := range slugs {
		ft, err := r.cache.FacetType(ctx, slug)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, fmt.Errorf("%w: %q", ErrUnknownFacetType, slug)
			}
			return nil, err
		}
		ids = append(ids, ft.ID)
	}
	return ids, nil
}

// entityTypeSlug looks up the type slug of a single entity.
func (r *Resolver) entityTypeSlug(ctx context.Context, entityID uuid.UUID) (string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT et.slug FROM entities e
		 JOIN entity_types et ON et.id = e.entity_type_id
		 WHERE e.id = $1`, entityID)
	if err != nil {
		return "", store.ConvertDBError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", store.ConvertDBError(err)
		}
		return "", store.ErrNotFound
	}
	var slug string
	if err := rows.Scan(&slug); err != nil {
		return "", err
	}
	return slug, rows.Err()
}

func (d Direction) invert() Direction {
	if d == Outgoing {
		return Incoming
	}
	return Outgoing
}

func collectIDs(rows *sql.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, store.ConvertDBError(err)
	}
	return ids, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
