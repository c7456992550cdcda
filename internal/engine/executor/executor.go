package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/leadgraph/leadgraph/internal/engine/metadata"
	"github.com/leadgraph/leadgraph/internal/engine/query"
	"github.com/leadgraph/leadgraph/internal/engine/relation"
	"github.com/leadgraph/leadgraph/internal/engine/schema"
	"github.com/leadgraph/leadgraph/internal/engine/store"
)

// Querier is the query subset of database/sql the executor needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ChainResolver resolves relation chains to root-entity id sets.
// Implemented by relation.Resolver.
type ChainResolver interface {
	ResolveRelationChain(ctx context.Context, rootEntityType string, hops []relation.Hop) ([]uuid.UUID, error)
}

// Executor answers structured query descriptors.
type Executor struct {
	db       Querier
	cache    *metadata.SchemaCache
	compiler *query.Compiler
	resolver ChainResolver
	logger   *zap.Logger
}

// New creates an executor.
func New(db Querier, cache *metadata.SchemaCache, compiler *query.Compiler, resolver ChainResolver, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		db:       db,
		cache:    cache,
		compiler: compiler,
		resolver: resolver,
		logger:   logger,
	}
}

// Execute validates the descriptor, resolves the relation chain if one
// is present, applies the compiled predicate conjunctively, and runs
// the query. Validation failures surface before any store access;
// store failures propagate unretried.
func (e *Executor) Execute(ctx context.Context, desc *Descriptor) (*Result, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	rootType, err := e.cache.EntityType(ctx, desc.RootEntityType)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: unknown entity type %q", query.ErrInvalidFilter, desc.RootEntityType)
		}
		return nil, err
	}

	var agg *resolvedAggregate
	if desc.QueryType == QueryAggregate {
		agg, err = e.resolveAggregate(ctx, desc)
		if err != nil {
			return nil, err
		}
	}

	pred, err := e.compiler.Compile(ctx, desc.RootEntityType, desc.Filters)
	if err != nil {
		return nil, err
	}

	// Relation chain and root filters compose conjunctively: the chain
	// yields an id set and the predicate narrows it further.
	var chainIDs []uuid.UUID
	chained := len(desc.RelationChain) > 0
	if chained {
		chainIDs, err = e.resolver.ResolveRelationChain(ctx, desc.RootEntityType, desc.RelationChain)
		if err != nil {
			return nil, err
		}
		if len(chainIDs) == 0 {
			return emptyResult(desc), nil
		}
		e.logger.Debug("relation chain resolved",
			zap.String("root_entity_type", desc.RootEntityType),
			zap.Int("hops", len(desc.RelationChain)),
			zap.Int("matched", len(chainIDs)))
	}

	where, args, err := e.buildWhere(rootType, pred, chained, chainIDs)
	if err != nil {
		return nil, err
	}

	switch desc.QueryType {
	case QueryCount:
		count, err := e.count(ctx, where, args)
		if err != nil {
			return nil, err
		}
		return &Result{Count: count}, nil
	case QueryList:
		return e.list(ctx, desc, where, args)
	default:
		return e.aggregate(ctx, agg, where, args)
	}
}

// buildWhere assembles the WHERE clause shared by all query types:
// type scope, active flag, optional chain id set, optional predicate.
func (e *Executor) buildWhere(rootType *schema.EntityType, pred *query.Predicate, chained bool, chainIDs []uuid.UUID) (string, []interface{}, error) {
	var sb strings.Builder
	args := []interface{}{rootType.ID}
	counter := 2

	sb.WriteString("e.entity_type_id = $1 AND e.is_active")

	if chained {
		fmt.Fprintf(&sb, " AND e.id = ANY($%d::uuid[])", counter)
		ids := make([]string, len(chainIDs))
		for i, id := range chainIDs {
			ids[i] = id.String()
		}
		args = append(args, pq.Array(ids))
		counter++
	}

	fragment, err := pred.SQL(&counter, &args)
	if err != nil {
		return "", nil, err
	}
	if fragment != "" {
		sb.WriteString(" AND (" + fragment + ")")
	}

	return sb.String(), args, nil
}

func (e *Executor) count(ctx context.Context, where string, args []interface{}) (int, error) {
	var count int
	err := e.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entities e WHERE "+where, args...).Scan(&count)
	if err != nil {
		return 0, store.ConvertDBError(err)
	}
	return count, nil
}

const listColumns = `e.id, e.entity_type_id, e.name, e.name_normalized, e.slug,
	e.parent_id, e.hierarchy_path, e.hierarchy_level, e.attributes, e.location,
	e.latitude, e.longitude, e.is_active, e.created_at, e.updated_at`

// list returns one page plus the total over the fully filtered set.
// Ordering is stable: the requested sort (or creation time) with the
// entity id as tie-break, so identical inputs page identically.
func (e *Executor) list(ctx context.Context, desc *Descriptor, where string, args []interface{}) (*Result, error) {
	total, err := e.count(ctx, where, args)
	if err != nil {
		return nil, err
	}

	sortField := desc.SortField
	if sortField == "" {
		sortField = "created_at"
	}
	direction := "ASC"
	if desc.SortDesc {
		direction = "DESC"
	}

	offset := (desc.Page - 1) * desc.PerPage
	listArgs := append(append([]interface{}{}, args...), desc.PerPage, offset)
	listSQL := fmt.Sprintf(
		"SELECT %s FROM entities e WHERE %s ORDER BY e.%s %s, e.id ASC LIMIT $%d OFFSET $%d",
		listColumns, where, sortField, direction, len(args)+1, len(args)+2)

	rows, err := e.db.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	items := make([]*store.Entity, 0, desc.PerPage)
	for rows.Next() {
		var ent store.Entity
		if err := rows.Scan(&ent.ID, &ent.EntityTypeID, &ent.Name,
			&ent.NameNormalized, &ent.Slug, &ent.ParentID, &ent.HierarchyPath,
			&ent.HierarchyLevel, &ent.Attributes, &ent.Location,
			&ent.Latitude, &ent.Longitude, &ent.IsActive,
			&ent.CreatedAt, &ent.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &ent)
	}
	if err := rows.Err(); err != nil {
		return nil, store.ConvertDBError(err)
	}

	return &Result{
		Items:   items,
		Total:   total,
		Page:    desc.Page,
		PerPage: desc.PerPage,
	}, nil
}

// resolvedAggregate is an aggregate spec with metadata bound and the
// function defaulted from the facet type's declared method.
type resolvedAggregate struct {
	function   AggregateFunction
	facetType  *schema.FacetType
	valueField string
	groupBy    string
}

// resolveAggregate validates the aggregate spec against metadata,
// failing fast before any data rows are touched.
func (e *Executor) resolveAggregate(ctx context.Context, desc *Descriptor) (*resolvedAggregate, error) {
	spec := desc.Aggregate

	var ft *schema.FacetType
	if spec.FacetType != "" {
		var err error
		ft, err = e.cache.FacetType(ctx, spec.FacetType)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, fmt.Errorf("%w: unknown facet type %q", ErrInvalidAggregate, spec.FacetType)
			}
			return nil, err
		}
		if !ft.AppliesTo(desc.RootEntityType) {
			return nil, fmt.Errorf("%w: facet type %q does not apply to %q",
				ErrInvalidAggregate, spec.FacetType, desc.RootEntityType)
		}
	}

	fn := spec.Function
	if fn == "" {
		if ft == nil {
			fn = FuncCount
		} else {
			switch ft.AggregationMethod {
			case schema.AggCount, "":
				fn = FuncCount
			case schema.AggAverage:
				fn = FuncAvg
			case schema.AggSum:
				fn = FuncSum
			case schema.AggLatest:
				fn = FuncMax
			default:
				return nil, fmt.Errorf("%w: facet type %q declares unknown aggregation %q",
					ErrInvalidAggregate, ft.Slug, ft.AggregationMethod)
			}
		}
	}

	switch fn {
	case FuncCount:
	case FuncAvg, FuncSum, FuncMin, FuncMax:
		if ft == nil {
			return nil, fmt.Errorf("%w: %s requires a facet_type", ErrInvalidAggregate, fn)
		}
	default:
		return nil, fmt.Errorf("%w: unknown function %q", ErrInvalidAggregate, spec.Function)
	}

	if spec.GroupBy != "" {
		// Probe the group expression now so a bad field fails fast.
		var probeArgs []interface{}
		probeCounter := 1
		if _, err := groupExpr(spec.GroupBy, &probeArgs, &probeCounter); err != nil {
			return nil, err
		}
	}

	valueField := spec.ValueField
	if valueField == "" {
		valueField = "amount"
	}

	return &resolvedAggregate{
		function:   fn,
		facetType:  ft,
		valueField: valueField,
		groupBy:    spec.GroupBy,
	}, nil
}

// aggregate runs the resolved aggregate, grouped or scalar.
func (e *Executor) aggregate(ctx context.Context, agg *resolvedAggregate, where string, args []interface{}) (*Result, error) {
	counter := len(args) + 1
	aggArgs := append([]interface{}{}, args...)

	var aggExpr, from string
	if agg.function == FuncCount {
		aggExpr = "COUNT(*)"
		from = "entities e"
	} else {
		// The numeric field lives in the facet payload; join the facet
		// rows of the named type.
		aggArgs = append(aggArgs, agg.valueField)
		aggExpr = fmt.Sprintf("%s((fv.value ->> $%d)::numeric)", agg.function, counter)
		counter++
		aggArgs = append(aggArgs, agg.facetType.ID)
		from = fmt.Sprintf("entities e JOIN facet_values fv ON fv.entity_id = e.id AND fv.facet_type_id = $%d", counter)
		counter++
	}

	if agg.groupBy == "" {
		var value sql.NullFloat64
		err := e.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT %s FROM %s WHERE %s", aggExpr, from, where),
			aggArgs...).Scan(&value)
		if err != nil {
			return nil, store.ConvertDBError(err)
		}
		if !value.Valid {
			return &Result{Value: 0}, nil
		}
		return &Result{Value: value.Float64}, nil
	}

	expr, err := groupExpr(agg.groupBy, &aggArgs, &counter)
	if err != nil {
		return nil, err
	}

	groupSQL := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s GROUP BY 1 ORDER BY 1",
		expr, aggExpr, from, where)
	rows, err := e.db.QueryContext(ctx, groupSQL, aggArgs...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	groups := make(map[string]float64)
	for rows.Next() {
		var key string
		var value sql.NullFloat64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		if value.Valid {
			groups[key] = value.Float64
		} else {
			groups[key] = 0
		}
	}
	if err := rows.Err(); err != nil {
		return nil, store.ConvertDBError(err)
	}

	return &Result{Groups: groups}, nil
}

// emptyResult is the answer when the relation chain matched nothing:
// the final query is skipped entirely.
func emptyResult(desc *Descriptor) *Result {
	switch desc.QueryType {
	case QueryList:
		return &Result{
			Items:   []*store.Entity{},
			Total:   0,
			Page:    desc.Page,
			PerPage: desc.PerPage,
		}
	case QueryAggregate:
		if desc.Aggregate != nil && desc.Aggregate.GroupBy != "" {
			return &Result{Groups: map[string]float64{}}
		}
		return &Result{Value: 0}
	default:
		return &Result{Count: 0}
	}
}
