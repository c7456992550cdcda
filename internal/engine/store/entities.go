package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadgraph/leadgraph/internal/engine/schema"
)

const entityColumns = `id, entity_type_id, name, name_normalized, slug, parent_id,
	hierarchy_path, hierarchy_level, attributes, location, latitude, longitude,
	is_active, created_at, updated_at`

// entityMutableFields are the columns the change tracker may patch.
var entityMutableFields = map[string]bool{
	"name":            true,
	"name_normalized": true,
	"slug":            true,
	"attributes":      true,
	"location":        true,
	"latitude":        true,
	"longitude":       true,
	"is_active":       true,
}

// CreateEntity inserts a new entity after validating its attributes
// against the entity type's schema and, when a parent is set, the
// hierarchy invariants.
func (s *Store) CreateEntity(ctx context.Context, et *schema.EntityType, e *Entity) error {
	if err := schema.ValidateValue(et.AttributeSchema, e.Attributes); err != nil {
		return err
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.EntityTypeID = et.ID
	if e.NameNormalized == "" {
		e.NameNormalized = NormalizeName(e.Name)
	}
	if e.Slug == "" {
		e.Slug = slugify(e.Name)
	}
	e.IsActive = true

	if e.ParentID != nil {
		if !et.IsHierarchical {
			return fmt.Errorf("%w: entity type %s is not hierarchical", ErrHierarchyViolation, et.Slug)
		}
		parent, err := s.GetEntity(ctx, *e.ParentID)
		if err != nil {
			return fmt.Errorf("parent lookup failed: %w", err)
		}
		if parent.EntityTypeID != et.ID {
			return fmt.Errorf("%w: parent has a different entity type", ErrHierarchyViolation)
		}
		e.HierarchyLevel = parent.HierarchyLevel + 1
		e.HierarchyPath = parent.HierarchyPath + "/" + e.Slug
	} else {
		e.HierarchyLevel = 0
		e.HierarchyPath = "/" + e.Slug
	}

	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (`+entityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		e.ID, e.EntityTypeID, e.Name, e.NameNormalized, e.Slug, e.ParentID,
		e.HierarchyPath, e.HierarchyLevel, e.Attributes, e.Location,
		e.Latitude, e.Longitude, e.IsActive, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return ConvertDBError(err)
	}

	s.logger.Debug("created entity",
		zap.String("id", e.ID.String()),
		zap.String("type", et.Slug))
	return nil
}

// GetEntity loads one entity by id.
func (s *Store) GetEntity(ctx context.Context, id uuid.UUID) (*Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	return scanEntity(row)
}

// SoftDeleteEntity deactivates an entity. Entities are never hard
// deleted while facets and relations reference them.
func (s *Store) SoftDeleteEntity(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE entities SET is_active = FALSE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return ConvertDBError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetEntityFields loads an entity as a field map, the representation
// the change tracker diffs and patches.
func (s *Store) GetEntityFields(ctx context.Context, q DBTX, id uuid.UUID) (map[string]interface{}, error) {
	row := q.QueryRowContext(ctx,
		`SELECT name, name_normalized, slug, attributes, location, latitude,
		        longitude, is_active
		 FROM entities WHERE id = $1`, id)

	var (
		name, nameNormalized, slug string
		attributes                 JSONMap
		location                   *string
		latitude, longitude        *float64
		isActive                   bool
	)
	if err := row.Scan(&name, &nameNormalized, &slug, &attributes,
		&location, &latitude, &longitude, &isActive); err != nil {
		return nil, ConvertDBError(err)
	}

	fields := map[string]interface{}{
		"name":            name,
		"name_normalized": nameNormalized,
		"slug":            slug,
		"attributes":      map[string]interface{}(attributes),
		"is_active":       isActive,
	}
	if location != nil {
		fields["location"] = *location
	}
	if latitude != nil {
		fields["latitude"] = *latitude
	}
	if longitude != nil {
		fields["longitude"] = *longitude
	}
	return fields, nil
}

// UpdateEntityFields patches the given columns. Runs on the caller's
// transaction so the patch and its change record commit together.
func (s *Store) UpdateEntityFields(ctx context.Context, q DBTX, id uuid.UUID, fields map[string]interface{}) error {
	return updateFields(ctx, q, "entities", entityMutableFields, id, fields)
}

// updateFields builds a column patch with deterministic ordering.
func updateFields(ctx context.Context, q DBTX, table string, mutable map[string]bool, id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if !mutable[name] {
			return fmt.Errorf("field %s is not updatable on %s", name, table)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names)+1)
	values := make([]interface{}, 0, len(names)+2)
	counter := 1
	for _, name := range names {
		value := fields[name]
		if m, ok := value.(map[string]interface{}); ok {
			value = JSONMap(m)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", name, counter))
		values = append(values, value)
		counter++
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", counter))
	values = append(values, time.Now().UTC())
	counter++
	values = append(values, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		table, strings.Join(sets, ", "), counter)

	result, err := q.ExecContext(ctx, query, values...)
	if err != nil {
		return ConvertDBError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	if err := row.Scan(&e.ID, &e.EntityTypeID, &e.Name, &e.NameNormalized,
		&e.Slug, &e.ParentID, &e.HierarchyPath, &e.HierarchyLevel,
		&e.Attributes, &e.Location, &e.Latitude, &e.Longitude,
		&e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, ConvertDBError(err)
	}
	return &e, nil
}

// NormalizeName lowercases and collapses whitespace for matching.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func slugify(name string) string {
	normalized := NormalizeName(name)
	var b strings.Builder
	for _, r := range normalized {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
