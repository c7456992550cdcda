package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/leadgraph/leadgraph/internal/engine/schema"
)

// FetchEntityType loads an entity type definition by slug.
// Implements metadata.Fetcher.
func (s *Store) FetchEntityType(ctx context.Context, slug string) (*schema.EntityType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, is_hierarchical, level_labels, attribute_schema
		 FROM entity_types WHERE slug = $1`, slug)

	var et schema.EntityType
	var rawSchema []byte
	if err := row.Scan(&et.ID, &et.Slug, &et.Name, &et.IsHierarchical,
		pq.Array(&et.LevelLabels), &rawSchema); err != nil {
		return nil, ConvertDBError(err)
	}
	if err := unmarshalValueSchema(rawSchema, &et.AttributeSchema); err != nil {
		return nil, fmt.Errorf("entity type %s: %w", slug, err)
	}
	return &et, nil
}

// FetchFacetType loads a facet type definition by slug.
func (s *Store) FetchFacetType(ctx context.Context, slug string) (*schema.FacetType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, value_schema, applicable_entity_types,
		        is_time_based, aggregation_method
		 FROM facet_types WHERE slug = $1`, slug)

	var ft schema.FacetType
	var rawSchema []byte
	if err := row.Scan(&ft.ID, &ft.Slug, &ft.Name, &rawSchema,
		pq.Array(&ft.ApplicableEntityTypes), &ft.IsTimeBased,
		&ft.AggregationMethod); err != nil {
		return nil, ConvertDBError(err)
	}
	if err := unmarshalValueSchema(rawSchema, &ft.ValueSchema); err != nil {
		return nil, fmt.Errorf("facet type %s: %w", slug, err)
	}
	return &ft, nil
}

// FetchRelationType loads a relation type definition by slug.
func (s *Store) FetchRelationType(ctx context.Context, slug string) (*schema.RelationType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, name_inverse, source_entity_type,
		        target_entity_type, cardinality, attribute_schema
		 FROM relation_types WHERE slug = $1`, slug)

	var rt schema.RelationType
	var rawSchema []byte
	if err := row.Scan(&rt.ID, &rt.Slug, &rt.Name, &rt.NameInverse,
		&rt.SourceEntityType, &rt.TargetEntityType, &rt.Cardinality,
		&rawSchema); err != nil {
		return nil, ConvertDBError(err)
	}
	if err := unmarshalValueSchema(rawSchema, &rt.AttributeSchema); err != nil {
		return nil, fmt.Errorf("relation type %s: %w", slug, err)
	}
	return &rt, nil
}

// DeleteEntityType removes an entity type definition. Forbidden while
// any entity still references it.
func (s *Store) DeleteEntityType(ctx context.Context, slug string) error {
	et, err := s.FetchEntityType(ctx, slug)
	if err != nil {
		return err
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE entity_type_id = $1`, et.ID).Scan(&count)
	if err != nil {
		return ConvertDBError(err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s has %d entities", ErrEntityTypeInUse, slug, count)
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM entity_types WHERE id = $1`, et.ID)
	if err != nil {
		return ConvertDBError(err)
	}
	s.logger.Info("deleted entity type", zap.String("slug", slug))
	return nil
}

func unmarshalValueSchema(raw []byte, out *schema.ValueSchema) error {
	if len(raw) == 0 {
		*out = nil
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid value schema: %w", err)
	}
	return nil
}
