package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadgraph/leadgraph/internal/engine/schema"
)

// CreateRelation inserts an edge after validating its endpoints against
// the relation type and enforcing the declared cardinality. With
// replace set, a conflicting edge of the same relation type is deleted
// in the same transaction instead of failing.
func (s *Store) CreateRelation(ctx context.Context, rt *schema.RelationType, sourceTypeSlug, targetTypeSlug string, rel *EntityRelation, replace bool) error {
	if sourceTypeSlug != rt.SourceEntityType {
		return fmt.Errorf("%w: source is %s, relation %s expects %s",
			ErrTypeMismatch, sourceTypeSlug, rt.Slug, rt.SourceEntityType)
	}
	if targetTypeSlug != rt.TargetEntityType {
		return fmt.Errorf("%w: target is %s, relation %s expects %s",
			ErrTypeMismatch, targetTypeSlug, rt.Slug, rt.TargetEntityType)
	}
	if err := schema.ValidateValue(rt.AttributeSchema, rel.Attributes); err != nil {
		return err
	}
	if rel.ConfidenceScore < 0 || rel.ConfidenceScore > 1 {
		return fmt.Errorf("%w: got %v", ErrConfidenceOutOfRange, rel.ConfidenceScore)
	}

	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	rel.RelationTypeID = rt.ID
	rel.CreatedAt = time.Now().UTC()

	txm := NewTxManager(s.db)
	return txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		if rt.Cardinality.SingleTarget() {
			if err := s.enforceSingleEdge(ctx, tx, rt, "source_entity_id", rel.SourceEntityID, replace); err != nil {
				return err
			}
		}
		if rt.Cardinality.SingleSource() {
			if err := s.enforceSingleEdge(ctx, tx, rt, "target_entity_id", rel.TargetEntityID, replace); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO entity_relations
			 (id, relation_type_id, source_entity_id, target_entity_id,
			  attributes, confidence_score, human_verified, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rel.ID, rel.RelationTypeID, rel.SourceEntityID, rel.TargetEntityID,
			rel.Attributes, rel.ConfidenceScore, rel.HumanVerified, rel.CreatedAt)
		if err != nil {
			return ConvertDBError(err)
		}

		s.logger.Debug("created relation",
			zap.String("id", rel.ID.String()),
			zap.String("type", rt.Slug))
		return nil
	})
}

// enforceSingleEdge checks that at most one edge of the relation type
// leaves (or enters) the given entity. Existing edges are either a
// cardinality violation or, with replace, deleted.
func (s *Store) enforceSingleEdge(ctx context.Context, tx *sql.Tx, rt *schema.RelationType, column string, entityID uuid.UUID, replace bool) error {
	row := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM entity_relations
		             WHERE relation_type_id = $1 AND %s = $2`, column),
		rt.ID, entityID)

	var existingID uuid.UUID
	err := row.Scan(&existingID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return ConvertDBError(err)
	}

	if !replace {
		return fmt.Errorf("%w: %s already has an edge of type %s (cardinality %s)",
			ErrCardinalityViolation, entityID, rt.Slug, rt.Cardinality)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM entity_relations WHERE id = $1`, existingID)
	if err != nil {
		return ConvertDBError(err)
	}
	return nil
}

// DeleteRelation removes an edge.
func (s *Store) DeleteRelation(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM entity_relations WHERE id = $1`, id)
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
