package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadgraph/leadgraph/internal/engine/schema"
)

const facetColumns = `id, entity_id, facet_type_id, value, text_representation,
	confidence_score, human_verified, source_document_id, source_url,
	event_date, valid_from, valid_until, created_at, updated_at`

var facetMutableFields = map[string]bool{
	"value":               true,
	"text_representation": true,
	"confidence_score":    true,
	"event_date":          true,
	"valid_from":          true,
	"valid_until":         true,
}

// CreateFacetValue inserts a facet value after checking that the facet
// type applies to the entity's type and the payload matches the
// declared value schema.
func (s *Store) CreateFacetValue(ctx context.Context, ft *schema.FacetType, entityTypeSlug string, fv *FacetValue) error {
	if !ft.AppliesTo(entityTypeSlug) {
		return fmt.Errorf("%w: %s on %s", ErrNotApplicable, ft.Slug, entityTypeSlug)
	}
	if err := schema.ValidateValue(ft.ValueSchema, fv.Value); err != nil {
		return err
	}
	if fv.ConfidenceScore < 0 || fv.ConfidenceScore > 1 {
		return fmt.Errorf("%w: got %v", ErrConfidenceOutOfRange, fv.ConfidenceScore)
	}

	if fv.ID == uuid.Nil {
		fv.ID = uuid.New()
	}
	fv.FacetTypeID = ft.ID
	now := time.Now().UTC()
	fv.CreatedAt = now
	fv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facet_values (`+facetColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		fv.ID, fv.EntityID, fv.FacetTypeID, fv.Value, fv.TextRepresentation,
		fv.ConfidenceScore, fv.HumanVerified, fv.SourceDocumentID, fv.SourceURL,
		fv.EventDate, fv.ValidFrom, fv.ValidUntil, fv.CreatedAt, fv.UpdatedAt)
	if err != nil {
		return ConvertDBError(err)
	}

	s.logger.Debug("created facet value",
		zap.String("id", fv.ID.String()),
		zap.String("facet_type", ft.Slug))
	return nil
}

// GetFacetValue loads one facet value by id.
func (s *Store) GetFacetValue(ctx context.Context, id uuid.UUID) (*FacetValue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+facetColumns+` FROM facet_values WHERE id = $1`, id)

	var fv FacetValue
	if err := row.Scan(&fv.ID, &fv.EntityID, &fv.FacetTypeID, &fv.Value,
		&fv.TextRepresentation, &fv.ConfidenceScore, &fv.HumanVerified,
		&fv.SourceDocumentID, &fv.SourceURL, &fv.EventDate,
		&fv.ValidFrom, &fv.ValidUntil, &fv.CreatedAt, &fv.UpdatedAt); err != nil {
		return nil, ConvertDBError(err)
	}
	return &fv, nil
}

// ListFacetValues returns an entity's facet values, newest first.
func (s *Store) ListFacetValues(ctx context.Context, entityID uuid.UUID) ([]*FacetValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+facetColumns+` FROM facet_values
		 WHERE entity_id = $1 ORDER BY created_at DESC, id DESC`, entityID)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var facets []*FacetValue
	for rows.Next() {
		var fv FacetValue
		if err := rows.Scan(&fv.ID, &fv.EntityID, &fv.FacetTypeID, &fv.Value,
			&fv.TextRepresentation, &fv.ConfidenceScore, &fv.HumanVerified,
			&fv.SourceDocumentID, &fv.SourceURL, &fv.EventDate,
			&fv.ValidFrom, &fv.ValidUntil, &fv.CreatedAt, &fv.UpdatedAt); err != nil {
			return nil, err
		}
		facets = append(facets, &fv)
	}
	if err := rows.Err(); err != nil {
		return nil, ConvertDBError(err)
	}
	return facets, nil
}

// DeleteFacetValue removes a facet value. Deletion is immediate; the
// prior value survives in the version log.
func (s *Store) DeleteFacetValue(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM facet_values WHERE id = $1`, id)
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

// VerifyFacetValue marks a facet value as human verified. The flag only
// ever moves false to true; revoking verification is rejected.
func (s *Store) VerifyFacetValue(ctx context.Context, id uuid.UUID, verified bool) error {
	if !verified {
		return ErrVerificationRevoked
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE facet_values SET human_verified = TRUE, updated_at = $2 WHERE id = $1`,
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

// GetFacetFields loads a facet value as a field map for the change
// tracker.
func (s *Store) GetFacetFields(ctx context.Context, q DBTX, id uuid.UUID) (map[string]interface{}, error) {
	row := q.QueryRowContext(ctx,
		`SELECT value, text_representation, confidence_score, event_date,
		        valid_from, valid_until
		 FROM facet_values WHERE id = $1`, id)

	var (
		value                           JSONMap
		textRepresentation              string
		confidence                      float64
		eventDate, validFrom, validThru *time.Time
	)
	if err := row.Scan(&value, &textRepresentation, &confidence,
		&eventDate, &validFrom, &validThru); err != nil {
		return nil, ConvertDBError(err)
	}

	fields := map[string]interface{}{
		"value":               map[string]interface{}(value),
		"text_representation": textRepresentation,
		"confidence_score":    confidence,
	}
	if eventDate != nil {
		fields["event_date"] = *eventDate
	}
	if validFrom != nil {
		fields["valid_from"] = *validFrom
	}
	if validThru != nil {
		fields["valid_until"] = *validThru
	}
	return fields, nil
}

// UpdateFacetFields patches the given columns on the caller's transaction.
func (s *Store) UpdateFacetFields(ctx context.Context, q DBTX, id uuid.UUID, fields map[string]interface{}) error {
	return updateFields(ctx, q, "facet_values", facetMutableFields, id, fields)
}
