// Package store persists the entity-facet-relation graph in PostgreSQL
// and enforces the write-time invariants: attribute and facet payload
// validation, hierarchy consistency, and relation cardinality.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row is not found.
	ErrNotFound = errors.New("record not found")

	// ErrStoreUnavailable is returned when the database cannot be
	// reached. Callers decide whether to retry; the engine never does.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUniqueViolation is returned when a unique constraint is violated.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated.
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCardinalityViolation is returned when a relation write would
	// exceed the relation type's declared cardinality.
	ErrCardinalityViolation = errors.New("relation cardinality violation")

	// ErrTypeMismatch is returned when a relation's endpoints do not
	// match the relation type's declared entity types.
	ErrTypeMismatch = errors.New("entity type does not match relation type")

	// ErrNotApplicable is returned when a facet type is attached to an
	// entity type it does not apply to.
	ErrNotApplicable = errors.New("facet type not applicable to entity type")

	// ErrHierarchyViolation is returned when a parent assignment breaks
	// the hierarchy invariants.
	ErrHierarchyViolation = errors.New("hierarchy violation")

	// ErrVerificationRevoked is returned when human_verified would be
	// flipped back to false. Verification is a one-directional audit point.
	ErrVerificationRevoked = errors.New("human verification cannot be revoked")

	// ErrEntityTypeInUse is returned when deleting an entity type that
	// entities still reference.
	ErrEntityTypeInUse = errors.New("entity type still referenced by entities")

	// ErrConfidenceOutOfRange is returned when a confidence score falls
	// outside [0, 1].
	ErrConfidenceOutOfRange = errors.New("confidence score must be within [0, 1]")
)

// ConvertDBError converts database-specific errors to store errors.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pgErr.Detail)
		}
		return err
	}

	// Anything the driver could not classify is treated as the store
	// being unreachable; the caller owns retry policy.
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable returns true if the error is ErrStoreUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
