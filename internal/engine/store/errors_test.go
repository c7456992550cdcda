package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestConvertDBError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil passes through", nil, nil},
		{"no rows becomes not found", sql.ErrNoRows, ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", Detail: "duplicate slug"}, ErrUniqueViolation},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, ErrForeignKeyViolation},
		{"unclassified becomes unavailable", errors.New("connection refused"), ErrStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertDBError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestConvertDBError_OtherPgErrorsPassThrough(t *testing.T) {
	// A serialization failure is not a store outage; it keeps its code
	// so callers can see what happened.
	pgErr := &pgconn.PgError{Code: "40001"}
	got := ConvertDBError(pgErr)
	assert.NotErrorIs(t, got, ErrStoreUnavailable)
	var out *pgconn.PgError
	assert.ErrorAs(t, got, &out)
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsNotFound(ConvertDBError(sql.ErrNoRows)))
	assert.False(t, IsNotFound(ErrStoreUnavailable))
	assert.True(t, IsUnavailable(ConvertDBError(errors.New("dial tcp: refused"))))
	assert.False(t, IsUnavailable(ErrNotFound))
}
