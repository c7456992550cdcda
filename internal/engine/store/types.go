package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Store methods that must join a caller's transaction take it explicitly.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// JSONMap is a JSONB column holding a free-form object.
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("cannot scan %T into JSONMap", src)
}

// Entity is a typed node in the graph.
type Entity struct {
	ID             uuid.UUID
	EntityTypeID   uuid.UUID
	Name           string
	NameNormalized string
	Slug           string
	ParentID       *uuid.UUID
	HierarchyPath  string
	HierarchyLevel int
	Attributes     JSONMap
	Location       *string
	Latitude       *float64
	Longitude      *float64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FacetValue is a schema-validated property attached to an entity.
type FacetValue struct {
	ID                 uuid.UUID
	EntityID           uuid.UUID
	FacetTypeID        uuid.UUID
	Value              JSONMap
	TextRepresentation string
	ConfidenceScore    float64
	HumanVerified      bool
	SourceDocumentID   *uuid.UUID
	SourceURL          *string
	EventDate          *time.Time
	ValidFrom          *time.Time
	ValidUntil         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EntityRelation is a typed, directed edge between two entities.
type EntityRelation struct {
	ID              uuid.UUID
	RelationTypeID  uuid.UUID
	SourceEntityID  uuid.UUID
	TargetEntityID  uuid.UUID
	Attributes      JSONMap
	ConfidenceScore float64
	HumanVerified   bool
	CreatedAt       time.Time
}
