// Package schema defines the metadata model for the entity-facet-relation
// graph: entity types, facet types, relation types, and the value schemas
// that constrain free-form attributes and facet payloads.
package schema

import (
	"github.com/google/uuid"
)

// FieldKind is the closed set of value kinds a declared field may take
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindNumber  FieldKind = "number"
	KindBoolean FieldKind = "boolean"
	KindDate    FieldKind = "date"
	KindEnum    FieldKind = "enum"
	KindObject  FieldKind = "object"
)

// FieldSpec declares the shape of one field inside a value schema.
// Enum fields carry their allowed values; object fields recurse.
type FieldSpec struct {
	Kind       FieldKind             `json:"kind"`
	Required   bool                  `json:"required,omitempty"`
	EnumValues []string              `json:"enum_values,omitempty"`
	Fields     map[string]*FieldSpec `json:"fields,omitempty"`
}

// ValueSchema maps field names to their declared specs. An empty schema
// permits no keys at all; a nil schema permits anything (legacy types
// created before schemas were enforced).
type ValueSchema map[string]*FieldSpec

// Cardinality constrains how many edges of a relation type may connect
// a given source or target entity.
type Cardinality string

const (
	OneToOne   Cardinality = "1:1"
	OneToMany  Cardinality = "1:n"
	ManyToOne  Cardinality = "n:1"
	ManyToMany Cardinality = "n:n"
)

// Valid reports whether c is one of the declared cardinalities.
func (c Cardinality) Valid() bool {
	switch c {
	case OneToOne, OneToMany, ManyToOne, ManyToMany:
		return true
	}
	return false
}

// SingleSource reports whether a target entity may have at most one
// incoming edge of this relation type.
func (c Cardinality) SingleSource() bool {
	return c == OneToOne || c == OneToMany
}

// SingleTarget reports whether a source entity may have at most one
// outgoing edge of this relation type.
func (c Cardinality) SingleTarget() bool {
	return c == OneToOne || c == ManyToOne
}

// AggregationMethod is a facet type's declared default aggregation.
type AggregationMethod string

const (
	AggCount   AggregationMethod = "count"
	AggLatest  AggregationMethod = "latest"
	AggAverage AggregationMethod = "average"
	AggSum     AggregationMethod = "sum"
)

// EntityType describes one node type in the graph (e.g. municipality,
// person). Hierarchical types form trees via Entity.ParentID.
type EntityType struct {
	ID              uuid.UUID   `json:"id"`
	Slug            string      `json:"slug"`
	Name            string      `json:"name"`
	IsHierarchical  bool        `json:"is_hierarchical"`
	LevelLabels     []string    `json:"level_labels,omitempty"`
	AttributeSchema ValueSchema `json:"attribute_schema,omitempty"`
}

// FacetType describes one property type attachable to entities of the
// listed entity types. ValueSchema constrains FacetValue payloads.
type FacetType struct {
	ID                    uuid.UUID         `json:"id"`
	Slug                  string            `json:"slug"`
	Name                  string            `json:"name"`
	ValueSchema           ValueSchema       `json:"value_schema,omitempty"`
	ApplicableEntityTypes []string          `json:"applicable_entity_types"`
	IsTimeBased           bool              `json:"is_time_based"`
	AggregationMethod     AggregationMethod `json:"aggregation_method,omitempty"`
}

// AppliesTo reports whether the facet type may be attached to entities
// of the given entity type slug.
func (ft *FacetType) AppliesTo(entityTypeSlug string) bool {
	for _, slug := range ft.ApplicableEntityTypes {
		if slug == entityTypeSlug {
			return true
		}
	}
	return false
}

// RelationType describes one directed edge type between two entity types.
type RelationType struct {
	ID               uuid.UUID   `json:"id"`
	Slug             string      `json:"slug"`
	Name             string      `json:"name"`
	NameInverse      string      `json:"name_inverse,omitempty"`
	SourceEntityType string      `json:"source_entity_type"`
	TargetEntityType string      `json:"target_entity_type"`
	Cardinality      Cardinality `json:"cardinality"`
	AttributeSchema  ValueSchema `json:"attribute_schema,omitempty"`
}
