// Package executor answers count, list and aggregate queries over the
// entity graph. It orchestrates the predicate compiler and the relation
// resolver and owns pagination, ordering and aggregate semantics.
package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leadgraph/leadgraph/internal/engine/query"
	"github.com/leadgraph/leadgraph/internal/engine/relation"
	"github.com/leadgraph/leadgraph/internal/engine/store"
)

var (
	// ErrInvalidDescriptor is returned when a query descriptor is
	// malformed. Raised before any store access.
	ErrInvalidDescriptor = errors.New("invalid query descriptor")

	// ErrInvalidAggregate is returned when an aggregate spec names an
	// unknown function or group field. Raised before any store access.
	ErrInvalidAggregate = errors.New("invalid aggregate spec")
)

// QueryType selects the executor's answer shape.
type QueryType string

const (
	QueryCount     QueryType = "count"
	QueryList      QueryType = "list"
	QueryAggregate QueryType = "aggregate"
)

// AggregateFunction is the enumerated set of aggregate operators.
type AggregateFunction string

const (
	FuncCount AggregateFunction = "COUNT"
	FuncAvg   AggregateFunction = "AVG"
	FuncSum   AggregateFunction = "SUM"
	FuncMin   AggregateFunction = "MIN"
	FuncMax   AggregateFunction = "MAX"
)

// AggregateSpec describes an aggregate query. Function may be left
// empty to inherit the facet type's declared aggregation method.
type AggregateSpec struct {
	Function AggregateFunction `json:"function,omitempty"`
	// FacetType names the facet carrying the aggregated value.
	// Required for every function except COUNT.
	FacetType string `json:"facet_type,omitempty"`
	// ValueField is the key inside the facet payload holding the
	// number. Defaults to "amount".
	ValueField string `json:"value_field,omitempty"`
	// GroupBy is "" for a scalar, "location", or "attributes.<key>".
	GroupBy string `json:"group_by,omitempty"`
}

// Descriptor is the structured query intent handed to the executor.
// It is validated here regardless of whether it came from the
// interpretation component or a direct API caller.
type Descriptor struct {
	QueryType      QueryType         `json:"query_type"`
	RootEntityType string            `json:"root_entity_type"`
	Filters        *query.FilterSpec `json:"filters,omitempty"`
	RelationChain  []relation.Hop    `json:"relation_chain,omitempty"`
	Aggregate      *AggregateSpec    `json:"aggregate,omitempty"`
	Page           int               `json:"page,omitempty"`
	PerPage        int               `json:"per_page,omitempty"`
	SortField      string            `json:"sort_field,omitempty"`
	SortDesc       bool              `json:"sort_desc,omitempty"`
}

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// sortableFields are the entity columns an explicit sort may use.
var sortableFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"location":   true,
}

// Validate normalizes pagination and rejects malformed descriptors.
func (d *Descriptor) Validate() error {
	switch d.QueryType {
	case QueryCount, QueryList, QueryAggregate:
	default:
		return fmt.Errorf("%w: unknown query type %q", ErrInvalidDescriptor, d.QueryType)
	}
	if d.RootEntityType == "" {
		return fmt.Errorf("%w: root_entity_type is required", ErrInvalidDescriptor)
	}
	if d.QueryType == QueryAggregate && d.Aggregate == nil {
		return fmt.Errorf("%w: aggregate query without aggregate spec", ErrInvalidDescriptor)
	}
	if d.QueryType != QueryAggregate && d.Aggregate != nil {
		return fmt.Errorf("%w: aggregate spec on a %s query", ErrInvalidDescriptor, d.QueryType)
	}
	if d.SortField != "" && !sortableFields[d.SortField] {
		return fmt.Errorf("%w: cannot sort by %q", ErrInvalidDescriptor, d.SortField)
	}

	if d.Page < 1 {
		d.Page = 1
	}
	if d.PerPage < 1 {
		d.PerPage = defaultPerPage
	}
	if d.PerPage > maxPerPage {
		d.PerPage = maxPerPage
	}
	return nil
}

// groupExpr translates an aggregate GroupBy into a SQL expression over
// the entity alias, or fails with ErrInvalidAggregate.
func groupExpr(groupBy string, args *[]interface{}, counter *int) (string, error) {
	if groupBy == "location" {
		return "COALESCE(e.location, '')", nil
	}
	if key, ok := strings.CutPrefix(groupBy, "attributes."); ok && key != "" {
		*args = append(*args, key)
		expr := fmt.Sprintf("COALESCE(e.attributes ->> $%d, '')", *counter)
		*counter++
		return expr, nil
	}
	return "", fmt.Errorf("%w: cannot group by %q", ErrInvalidAggregate, groupBy)
}

// Result is the executor's answer. Exactly one of the sections is
// populated, matching the descriptor's query type.
type Result struct {
	// Count is set for count queries.
	Count int `json:"count,omitempty"`

	// Items, Total, Page and PerPage are set for list queries.
	Items   []*store.Entity `json:"items,omitempty"`
	Total   int             `json:"total,omitempty"`
	Page    int             `json:"page,omitempty"`
	PerPage int             `json:"per_page,omitempty"`

	// Value or Groups is set for aggregate queries.
	Value  float64            `json:"result,omitempty"`
	Groups map[string]float64 `json:"groups,omitempty"`
}
