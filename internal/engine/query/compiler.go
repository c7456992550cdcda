package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadgraph/leadgraph/internal/engine/metadata"
	"github.com/leadgraph/leadgraph/internal/engine/store"
)

// ErrInvalidFilter is returned when a filter spec references unknown
// metadata or combines fields illegally. Raised before any store access
// beyond cache lookups.
var ErrInvalidFilter = errors.New("invalid filter")

// LogicalOp combines facet presence filters.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "AND"
	LogicalOr  LogicalOp = "OR"
)

// DateMode is the coarse time window used when no explicit range is
// given.
type DateMode string

const (
	DateAll        DateMode = "all"
	DateFutureOnly DateMode = "future_only"
	DatePastOnly   DateMode = "past_only"
)

// DateRange is an inclusive date window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FacetFilter requires the presence of one facet type, optionally with
// a confidence floor or verified-only restriction.
type FacetFilter struct {
	Slug          string   `json:"slug"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	VerifiedOnly  bool     `json:"verified_only,omitempty"`
}

// FilterSpec is the structured filter intent handed to the compiler,
// typically produced by an upstream interpretation component. The
// engine validates it regardless of origin.
type FilterSpec struct {
	GeographicFilter       []string      `json:"geographic_filter,omitempty"`
	NegativeLocationFilter []string      `json:"negative_location_filter,omitempty"`
	DateRange              *DateRange    `json:"date_range,omitempty"`
	DateMode               DateMode      `json:"date_mode,omitempty"`
	DateFacetType          string        `json:"date_facet_type,omitempty"`
	FacetFilters           []FacetFilter `json:"facet_types,omitempty"`
	LogicalOperator        LogicalOp     `json:"logical_operator,omitempty"`
	NegativeFacetTypes     []string      `json:"negative_facet_types,omitempty"`
}

// Predicate is the compiled, executable form of a FilterSpec. It is a
// value object: the executor renders it into the final statement.
type Predicate struct {
	root *Group
}

// Empty reports whether the predicate constrains nothing.
func (p *Predicate) Empty() bool {
	return p == nil || p.root.Empty()
}

// SQL renders the predicate as a WHERE fragment over entity alias `e`.
// Returns "" when the predicate is empty.
func (p *Predicate) SQL(paramCounter *int, args *[]interface{}) (string, error) {
	if p.Empty() {
		return "", nil
	}
	return p.root.SQL(paramCounter, args)
}

// Compiler translates filter specs into predicates, resolving facet
// type slugs through the schema cache.
type Compiler struct {
	cache *metadata.SchemaCache
	now   func() time.Time
}

// NewCompiler creates a predicate compiler.
func NewCompiler(cache *metadata.SchemaCache) *Compiler {
	return &Compiler{cache: cache, now: time.Now}
}

// WithClock overrides the compiler's clock. Used by tests to pin
// future_only / past_only boundaries.
func (c *Compiler) WithClock(now func() time.Time) *Compiler {
	c.now = now
	return c
}

// Compile validates the filter spec against the root entity type and builds
// an executable predicate. All slug validation happens here so
// execution never hits the store with an unknown type.
func (c *Compiler) Compile(ctx context.Context, rootEntityType string, spec *FilterSpec) (*Predicate, error) {
	root := NewGroup(false)
	if spec == nil {
		return &Predicate{root: root}, nil
	}

	if spec.LogicalOperator != "" && spec.LogicalOperator != LogicalAnd && spec.LogicalOperator != LogicalOr {
		return nil, fmt.Errorf("%w: unknown logical operator %q", ErrInvalidFilter, spec.LogicalOperator)
	}
	if spec.LogicalOperator != "" && len(spec.FacetFilters) == 0 {
		return nil, fmt.Errorf("%w: logical_operator given without facet_types", ErrInvalidFilter)
	}

	if len(spec.GeographicFilter) > 0 {
		root.Add(&FieldCond{
			Column:   "location",
			Operator: OpIn,
			Value:    toInterfaces(spec.GeographicFilter),
		})
	}

	if len(spec.NegativeLocationFilter) > 0 {
		root.Add(&NullOrNotInCond{
			Column: "location",
			Values: toInterfaces(spec.NegativeLocationFilter),
		})
	}

	if len(spec.FacetFilters) > 0 {
		group := NewGroup(spec.LogicalOperator == LogicalOr)
		for _, ff := range spec.FacetFilters {
			cond, err := c.facetCond(ctx, rootEntityType, ff.Slug, false)
			if err != nil {
				return nil, err
			}
			cond.MinConfidence = ff.MinConfidence
			cond.VerifiedOnly = ff.VerifiedOnly
			group.Add(cond)
		}
		root.AddGroup(group)
	}

	for _, slug := range spec.NegativeFacetTypes {
		cond, err := c.facetCond(ctx, rootEntityType, slug, true)
		if err != nil {
			return nil, err
		}
		root.Add(cond)
	}

	if err := c.compileDate(ctx, rootEntityType, spec, root); err != nil {
		return nil, err
	}

	return &Predicate{root: root}, nil
}

// facetCond resolves a facet type slug and checks applicability.
func (c *Compiler) facetCond(ctx context.Context, rootEntityType, slug string, negate bool) (*FacetCond, error) {
	ft, err := c.cache.FacetType(ctx, slug)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: unknown facet type %q", ErrInvalidFilter, slug)
		}
		return nil, err
	}
	if !ft.AppliesTo(rootEntityType) {
		return nil, fmt.Errorf("%w: facet type %q does not apply to %q",
			ErrInvalidFilter, slug, rootEntityType)
	}
	return &FacetCond{FacetTypeID: ft.ID, Negate: negate}, nil
}

// compileDate adds the date window. An explicit range binds to the
// designated date facet's event_date, or to the entity creation time
// when no date facet is named. Without a range, DateMode applies a
// half-open window relative to now.
func (c *Compiler) compileDate(ctx context.Context, rootEntityType string, spec *FilterSpec, root *Group) error {
	if spec.DateRange != nil {
		if spec.DateRange.End.Before(spec.DateRange.Start) {
			return fmt.Errorf("%w: date range end precedes start", ErrInvalidFilter)
		}
		if spec.DateFacetType != "" {
			cond, err := c.facetCond(ctx, rootEntityType, spec.DateFacetType, false)
			if err != nil {
				return err
			}
			cond.EventFrom = &spec.DateRange.Start
			cond.EventTo = &spec.DateRange.End
			root.Add(cond)
			return nil
		}
		root.Add(&FieldCond{
			Column:   "created_at",
			Operator: OpBetween,
			Value:    []interface{}{spec.DateRange.Start, spec.DateRange.End},
		})
		return nil
	}

	switch spec.DateMode {
	case "", DateAll:
		return nil
	case DateFutureOnly, DatePastOnly:
		op := OpGreaterThanOrEqual
		if spec.DateMode == DatePastOnly {
			op = OpLessThanOrEqual
		}
		now := c.now().UTC()
		if spec.DateFacetType != "" {
			cond, err := c.facetCond(ctx, rootEntityType, spec.DateFacetType, false)
			if err != nil {
				return err
			}
			if spec.DateMode == DateFutureOnly {
				cond.EventFrom = &now
			} else {
				cond.EventTo = &now
			}
			root.Add(cond)
			return nil
		}
		root.Add(&FieldCond{Column: "created_at", Operator: op, Value: now})
		return nil
	default:
		return fmt.Errorf("%w: unknown date mode %q", ErrInvalidFilter, spec.DateMode)
	}
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
