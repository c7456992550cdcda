package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgraph/leadgraph/internal/engine/metadata"
	"github.com/leadgraph/leadgraph/internal/engine/schema"
	"github.com/leadgraph/leadgraph/internal/engine/store"
)

type fakeFetcher struct {
	facetTypes map[string]*schema.FacetType
}

func (f *fakeFetcher) FetchEntityType(ctx context.Context, slug string) (*schema.EntityType, error) {
	return nil, store.ErrNotFound
}

func (f *fakeFetcher) FetchFacetType(ctx context.Context, slug string) (*schema.FacetType, error) {
	if ft, ok := f.facetTypes[slug]; ok {
		return ft, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeFetcher) FetchRelationType(ctx context.Context, slug string) (*schema.RelationType, error) {
	return nil, store.ErrNotFound
}

var (
	painPointID = uuid.New()
	eventID     = uuid.New()
)

func newTestCompiler(t *testing.T) *Compiler {
	backend := metadata.NewMemoryBackend()
	t.Cleanup(func() { backend.Close() })

	fetcher := &fakeFetcher{facetTypes: map[string]*schema.FacetType{
		"pain_point": {
			ID:                    painPointID,
			Slug:                  "pain_point",
			ApplicableEntityTypes: []string{"municipality"},
		},
		"council_meeting": {
			ID:                    eventID,
			Slug:                  "council_meeting",
			ApplicableEntityTypes: []string{"municipality"},
			IsTimeBased:           true,
		},
	}}

	cache := metadata.NewSchemaCache(backend, fetcher, time.Minute)
	return NewCompiler(cache)
}

func compileSQL(t *testing.T, c *Compiler, spec *FilterSpec) (string, []interface{}) {
	t.Helper()
	pred, err := c.Compile(context.Background(), "municipality", spec)
	require.NoError(t, err)

	counter := 1
	var args []interface{}
	sql, err := pred.SQL(&counter, &args)
	require.NoError(t, err)
	return sql, args
}

func TestCompile_NilSpecIsEmptyPredicate(t *testing.T) {
	c := newTestCompiler(t)
	pred, err := c.Compile(context.Background(), "municipality", nil)
	require.NoError(t, err)
	assert.True(t, pred.Empty())
}

func TestCompile_GeographicFilter(t *testing.T) {
	c := newTestCompiler(t)
	sql, args := compileSQL(t, c, &FilterSpec{GeographicFilter: []string{"DE", "AT"}})
	assert.Equal(t, "e.location IN ($1, $2)", sql)
	assert.Equal(t, []interface{}{"DE", "AT"}, args)
}

func TestCompile_NegativeLocationKeepsNulls(t *testing.T) {
	c := newTestCompiler(t)
	sql, _ := compileSQL(t, c, &FilterSpec{NegativeLocationFilter: []string{"CH"}})
	assert.Contains(t, sql, "e.location IS NULL OR e.location NOT IN")
}

func TestCompile_FacetFiltersAnd(t *testing.T) {
	c := newTestCompiler(t)
	minConf := 0.7
	sql, args := compileSQL(t, c, &FilterSpec{
		FacetFilters: []FacetFilter{
			{Slug: "pain_point", MinConfidence: &minConf},
			{Slug: "council_meeting"},
		},
		LogicalOperator: LogicalAnd,
	})
	assert.Contains(t, sql, ") AND EXISTS (")
	assert.Contains(t, sql, "fv.confidence_score >= $2")
	assert.Equal(t, []interface{}{painPointID, minConf, eventID}, args)
}

func TestCompile_FacetFiltersOr(t *testing.T) {
	c := newTestCompiler(t)
	sql, _ := compileSQL(t, c, &FilterSpec{
		FacetFilters: []FacetFilter{
			{Slug: "pain_point"},
			{Slug: "council_meeting"},
		},
		LogicalOperator: LogicalOr,
	})
	assert.Contains(t, sql, ") OR EXISTS (")
}

func TestCompile_NegativeFacetTypesUseNotExists(t *testing.T) {
	c := newTestCompiler(t)
	sql, args := compileSQL(t, c, &FilterSpec{NegativeFacetTypes: []string{"pain_point"}})
	assert.Contains(t, sql, "NOT EXISTS")
	assert.Equal(t, []interface{}{painPointID}, args)
}

func TestCompile_UnknownFacetSlug(t *testing.T) {
	c := newTestCompiler(t)
	_, err := c.Compile(context.Background(), "municipality", &FilterSpec{
		NegativeFacetTypes: []string{"no_such_facet"},
	})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestCompile_FacetNotApplicableToRootType(t *testing.T) {
	c := newTestCompiler(t)
	_, err := c.Compile(context.Background(), "person", &FilterSpec{
		FacetFilters:    []FacetFilter{{Slug: "pain_point"}},
		LogicalOperator: LogicalAnd,
	})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestCompile_LogicalOperatorWithoutFacets(t *testing.T) {
	c := newTestCompiler(t)
	_, err := c.Compile(context.Background(), "municipality", &FilterSpec{
		LogicalOperator: LogicalOr,
	})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestCompile_UnknownLogicalOperator(t *testing.T) {
	c := newTestCompiler(t)
	_, err := c.Compile(context.Background(), "municipality", &FilterSpec{
		FacetFilters:    []FacetFilter{{Slug: "pain_point"}},
		LogicalOperator: "XOR",
	})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestCompile_DateRangeOnDateFacet(t *testing.T) {
	c := newTestCompiler(t)
	sql, _ := compileSQL(t, c, &FilterSpec{
		DateRange: &DateRange{
			Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		},
		DateFacetType: "council_meeting",
	})
	assert.Contains(t, sql, "fv.event_date >= $2")
	assert.Contains(t, sql, "fv.event_date <= $3")
}

func TestCompile_DateRangeWithoutFacetUsesCreatedAt(t *testing.T) {
	c := newTestCompiler(t)
	sql, _ := compileSQL(t, c, &FilterSpec{
		DateRange: &DateRange{
			Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		},
	})
	assert.Contains(t, sql, "e.created_at BETWEEN $1 AND $2")
}

func TestCompile_InvertedDateRange(t *testing.T) {
	c := newTestCompiler(t)
	_, err := c.Compile(context.Background(), "municipality", &FilterSpec{
		DateRange: &DateRange{
			Start: time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestCompile_DateModeRelativeToClock(t *testing.T) {
	pinned := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c := newTestCompiler(t).WithClock(func() time.Time { return pinned })

	sql, args := compileSQL(t, c, &FilterSpec{DateMode: DateFutureOnly})
	assert.Equal(t, "e.created_at >= $1", sql)
	assert.Equal(t, []interface{}{pinned}, args)

	sql, _ = compileSQL(t, c, &FilterSpec{DateMode: DatePastOnly, DateFacetType: "council_meeting"})
	assert.Contains(t, sql, "fv.event_date <= $2")
}

func TestCompile_UnknownDateMode(t *testing.T) {
	c := newTestCompiler(t)
	_, err := c.Compile(context.Background(), "municipality", &FilterSpec{DateMode: "someday"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestCompile_IsPureBesidesCacheLookups(t *testing.T) {
	// Compiling twice with the same spec yields identical SQL and args.
	c := newTestCompiler(t)
	spec := &FilterSpec{
		GeographicFilter:   []string{"DE"},
		NegativeFacetTypes: []string{"pain_point"},
	}
	sql1, args1 := compileSQL(t, c, spec)
	sql2, args2 := compileSQL(t, c, spec)
	assert.Equal(t, sql1, sql2)
	assert.Equal(t, args1, args2)
}
