package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgraph/leadgraph/internal/engine/schema"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil), mock
}

func hierarchicalType() *schema.EntityType {
	return &schema.EntityType{
		ID:             uuid.New(),
		Slug:           "municipality",
		Name:           "Municipality",
		IsHierarchical: true,
	}
}

func entityRow(e *Entity) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "entity_type_id", "name", "name_normalized", "slug", "parent_id",
		"hierarchy_path", "hierarchy_level", "attributes", "location",
		"latitude", "longitude", "is_active", "created_at", "updated_at",
	}).AddRow(e.ID.String(), e.EntityTypeID.String(), e.Name, e.NameNormalized,
		e.Slug, nil, e.HierarchyPath, e.HierarchyLevel, []byte(`{}`),
		nil, nil, nil, e.IsActive, time.Now(), time.Now())
}

func TestCreateEntity_RootDerivesHierarchyAndSlug(t *testing.T) {
	s, mock := newTestStore(t)
	et := hierarchicalType()

	mock.ExpectExec(`INSERT INTO entities`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &Entity{Name: "Bad  Homburg"}
	require.NoError(t, s.CreateEntity(context.Background(), et, e))

	assert.Equal(t, "bad homburg", e.NameNormalized)
	assert.Equal(t, "bad-homburg", e.Slug)
	assert.Equal(t, 0, e.HierarchyLevel)
	assert.Equal(t, "/bad-homburg", e.HierarchyPath)
	assert.True(t, e.IsActive)
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntity_AttributeSchemaViolationSkipsStore(t *testing.T) {
	s, mock := newTestStore(t)
	et := hierarchicalType()
	et.AttributeSchema = schema.ValueSchema{
		"population": {Kind: schema.KindNumber, Required: true},
	}

	err := s.CreateEntity(context.Background(), et, &Entity{
		Name:       "Graz",
		Attributes: JSONMap{"population": "many"},
	})
	assert.ErrorIs(t, err, schema.ErrSchemaViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntity_ParentOnFlatTypeRejected(t *testing.T) {
	s, mock := newTestStore(t)
	et := hierarchicalType()
	et.IsHierarchical = false
	parentID := uuid.New()

	err := s.CreateEntity(context.Background(), et, &Entity{
		Name:     "District",
		ParentID: &parentID,
	})
	assert.ErrorIs(t, err, ErrHierarchyViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntity_ParentOfDifferentTypeRejected(t *testing.T) {
	s, mock := newTestStore(t)
	et := hierarchicalType()
	parentID := uuid.New()

	parent := &Entity{
		ID:           parentID,
		EntityTypeID: uuid.New(), // not et.ID
		Name:         "Hessen",
		IsActive:     true,
	}
	mock.ExpectQuery(`SELECT .+ FROM entities WHERE id`).
		WillReturnRows(entityRow(parent))

	err := s.CreateEntity(context.Background(), et, &Entity{
		Name:     "Frankfurt",
		ParentID: &parentID,
	})
	assert.ErrorIs(t, err, ErrHierarchyViolation)
}

func TestCreateEntity_ChildExtendsParentPath(t *testing.T) {
	s, mock := newTestStore(t)
	et := hierarchicalType()
	parentID := uuid.New()

	parent := &Entity{
		ID:             parentID,
		EntityTypeID:   et.ID,
		Name:           "Hessen",
		Slug:           "hessen",
		HierarchyPath:  "/hessen",
		HierarchyLevel: 0,
		IsActive:       true,
	}
	mock.ExpectQuery(`SELECT .+ FROM entities WHERE id`).
		WillReturnRows(entityRow(parent))
	mock.ExpectExec(`INSERT INTO entities`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &Entity{Name: "Frankfurt", ParentID: &parentID}
	require.NoError(t, s.CreateEntity(context.Background(), et, e))
	assert.Equal(t, 1, e.HierarchyLevel)
	assert.Equal(t, "/hessen/frankfurt", e.HierarchyPath)
}

func TestSoftDeleteEntity_MissingRow(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE entities SET is_active = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SoftDeleteEntity(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateEntityFields_RejectsImmutableColumn(t *testing.T) {
	s, mock := newTestStore(t)
	db := s.DB()

	err := s.UpdateEntityFields(context.Background(), db, uuid.New(),
		map[string]interface{}{"created_at": time.Now()})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEntityFields_DeterministicColumnOrder(t *testing.T) {
	s, mock := newTestStore(t)

	// Columns appear sorted regardless of map iteration order.
	mock.ExpectExec(`UPDATE entities SET location = \$1, name = \$2, updated_at = \$3 WHERE id = \$4`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateEntityFields(context.Background(), s.DB(), uuid.New(),
		map[string]interface{}{"name": "Graz", "location": "AT"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntityFields_NotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT name, name_normalized`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err := s.GetEntityFields(context.Background(), s.DB(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "bad homburg", NormalizeName("  Bad   HOMBURG "))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "bad-homburg", slugify("Bad Homburg"))
	assert.Equal(t, "st-poelten-2", slugify("St_Poelten 2!"))
}
