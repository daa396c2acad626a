package specs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanocld/internal/store"
)

func TestTableColumnsIncludeKindKeyAndData(t *testing.T) {
	cols := Table{}.Columns()
	assert.Contains(t, cols, "kind_key")
	assert.Contains(t, cols, "data")
	assert.Equal(t, "specs", Table{}.TableName())
	assert.Equal(t, "key", Table{}.PrimaryKeyColumn())
}

func newMockRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	gw, err := store.OpenWithDB(db)
	require.NoError(t, err)
	return New(gw), mock
}

func TestWriteInsertsNewRow(t *testing.T) {
	r, mock := newMockRegistry(t)
	mock.ExpectExec("INSERT INTO specs").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Cargo", "global.web", "v0.1", []byte(`{"Name":"web"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s, err := r.Write(context.Background(), "Cargo", "global.web", "v0.1", []byte(`{"Name":"web"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "global.web", s.KindKey)
	assert.NotEmpty(t, s.Key)
}

func TestLatestOrdersByCreatedAtDesc(t *testing.T) {
	r, mock := newMockRegistry(t)
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM specs WHERE kind_key = \\$1 ORDER BY created_at DESC LIMIT 1 OFFSET 0").
		WithArgs("global.web").
		WillReturnRows(sqlmock.NewRows([]string{"key", "created_at", "kind_name", "kind_key", "version", "data", "metadata"}).
			AddRow("spec-2", now, "Cargo", "global.web", "v0.2", []byte(`{}`), nil))

	s, err := r.Latest(context.Background(), "global.web")
	require.NoError(t, err)
	assert.Equal(t, "spec-2", s.Key)
}

func TestRevertRejectsSpecFromAnotherOwner(t *testing.T) {
	r, mock := newMockRegistry(t)
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM specs WHERE key = \\$1").
		WithArgs("spec-1").
		WillReturnRows(sqlmock.NewRows([]string{"key", "created_at", "kind_name", "kind_key", "version", "data", "metadata"}).
			AddRow("spec-1", now, "Cargo", "global.other", "v0.1", []byte(`{}`), nil))

	_, err := r.Revert(context.Background(), "global.web", "spec-1")
	require.Error(t, err)
}

func TestRevertWritesNewRowCopyingOld(t *testing.T) {
	r, mock := newMockRegistry(t)
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM specs WHERE key = \\$1").
		WithArgs("spec-1").
		WillReturnRows(sqlmock.NewRows([]string{"key", "created_at", "kind_name", "kind_key", "version", "data", "metadata"}).
			AddRow("spec-1", now, "Cargo", "global.web", "v0.1", []byte(`{"Name":"web"}`), nil))
	mock.ExpectExec("INSERT INTO specs").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Cargo", "global.web", "v0.1", []byte(`{"Name":"web"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s, err := r.Revert(context.Background(), "global.web", "spec-1")
	require.NoError(t, err)
	assert.NotEqual(t, "spec-1", s.Key)
	assert.Equal(t, "global.web", s.KindKey)
}

func TestDeleteAllForCascades(t *testing.T) {
	r, mock := newMockRegistry(t)
	mock.ExpectExec("DELETE FROM specs WHERE kind_key = \\$1").
		WithArgs("global.web").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := r.DeleteAllFor(context.Background(), "global.web")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
