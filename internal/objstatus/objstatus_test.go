package objstatus

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanocld/internal/models"
	"nanocld/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	gw, err := store.OpenWithDB(db)
	require.NoError(t, err)
	return New(gw), mock
}

func TestCreateInsertsBothWantedAndActual(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO obj_ps_statuses").
		WithArgs("global.web", models.StatusCreate, models.StatusCreate, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Create(context.Background(), "global.web", models.StatusCreate, models.StatusCreate)
	require.NoError(t, err)
}

func TestUpdateActualPreservesPrevActual(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key, wanted, prev_wanted, actual, prev_actual, updated_at").
		WithArgs("global.web").
		WillReturnRows(sqlmock.NewRows([]string{"key", "wanted", "prev_wanted", "actual", "prev_actual", "updated_at"}).
			AddRow("global.web", models.StatusStart, models.StatusCreate, models.StatusCreate, models.StatusCreate, now))
	mock.ExpectExec("UPDATE obj_ps_statuses").
		WithArgs(models.StatusStart, models.StatusCreate, models.StatusStart, models.StatusCreate, sqlmock.AnyArg(), "global.web").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateActual(context.Background(), "global.web", models.StatusStart)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateActualNoopWhenUnchanged(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key, wanted, prev_wanted, actual, prev_actual, updated_at").
		WithArgs("global.web").
		WillReturnRows(sqlmock.NewRows([]string{"key", "wanted", "prev_wanted", "actual", "prev_actual", "updated_at"}).
			AddRow("global.web", models.StatusStart, models.StatusCreate, models.StatusStart, models.StatusCreate, now))
	mock.ExpectCommit()

	err := s.UpdateActual(context.Background(), "global.web", models.StatusStart)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWantedPreservesPrevWanted(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key, wanted, prev_wanted, actual, prev_actual, updated_at").
		WithArgs("global.web").
		WillReturnRows(sqlmock.NewRows([]string{"key", "wanted", "prev_wanted", "actual", "prev_actual", "updated_at"}).
			AddRow("global.web", models.StatusStart, models.StatusCreate, models.StatusStart, models.StatusCreate, now))
	mock.ExpectExec("UPDATE obj_ps_statuses").
		WithArgs(models.StatusDestroy, models.StatusStart, models.StatusStart, models.StatusCreate, sqlmock.AnyArg(), "global.web").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateWanted(context.Background(), "global.web", models.StatusDestroy)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadByPKReturnsStatus(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM obj_ps_statuses WHERE key = \\$1").
		WithArgs("global.web").
		WillReturnRows(sqlmock.NewRows([]string{"key", "wanted", "prev_wanted", "actual", "prev_actual", "updated_at"}).
			AddRow("global.web", models.StatusStart, models.StatusCreate, models.StatusStart, models.StatusCreate, now))

	st, err := s.ReadByPK(context.Background(), "global.web")
	require.NoError(t, err)
	assert.Equal(t, models.StatusStart, st.Wanted)
	assert.Equal(t, models.StatusCreate, st.PrevWanted)
}
