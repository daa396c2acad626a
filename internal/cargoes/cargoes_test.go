package cargoes

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanocld/internal/events"
	"nanocld/internal/models"
	"nanocld/internal/objstatus"
	"nanocld/internal/specs"
	"nanocld/internal/store"
)

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gw, err := store.OpenWithDB(db)
	require.NoError(t, err)

	bus := events.New(gw, "node-1")
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx)

	m := New(gw, specs.New(gw), objstatus.New(gw), bus)
	return m, mock, cancel
}

func TestValidateNameRejectsDot(t *testing.T) {
	err := validateName("my.cargo")
	require.Error(t, err)
}

func TestKeyJoinsNamespaceAndName(t *testing.T) {
	assert.Equal(t, "default.web", key("default", "web"))
}

func TestCreateObjInsertsSpecCargoAndStatus(t *testing.T) {
	m, mock, cancel := newTestManager(t)
	defer cancel()

	mock.ExpectExec("INSERT INTO specs").WithArgs(
		sqlmock.AnyArg(), sqlmock.AnyArg(), "Cargo", "default.web", "v0.1", sqlmock.AnyArg(), sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO cargoes").WithArgs(
		"default.web", "web", "default", sqlmock.AnyArg(), sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO obj_ps_statuses").WithArgs(
		"default.web", models.StatusCreate, models.StatusCreate, sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))

	cargo, err := m.CreateObj(context.Background(), "default", models.CargoSpecPartial{
		Name:      "web",
		Container: models.ContainerConfig{Image: "nginx"},
	})
	require.NoError(t, err)
	assert.Equal(t, "default.web", cargo.Key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateObjRejectsDottedName(t *testing.T) {
	m, _, cancel := newTestManager(t)
	defer cancel()

	_, err := m.CreateObj(context.Background(), "default", models.CargoSpecPartial{Name: "my.web"})
	require.Error(t, err)
}

func TestDelObjByPKTransitionsToDestroying(t *testing.T) {
	m, mock, cancel := newTestManager(t)
	defer cancel()

	mock.ExpectQuery("SELECT \\* FROM cargoes").
		WithArgs("default.web").
		WillReturnRows(sqlmock.NewRows([]string{"key", "name", "namespace_name", "created_at", "spec_key"}).
			AddRow("default.web", "web", "default", time.Now(), "spec-1"))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key, wanted, prev_wanted, actual, prev_actual, updated_at").
		WithArgs("default.web").
		WillReturnRows(sqlmock.NewRows([]string{"key", "wanted", "prev_wanted", "actual", "prev_actual", "updated_at"}).
			AddRow("default.web", models.StatusCreate, models.StatusCreate, models.StatusCreate, models.StatusCreate, time.Now()))
	mock.ExpectExec("UPDATE obj_ps_statuses").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT key, wanted, prev_wanted, actual, prev_actual, updated_at").
		WithArgs("default.web").
		WillReturnRows(sqlmock.NewRows([]string{"key", "wanted", "prev_wanted", "actual", "prev_actual", "updated_at"}).
			AddRow("default.web", models.StatusDestroy, models.StatusCreate, models.StatusCreate, models.StatusCreate, time.Now()))
	mock.ExpectExec("UPDATE obj_ps_statuses").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))

	err := m.DelObjByPK(context.Background(), "default.web")
	require.NoError(t, err)
}
