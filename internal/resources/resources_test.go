package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanocld/internal/events"
	"nanocld/internal/models"
	"nanocld/internal/resourcekinds"
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
	m := New(gw, specs.New(gw), resourcekinds.New(gw), bus)
	return m, mock, cancel
}

func TestResolveKindRejectsMalformed(t *testing.T) {
	m, _, cancel := newTestManager(t)
	defer cancel()
	_, err := m.resolveKind(context.Background(), "no-slash")
	require.Error(t, err)
}

func TestValidateWithInlineSchemaRejectsMismatch(t *testing.T) {
	m, _, cancel := newTestManager(t)
	defer cancel()

	version := models.ResourceKindVersion{
		Version: "v1",
		Data:    models.ResourceKindVersionData{Schema: json.RawMessage(`{"type":"object","required":["Username"]}`)},
	}
	_, err := m.validate(context.Background(), version, json.RawMessage(`{}`))
	require.Error(t, err)

	_, err = m.validate(context.Background(), version, json.RawMessage(`{"Username":"a"}`))
	require.NoError(t, err)
}

func TestValidateDelegatesToControllerURL(t *testing.T) {
	m, _, cancel := newTestManager(t)
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"normalized":true}`))
	}))
	defer srv.Close()

	version := models.ResourceKindVersion{Version: "v1", Data: models.ResourceKindVersionData{URL: srv.URL}}
	normalized, err := m.validate(context.Background(), version, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"normalized":true}`, string(normalized))
}

func TestValidateReturnsControllerRejectionMessage(t *testing.T) {
	m, _, cancel := newTestManager(t)
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"msg":"target cargo not found"}`))
	}))
	defer srv.Close()

	version := models.ResourceKindVersion{Version: "v1", Data: models.ResourceKindVersionData{URL: srv.URL}}
	_, err := m.validate(context.Background(), version, json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target cargo not found")
}

func TestCreateObjWritesSpecAndResource(t *testing.T) {
	m, mock, cancel := newTestManager(t)
	defer cancel()

	mock.ExpectQuery("SELECT \\* FROM resource_kind_versions").
		WillReturnRows(sqlmock.NewRows([]string{"name", "version", "created_at", "schema", "url"}).
			AddRow("test.io/user", "v1", time.Now(), []byte(`{}`), nil))
	mock.ExpectExec("INSERT INTO specs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO resources").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT \\* FROM resources").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "kind", "created_at", "spec_key"}).
			AddRow("u1", "test.io/user", time.Now(), "spec-1"))
	mock.ExpectQuery("SELECT \\* FROM specs").WithArgs("spec-1").
		WillReturnRows(sqlmock.NewRows([]string{"key", "created_at", "kind_name", "kind_key", "version", "data", "metadata"}).
			AddRow("spec-1", time.Now(), "Resource", "u1", "v1", []byte(`{}`), nil))

	_, err := m.CreateObj(context.Background(), models.ResourcePartial{
		Name: "u1",
		Kind: "test.io/user",
		Data: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
}
