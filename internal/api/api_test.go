package api

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanocld/internal/events"
	"nanocld/internal/middleware"
	"nanocld/internal/models"
	"nanocld/internal/secrets"
	"nanocld/internal/store"
)

func zeroTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// newTestSecretsServer wires only the Secret Object Manager, the one
// Object Manager with no Docker dependency, onto a minimal router —
// enough to exercise the HTTP layer's request/response plumbing without
// a live daemon, mirroring the rest of the package's sqlmock convention.
func newTestSecretsServer(t *testing.T) (*gin.Engine, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gw, err := store.OpenWithDB(db)
	require.NoError(t, err)

	bus := events.New(gw, "node-1")
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx)

	s := &Server{Secrets: secrets.New(gw, bus)}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(zeroTestLogger()))
	versioned := r.Group("/:v")
	versioned.Use(middleware.VersionGate(Version))
	s.registerSecretRoutes(versioned)
	return r, mock, cancel
}

func TestCreateSecretReturns201(t *testing.T) {
	r, mock, cancel := newTestSecretsServer(t)
	defer cancel()

	mock.ExpectExec("INSERT INTO secrets").WithArgs("s1", models.SecretKindEnv, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT \\* FROM secrets").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"key", "kind", "data", "created_at", "metadata"}).
			AddRow("s1", models.SecretKindEnv, []byte(`["K=1"]`), time.Now(), nil))

	w := httptest.NewRecorder()
	body := `{"Key":"s1","Kind":"nanocl.io/env","Data":["K=1"]}`
	req := httptest.NewRequest(http.MethodPost, "/v0.13/secrets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"Key":"s1"`)
}

func TestCreateSecretRejectsUnknownField(t *testing.T) {
	r, _, cancel := newTestSecretsServer(t)
	defer cancel()

	w := httptest.NewRecorder()
	body := `{"Key":"s1","Kind":"nanocl.io/env","Data":["K=1"],"Bogus":true}`
	req := httptest.NewRequest(http.MethodPost, "/v0.13/secrets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "msg")
}

func TestInspectSecretReturns404WhenMissing(t *testing.T) {
	r, mock, cancel := newTestSecretsServer(t)
	defer cancel()

	mock.ExpectQuery("SELECT \\* FROM secrets").WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v0.13/secrets/missing/inspect", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVersionGateBlocksNewerVersionOnSecretRoutes(t *testing.T) {
	r, _, cancel := newTestSecretsServer(t)
	defer cancel()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v99.0/secrets", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
