package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/:v/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"msg": "pong"}) })
	return r
}

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	r := newTestRouter(RequestID())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v0.1/ping", nil)
	r.ServeHTTP(w, req)
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDPreservesIncoming(t *testing.T) {
	r := newTestRouter(RequestID())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v0.1/ping", nil)
	req.Header.Set(RequestIDHeader, "trace-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Header().Get(RequestIDHeader))
}

func TestVersionGateRejectsNewerVersion(t *testing.T) {
	r := newTestRouter(VersionGate("v0.13"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v0.99/ping", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "msg")
}

func TestVersionGateAllowsOlderOrEqualVersion(t *testing.T) {
	r := newTestRouter(VersionGate("v0.13"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v0.13/ping", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSizeLimiterRejectsOversizedContentLength(t *testing.T) {
	r := newTestRouter()
	r.Use(SizeLimiter(10))
	r.POST("/:v/echo", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v0.1/echo", httptest.NewRequest(http.MethodPost, "/", nil).Body)
	req.ContentLength = 1024
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestCORSRespondsToPreflight(t *testing.T) {
	r := newTestRouter(CORS())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v0.1/ping", nil)
	req.Header.Set("Origin", "https://example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
