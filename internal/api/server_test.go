package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicgate/magicgate/internal/config"
	"github.com/magicgate/magicgate/internal/routes"
	"github.com/magicgate/magicgate/internal/signal"
	"github.com/magicgate/magicgate/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	cfg.ApplyDefaults()

	store, err := token.Open(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry, err := routes.BuildRegistry(cfg)
	require.NoError(t, err)

	server, err := NewServer(cfg, registry, store, signal.NewDispatcher())
	require.NoError(t, err)
	return server
}

func TestServerGatesProtectedRoutes(t *testing.T) {
	cfg := &config.Config{
		Debug:  true,
		Routes: []config.Route{{Path: "private/", Protected: true}},
	}
	server := newTestServer(t, cfg)

	w := httptest.NewRecorder()
	server.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	server.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

// closeNotifyRecorder makes httptest.ResponseRecorder usable with
// httputil.ReverseProxy on Go toolchains whose proxy still requires
// http.CloseNotifier from the response writer.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
}

func (c *closeNotifyRecorder) CloseNotify() <-chan bool { return make(chan bool) }

func TestServerProxiesToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Origin", "upstream")
		_, _ = w.Write([]byte("origin says hi"))
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{Debug: true, Upstream: upstream.URL}
	server := newTestServer(t, cfg)

	w := &closeNotifyRecorder{httptest.NewRecorder()}
	server.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anything/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "upstream", w.Header().Get("X-Origin"))
	assert.Equal(t, "origin says hi", w.Body.String())
}

func TestServerRejectsInvalidUpstream(t *testing.T) {
	cfg := &config.Config{Debug: true, Upstream: "://not-a-url"}
	cfg.ApplyDefaults()

	store, err := token.Open(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = NewServer(cfg, routes.NewRegistry(), store, signal.NewDispatcher())
	assert.Error(t, err)
}

func TestManagementRequiresKey(t *testing.T) {
	cfg := &config.Config{Debug: true}
	server := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/v0/management/paths", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	w := httptest.NewRecorder()
	server.engine.ServeHTTP(w, req)

	// no secret key configured: management is closed, not open
	assert.Equal(t, http.StatusForbidden, w.Code)
}
