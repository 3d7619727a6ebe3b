package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appfence/appfence/internal/config"
	"github.com/appfence/appfence/internal/database"
)

func jsonBody(s string) io.Reader {
	return bytes.NewReader([]byte(s))
}

func jsonDecode(raw []byte, out interface{}) error {
	return json.Unmarshal(raw, out)
}

func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	cfg := config.Config{
		Environment:     "test",
		HTTPPort:        "0",
		DatabasePath:    filepath.Join(dir, "test.db"),
		RulesPath:       filepath.Join(dir, "rules.json"),
		ControllerURL:   "https://127.0.0.1:1",
		ControllerSite:  "default",
		JWTSecret:       "test-secret",
		AdminPassword:   "hunter22",
		MaintenanceSpec: "@every 1h",
	}

	srv, err := New(db, cfg)
	require.NoError(t, err)
	return srv
}

func TestServer_HealthEndpoint(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "AppFence")
}

func TestServer_ProtectedRoutesRequireAuth(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_LoginThenListRules(t *testing.T) {
	srv := testServer(t)

	login := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		jsonBody(`{"username":"admin","password":"hunter22"}`))
	login.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, login)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, jsonDecode(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	list := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	list.Header.Set("Authorization", "Bearer "+resp.Token)
	w = httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, list)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[]", w.Body.String())
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "appfence_rules_declared_total")
}
