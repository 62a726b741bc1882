package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspace-team-backend/pkg/config"
	"workspace-team-backend/pkg/database"
	"workspace-team-backend/pkg/logging"
	"workspace-team-backend/pkg/utils"
)

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		Environment:      "test",
		Port:             "3000",
		DatabaseDriver:   "sqlite",
		SQLitePath:       filepath.Join(t.TempDir(), "team.db"),
		JWTSecret:        "router-secret",
		InviteExpiryDays: 14,
		InviteTokenBytes: 32,
	}
	db, err := database.NewDatabase(DatabaseConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg, teamMetrics, err := NewRegistry()
	require.NoError(t, err)
	return NewRouter(cfg, db, logging.Discard(), reg, teamMetrics), cfg
}

func serve(router http.Handler, req *http.Request) (*httptest.ResponseRecorder, string) {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	return rec, string(body)
}

func TestRouterHealthAndNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, body := serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, `"database":"sqlite"`)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))

	rec, body = serve(router, httptest.NewRequest(http.MethodGet, "/api/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body, `"code":"NOT_FOUND"`)
}

func TestRouterExposesTeamMetrics(t *testing.T) {
	router, cfg := newTestRouter(t)

	token, _, err := utils.NewJWTService(cfg.JWTSecret).GenerateAccessToken("u1", "u1@x.com")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/missing/team", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, _ := serve(router, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, `workspace_team_operations_total{operation="get_team",outcome="not_found"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestRouterRejectsTokensSignedWithAnotherSecret(t *testing.T) {
	router, _ := newTestRouter(t)

	token, _, err := utils.NewJWTService("someone-else").GenerateAccessToken("u1", "u1@x.com")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/invitations/my", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, body := serve(router, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, body, `"code":"UNAUTHORIZED"`)
}
