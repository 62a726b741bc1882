package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	chiRoute "github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspace-team-backend/pkg/config"
	"workspace-team-backend/pkg/database"
	"workspace-team-backend/pkg/logging"
	"workspace-team-backend/pkg/middleware"
	"workspace-team-backend/pkg/models"
	"workspace-team-backend/pkg/team"
	"workspace-team-backend/pkg/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
}

type apiHarness struct {
	t      *testing.T
	store  *database.SQLDatabase
	jwt    *utils.JWTService
	router http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	store, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "team.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{Environment: "test", DatabaseDriver: "sqlite"}
	log := logging.Discard()
	jwtService := utils.NewJWTService("test-secret")
	service := team.NewService(store, team.Options{Logger: log})

	router := chiRoute.NewRouter()
	router.Get("/", NewHealthHandler(cfg, store).HealthCheck)
	router.Route("/api", func(r chiRoute.Router) {
		r.Use(middleware.ContentTypeJSON)
		NewTeamHandler(cfg, service, log).Routes(r, middleware.Authenticate(jwtService, log))
	})

	h := &apiHarness{t: t, store: store, jwt: jwtService, router: router}

	ctx := context.Background()
	for _, u := range []models.User{
		{ID: "owner", Email: "owner@x.com", Name: "Owner"},
		{ID: "bob", Email: "bob@x.com", Name: "Bob"},
		{ID: "carol", Email: "carol@x.com"},
	} {
		require.NoError(t, store.CreateUser(ctx, &u))
	}
	require.NoError(t, store.CreateWorkspace(ctx, &models.Workspace{ID: "ws", Name: "WS", OwnerID: "owner", MaxMembers: 5}))
	require.NoError(t, store.CreateGroup(ctx, &models.Group{ID: "g1", WorkspaceID: "ws", Name: "General"}))
	return h
}

func (h *apiHarness) token(userID, email string) string {
	h.t.Helper()
	token, _, err := h.jwt.GenerateAccessToken(userID, email)
	require.NoError(h.t, err)
	return token
}

func (h *apiHarness) do(method, path, token string, body interface{}) (int, envelope) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestRequiresAuthentication(t *testing.T) {
	h := newAPIHarness(t)

	code, env := h.do(http.MethodGet, "/api/workspaces/ws/team", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	code, _ = h.do(http.MethodGet, "/api/workspaces/ws/team", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestInvitationFlowOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	owner := h.token("owner", "owner@x.com")
	bob := h.token("bob", "bob@x.com")

	// Arrange: owner invites bob by email
	code, env := h.do(http.MethodPost, "/api/workspaces/ws/invitations", owner, map[string]string{"email": "bob@x.com"})
	require.Equal(t, http.StatusCreated, code, string(env.Data))
	var inv models.WorkspaceInvitation
	require.NoError(t, json.Unmarshal(env.Data, &inv))
	require.NotEmpty(t, inv.Token)
	assert.Equal(t, models.RoleMember, inv.Role)

	// validate is public and never echoes the token
	code, env = h.do(http.MethodGet, "/api/invitations/validate?token="+inv.Token, "", nil)
	require.Equal(t, http.StatusOK, code)
	var validated models.WorkspaceInvitation
	require.NoError(t, json.Unmarshal(env.Data, &validated))
	assert.Empty(t, validated.Token)
	assert.Equal(t, inv.ID, validated.ID)

	// Act
	code, env = h.do(http.MethodPost, "/api/invitations/accept", bob, map[string]string{"token": inv.Token})
	require.Equal(t, http.StatusOK, code, string(env.Data))

	// Assert
	code, env = h.do(http.MethodGet, "/api/workspaces/ws/team", bob, nil)
	require.Equal(t, http.StatusOK, code)
	var roster team.Team
	require.NoError(t, json.Unmarshal(env.Data, &roster))
	assert.Equal(t, 1, roster.MemberCount)
	require.Len(t, roster.Members, 2)
	assert.Equal(t, models.RoleOwner, roster.Members[0].Role)
	assert.Equal(t, "bob", roster.Members[1].UserID)
	assert.Equal(t, "Bob", roster.Members[1].Name)

	code, env = h.do(http.MethodPost, "/api/invitations/accept", bob, map[string]string{"token": inv.Token})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(team.KindLimitReached), env.Error.Code)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	h := newAPIHarness(t)
	owner := h.token("owner", "owner@x.com")
	bob := h.token("bob", "bob@x.com")

	code, _ := h.do(http.MethodPost, "/api/workspaces/ws/members", owner, map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusCreated, code)

	code, env := h.do(http.MethodPost, "/api/workspaces/ws/members", bob, map[string]string{"user_id": "carol"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, string(team.KindForbidden), env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/workspaces/ws/members", owner, map[string]string{"user_id": "bob"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(team.KindAlreadyMember), env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/workspaces/ws/members", owner, map[string]string{"user_id": "carol", "role": "owner"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	code, env = h.do(http.MethodGet, "/api/workspaces/missing/team", owner, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(team.KindNotFound), env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/invitations/accept", bob, map[string]string{"token": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(team.KindInvalid), env.Error.Code)

	code, env = h.do(http.MethodPut, "/api/workspaces/ws/capacity", owner, map[string]int{"max_members": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(team.KindInvalidArgument), env.Error.Code)
}

func TestMemberManagementOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	owner := h.token("owner", "owner@x.com")
	bob := h.token("bob", "bob@x.com")

	code, env := h.do(http.MethodPost, "/api/workspaces/ws/members", owner, map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusCreated, code)
	var member models.WorkspaceMember
	require.NoError(t, json.Unmarshal(env.Data, &member))

	code, env = h.do(http.MethodPut, "/api/members/"+member.ID+"/role", owner, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, code)
	var updated models.WorkspaceMember
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, models.RoleAdmin, updated.Role)

	code, env = h.do(http.MethodDelete, "/api/members/"+member.ID, bob, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(team.KindSelfRemovalNotAllowed), env.Error.Code)

	code, _ = h.do(http.MethodDelete, "/api/members/"+member.ID, owner, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = h.do(http.MethodGet, "/api/workspaces/ws/team", bob, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestGroupPermissionsOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	owner := h.token("owner", "owner@x.com")
	bob := h.token("bob", "bob@x.com")

	code, _ := h.do(http.MethodPost, "/api/workspaces/ws/members", owner, map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusCreated, code)

	code, env := h.do(http.MethodPut, "/api/groups/g1/permissions", owner, map[string]interface{}{
		"user_id":  "bob",
		"can_view": true,
		"can_edit": true,
	})
	require.Equal(t, http.StatusOK, code, string(env.Data))
	var perm models.GroupPermission
	require.NoError(t, json.Unmarshal(env.Data, &perm))

	code, env = h.do(http.MethodGet, "/api/groups/g1/permissions/effective", bob, nil)
	require.Equal(t, http.StatusOK, code)
	var flags models.PermissionFlags
	require.NoError(t, json.Unmarshal(env.Data, &flags))
	assert.Equal(t, models.PermissionFlags{CanView: true, CanEdit: true}, flags)

	code, env = h.do(http.MethodGet, "/api/groups/g1/permissions", bob, nil)
	require.Equal(t, http.StatusOK, code)
	var perms []models.GroupPermission
	require.NoError(t, json.Unmarshal(env.Data, &perms))
	assert.Len(t, perms, 1)

	code, _ = h.do(http.MethodDelete, "/api/permissions/"+perm.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = h.do(http.MethodDelete, "/api/permissions/"+perm.ID, owner, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRejectsNonJSONBodies(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/invitations/accept", bytes.NewBufferString("token=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+h.token("bob", "bob@x.com"))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	h := newAPIHarness(t)

	code, env := h.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"db_status":"healthy"`)
}
