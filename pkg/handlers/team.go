package handlers

import (
	"errors"
	"net/http"
	"strings"

	chiRoute "github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"workspace-team-backend/pkg/config"
	"workspace-team-backend/pkg/middleware"
	"workspace-team-backend/pkg/models"
	"workspace-team-backend/pkg/team"
	"workspace-team-backend/pkg/utils"
)

// TeamHandler 暴露团队成员、邀请与分组权限接口
type TeamHandler struct {
	config  *config.Config
	service *team.Service
	log     *logrus.Logger
}

func NewTeamHandler(cfg *config.Config, service *team.Service, log *logrus.Logger) *TeamHandler {
	return &TeamHandler{config: cfg, service: service, log: log}
}

// Routes 挂载到 /api 下；除 validate 外的路由都需要认证
func (h *TeamHandler) Routes(r chiRoute.Router, authenticate func(http.Handler) http.Handler) {
	r.Route("/invitations", func(r chiRoute.Router) {
		// 受邀者可能尚未登录
		r.Get("/validate", h.ValidateInvitation)

		r.Group(func(r chiRoute.Router) {
			r.Use(authenticate)
			r.Get("/my", h.ListMyInvitations)
			r.Post("/accept", h.AcceptInvitation)
			r.Post("/decline", h.DeclineInvitation)
			r.Delete("/{invitationID}", h.RevokeInvitation)
		})
	})

	r.Group(func(r chiRoute.Router) {
		r.Use(authenticate)

		r.Route("/workspaces/{workspaceID}", func(r chiRoute.Router) {
			r.Get("/team", h.GetTeam)
			r.Post("/members", h.AddMember)
			r.Put("/capacity", h.UpgradeCapacity)
			r.Post("/invitations", h.CreateInvitation)
		})
		r.Route("/members/{memberID}", func(r chiRoute.Router) {
			r.Delete("/", h.RemoveMember)
			r.Put("/role", h.UpdateRole)
		})
		r.Route("/groups/{groupID}/permissions", func(r chiRoute.Router) {
			r.Get("/", h.ListGroupPermissions)
			r.Put("/", h.SetGroupPermission)
			r.Get("/effective", h.GetEffectivePermission)
		})
		r.Delete("/permissions/{permissionID}", h.RemoveGroupPermission)
	})
}

// writeError 把 team.Error 映射为 HTTP 状态码与错误码；内部错误不向外暴露原因
func (h *TeamHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := team.KindOf(err)
	if kind == team.KindInternal {
		h.log.WithFields(logrus.Fields{
			"path":   r.URL.Path,
			"method": r.Method,
		}).WithError(err).Error("team request failed")
		utils.WriteErrorResponseWithCode(w, kind.HTTPStatus(), string(kind), "Internal server error occurred", "")
		return
	}
	message := err.Error()
	var teamErr *team.Error
	if errors.As(err, &teamErr) {
		message = teamErr.Message
	}
	utils.WriteErrorResponseWithCode(w, kind.HTTPStatus(), string(kind), message, "")
}

func (h *TeamHandler) caller(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return nil, false
	}
	return user, true
}

// parseRole 空值默认为 member；owner 不可分配
func parseRole(s string) (models.Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return models.RoleMember, true
	}
	role := models.ParseRole(s)
	return role, role.Assignable()
}

// GET /api/workspaces/{workspaceID}/team
func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	workspaceID := chiRoute.URLParam(r, "workspaceID")

	roster, err := h.service.GetTeam(r.Context(), workspaceID, user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// 查看团队视为一次访问
	if err := h.service.RecordAccess(r.Context(), workspaceID, user.ID); err != nil {
		h.log.WithError(err).WithField("workspace_id", workspaceID).Warn("record access failed")
	}
	utils.WriteSuccessResponse(w, roster)
}

// POST /api/workspaces/{workspaceID}/members
func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		utils.WriteBadRequestResponse(w, "user_id required")
		return
	}
	role, ok := parseRole(req.Role)
	if !ok {
		utils.WriteBadRequestResponse(w, "Invalid role")
		return
	}

	member, err := h.service.AddMember(r.Context(), chiRoute.URLParam(r, "workspaceID"), user.ID, strings.TrimSpace(req.UserID), role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, member)
}

// DELETE /api/members/{memberID}
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveMember(r.Context(), chiRoute.URLParam(r, "memberID"), user.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]bool{"removed": true})
}

// PUT /api/members/{memberID}/role
func (h *TeamHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if strings.TrimSpace(req.Role) == "" {
		utils.WriteBadRequestResponse(w, "role required")
		return
	}
	role, ok := parseRole(req.Role)
	if !ok {
		utils.WriteBadRequestResponse(w, "Invalid role")
		return
	}

	member, err := h.service.UpdateRole(r.Context(), chiRoute.URLParam(r, "memberID"), user.ID, role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, member)
}

// PUT /api/workspaces/{workspaceID}/capacity
func (h *TeamHandler) UpgradeCapacity(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		MaxMembers *int `json:"max_members"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if req.MaxMembers == nil || *req.MaxMembers < 0 {
		utils.WriteBadRequestResponse(w, "max_members must be a non-negative integer")
		return
	}

	ws, err := h.service.UpgradeCapacity(r.Context(), chiRoute.URLParam(r, "workspaceID"), user.ID, *req.MaxMembers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, ws)
}

// POST /api/workspaces/{workspaceID}/invitations
func (h *TeamHandler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req team.CreateInvitationInput
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	role, ok := parseRole(string(req.Role))
	if !ok {
		utils.WriteBadRequestResponse(w, "Invalid role")
		return
	}
	req.Role = role

	inv, err := h.service.Invite(r.Context(), chiRoute.URLParam(r, "workspaceID"), user.ID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// 只有创建者能拿到 token
	utils.WriteCreatedResponse(w, inv)
}

// DELETE /api/invitations/{invitationID}
func (h *TeamHandler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.service.RevokeInvitation(r.Context(), chiRoute.URLParam(r, "invitationID"), user.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]bool{"revoked": true})
}

// GET /api/invitations/my
func (h *TeamHandler) ListMyInvitations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	invs, err := h.service.ListMyInvitations(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, invs)
}

// GET /api/invitations/validate?token=
func (h *TeamHandler) ValidateInvitation(w http.ResponseWriter, r *http.Request) {
	token := utils.GetQueryParam(r, "token", "")
	if token == "" {
		utils.WriteBadRequestResponse(w, "token required")
		return
	}
	inv, err := h.service.ValidateInvitation(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, inv.Redacted())
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *TeamHandler) parseToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req tokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return "", false
	}
	if strings.TrimSpace(req.Token) == "" {
		utils.WriteBadRequestResponse(w, "token required")
		return "", false
	}
	return strings.TrimSpace(req.Token), true
}

// POST /api/invitations/accept
func (h *TeamHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	token, ok := h.parseToken(w, r)
	if !ok {
		return
	}
	member, err := h.service.AcceptInvite(r.Context(), user.ID, token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, member)
}

// POST /api/invitations/decline
func (h *TeamHandler) DeclineInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	token, ok := h.parseToken(w, r)
	if !ok {
		return
	}
	inv, err := h.service.DeclineInvite(r.Context(), user.ID, token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, inv.Redacted())
}

// GET /api/groups/{groupID}/permissions
func (h *TeamHandler) ListGroupPermissions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	perms, err := h.service.ListGroupPermissions(r.Context(), chiRoute.URLParam(r, "groupID"), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, perms)
}

// PUT /api/groups/{groupID}/permissions
func (h *TeamHandler) SetGroupPermission(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		models.PermissionFlags
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		utils.WriteBadRequestResponse(w, "user_id required")
		return
	}

	perm, err := h.service.SetGroupPermission(r.Context(), chiRoute.URLParam(r, "groupID"), user.ID, strings.TrimSpace(req.UserID), req.PermissionFlags)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, perm)
}

// GET /api/groups/{groupID}/permissions/effective
func (h *TeamHandler) GetEffectivePermission(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	flags, err := h.service.GetGroupPermission(r.Context(), chiRoute.URLParam(r, "groupID"), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, flags)
}

// DELETE /api/permissions/{permissionID}
func (h *TeamHandler) RemoveGroupPermission(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveGroupPermission(r.Context(), chiRoute.URLParam(r, "permissionID"), user.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]bool{"removed": true})
}
