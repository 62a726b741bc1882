package handlers

import (
	"context"
	"net/http"
	"time"

	"workspace-team-backend/pkg/config"
	"workspace-team-backend/pkg/utils"
)

// HealthChecker is satisfied by database.DatabaseInterface.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	config *config.Config
	db     HealthChecker
}

func NewHealthHandler(cfg *config.Config, db HealthChecker) *HealthHandler {
	return &HealthHandler{config: cfg, db: db}
}

// HealthCheck 健康检查；数据库不可用时返回 503
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbStatus := "healthy"
	if err := h.db.HealthCheck(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = "unhealthy: " + err.Error()
	}

	utils.WriteJSONResponse(w, status, map[string]interface{}{
		"service":     "workspace-team-backend",
		"version":     "1.0.0",
		"environment": h.config.Environment,
		"database":    h.config.DatabaseDriver,
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
	})
}
