package handler

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"workspace-team-backend/pkg/config"
	"workspace-team-backend/pkg/database"
	"workspace-team-backend/pkg/logging"
	"workspace-team-backend/pkg/metrics"
	"workspace-team-backend/pkg/server"
	"workspace-team-backend/pkg/utils"
)

// 进程级状态：热启动时复用日志与指标注册表
var (
	initOnce    sync.Once
	initErr     error
	logger      *logrus.Logger
	registry    *prometheus.Registry
	teamMetrics *metrics.Metrics
)

// Handler 是Vercel函数的入口点
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg, err := config.GetCached()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}
	// 验证配置
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	initOnce.Do(func() {
		logger = logging.New(cfg)
		registry, teamMetrics, initErr = server.NewRegistry()
	})
	if initErr != nil {
		utils.WriteInternalServerErrorResponse(w, "Metrics initialization failed")
		return
	}

	// 连接由进程级连接池管理，无需手动关闭
	db, err := database.GetDatabase(r.Context(), server.DatabaseConfig(cfg))
	if err != nil {
		logger.WithError(err).Error("database unavailable")
		utils.WriteErrorResponseWithCode(w, http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE",
			"Database is unavailable", "")
		return
	}

	server.NewRouter(cfg, db, logger, registry, teamMetrics).ServeHTTP(w, r)
}
