package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"workspace-team-backend/pkg/config"
	"workspace-team-backend/pkg/database"
	"workspace-team-backend/pkg/handlers"
	"workspace-team-backend/pkg/metrics"
	customMiddleware "workspace-team-backend/pkg/middleware"
	"workspace-team-backend/pkg/team"
	"workspace-team-backend/pkg/utils"
)

// RequestTimeout 留出余量给 Vercel 函数的时间限制
const RequestTimeout = 25 * time.Second

// NewRouter 组装完整的 HTTP 路由："单体路由模式"，所有端点集中在一个 Chi 路由器中。
// reg 只用于 /metrics 输出，teamMetrics 必须已注册到 reg
func NewRouter(cfg *config.Config, db database.DatabaseInterface, log *logrus.Logger,
	reg prometheus.Gatherer, teamMetrics *metrics.Metrics) http.Handler {
	service := team.NewService(db, team.Options{
		Logger:           log,
		Metrics:          teamMetrics,
		InviteExpiryDays: cfg.InviteExpiryDays,
		InviteTokenBytes: cfg.InviteTokenBytes,
	})
	jwtService := utils.NewJWTService(cfg.JWTSecret)

	router := chi.NewRouter()
	setupMiddleware(router, cfg, log)
	setupRoutes(router, cfg, db, log, reg, service, jwtService)
	return router
}

// NewRegistry 返回带有进程与 Go 运行时指标以及团队指标的注册表
func NewRegistry() (*prometheus.Registry, *metrics.Metrics, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, nil, err
	}
	teamMetrics, err := metrics.New(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("register metrics: %w", err)
	}
	return reg, teamMetrics, nil
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config, log *logrus.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// 在日志和路由之前规范化路径
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.RequestLogger(log))
	router.Use(customMiddleware.Recovery(cfg, log))
	router.Use(customMiddleware.CORS(cfg))
	router.Use(middleware.Timeout(RequestTimeout))
	router.Use(customMiddleware.MaxBodySize(customMiddleware.DefaultMaxBodyBytes))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface, log *logrus.Logger,
	reg prometheus.Gatherer, service *team.Service, jwtService *utils.JWTService) {
	healthHandler := handlers.NewHealthHandler(cfg, db)
	teamHandler := handlers.NewTeamHandler(cfg, service, log)

	// 健康检查端点
	router.Get("/", healthHandler.HealthCheck)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// 数据库连接池状态端点（调试用）
	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, database.GetConnectionStats())
		})
	}

	router.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.ContentTypeJSON)
		teamHandler.Routes(r, customMiddleware.Authenticate(jwtService, log))
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}

// DatabaseConfig 从应用配置提取数据库配置
func DatabaseConfig(cfg *config.Config) database.DatabaseConfig {
	return database.DatabaseConfig{
		Driver:      cfg.DatabaseDriver,
		PostgresDSN: cfg.PostgresDSN,
		SQLitePath:  cfg.SQLitePath,
	}
}
