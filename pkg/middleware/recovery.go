package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"workspace-team-backend/pkg/config"
	"workspace-team-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回统一的错误信封
func Recovery(cfg *config.Config, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					// 客户端断开，交回 net/http 处理
					panic(rec)
				}

				stack := debug.Stack()
				log.WithFields(logrus.Fields{
					"panic":  rec,
					"path":   r.URL.Path,
					"method": r.Method,
					"stack":  string(stack),
				}).Error("recovered from panic")

				if cfg.IsDevelopment() {
					// 开发环境：显示详细错误信息
					utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
						"INTERNAL", fmt.Sprintf("Internal server error: %v", rec), string(stack))
					return
				}
				// 生产环境：隐藏详细错误信息
				utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
