package middleware

import (
	"net/http"
	"strings"
)

// Normalize 规范化经过代理（Vercel/Cloudflare）转发的请求
// 去掉路径两端的空白，例如 "/api/invitations/accept%20"，并从转发头恢复 scheme
func Normalize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p := r.URL.Path; strings.TrimSpace(p) != p {
				r.URL.Path = strings.TrimSpace(p)
			}
			if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
				r.URL.Scheme = proto
			}
			next.ServeHTTP(w, r)
		})
	}
}
