package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/fachebot/crisp-digest/internal/logger"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter 创建带全局中间件的路由
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(RequestLogger)
	r.Use(chiMiddleware.Recoverer)

	h.RegisterRoutes(r)
	return r
}

// RequestLogger 请求日志中间件
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Infof("[API] [%s] %d | %13v | %15s | %s %s",
			r.Method, ww.Status(), time.Since(start), r.RemoteAddr, r.URL.Path, chiMiddleware.GetReqID(r.Context()))
	})
}

// RequireSecret 校验共享密钥（X-Webhook-Secret 头或 secret 查询参数），secret 为空时不校验
func RequireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Webhook-Secret")
			if got == "" {
				got = r.URL.Query().Get("secret")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
