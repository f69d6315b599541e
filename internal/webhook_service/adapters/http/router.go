package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the webhook and admin routes behind the standard middleware stack.
func NewRouter(webhook *WebhookHandler, admin *AdminHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(PrometheusMetricsMiddleware)

	webhook.Routes(r)
	if admin != nil {
		admin.Routes(r)
	}
	return r
}
