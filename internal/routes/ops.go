package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/dukerupert/cakery/internal/handler"
	"github.com/dukerupert/cakery/internal/middleware"
	"github.com/dukerupert/cakery/internal/router"
)

// RegisterOpsRoutes registers /metrics and /healthz. Neither requires a
// caller; restrict them at the edge in production.
func RegisterOpsRoutes(r *router.Router, deps OpsDeps) {
	if deps.Metrics != nil {
		r.Handle(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Ping != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()

			if err := deps.Ping(ctx); err != nil {
				middleware.GetLogger(req.Context()).Warn("health check failed", "error", err)
				handler.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
