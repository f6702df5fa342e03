package api

import (
	"net/http"

	"socialpub/internal/broadcast"
	"socialpub/internal/health"
	"socialpub/internal/job"
	"socialpub/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	JobService    *job.Service
	Broadcaster   broadcast.Broadcaster
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.JobService, cfg.Broadcaster, cfg.Metrics, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Publish endpoints - service auth plus the gateway-forwarded owner
	auth := AuthMiddleware(cfg.APIKey)
	owner := OwnerMiddleware()
	protect := func(h http.HandlerFunc) http.Handler {
		return auth(owner(h))
	}
	mux.Handle("POST /api/posts/publish", protect(handler.Publish))
	mux.Handle("GET /api/posts/publish/ws", protect(handler.Stream))
	mux.Handle("GET /api/posts/publish/{jobId}", protect(handler.GetJob))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
