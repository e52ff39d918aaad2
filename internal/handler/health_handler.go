package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HealthChecker reports per-dependency failures; an empty map is healthy.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	responder
	checker HealthChecker
}

func NewHealthHandler(checker HealthChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		responder: responder{logger: logger},
		checker:   checker,
	}
}

func (h *HealthHandler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.Live)
	router.Get("/health/ready", h.Ready)
}

// Live reports that the process is serving
// @Router /health [get]
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{
		"status":  "healthy",
		"service": "auth-notify-service",
	}, ""))
}

// Ready runs the dependency health checks
// @Router /health/ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := h.checker.HealthCheck(ctx)
	if len(failures) == 0 {
		h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"status": "ready"}, ""))
		return
	}

	details := make(map[string]string, len(failures))
	for name, err := range failures {
		details[name] = err.Error()
	}
	h.logger.Warn("Readiness check failed", zap.Any("failures", details))
	h.respondWithJSON(w, http.StatusServiceUnavailable, Response{
		Success: false,
		Data:    details,
		Error:   "dependencies unhealthy",
	})
}
