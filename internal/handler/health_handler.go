package handler

import (
	"context"
	"net/http"
	"time"

	"crop-advisor/internal/service"
	"crop-advisor/pkg/logger"
)

// Version is reported by the health endpoint and overridden at link time
var Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	visitorService service.VisitorService
	logger         *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(visitorService service.VisitorService, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		visitorService: visitorService,
		logger:         log,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
}

// Check handles GET /health.
// A failing visitor store degrades the status but keeps a 200, since
// recommendations are still served.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   Version,
		Service:   "crop-advisor",
		Checks:    map[string]string{},
	}

	storeCheck := "visitor_store:" + h.visitorService.Backend()
	if err := h.visitorService.Health(ctx); err != nil {
		h.logger.WithError(err).Warn("Visitor store health check failed")
		response.Status = "degraded"
		response.Checks[storeCheck] = "unavailable"
	} else {
		response.Checks[storeCheck] = "ok"
	}

	respondJSON(w, http.StatusOK, response, h.logger)
}
