package handler

import (
	"net/http"

	"crop-advisor/internal/domain"
	"crop-advisor/internal/service"
	"crop-advisor/pkg/logger"
	"crop-advisor/pkg/metrics"

	"github.com/go-chi/chi/v5"
)

// AnalyticsHandler serves the visitor analytics view
type AnalyticsHandler struct {
	visitorService service.VisitorService
	logger         *logger.Logger
	metrics        *metrics.Metrics
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(visitorService service.VisitorService, log *logger.Logger, m *metrics.Metrics) *AnalyticsHandler {
	return &AnalyticsHandler{
		visitorService: visitorService,
		logger:         log,
		metrics:        m,
	}
}

// GetStats handles GET /api/analytics/stats
func (h *AnalyticsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.visitorService.ReadStats(r.Context())
	if err != nil {
		respondError(w, r, err, h.logger, h.metrics)
		return
	}

	respondJSON(w, http.StatusOK, stats, h.logger)
}

// Reset handles POST /api/analytics/reset
func (h *AnalyticsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.visitorService.Reset(r.Context()); err != nil {
		respondError(w, r, err, h.logger, h.metrics)
		return
	}

	// the reset state itself, not a later read that a concurrent visit may have changed
	h.logger.WithField("remote_addr", r.RemoteAddr).Info("Visitor analytics reset")
	respondJSON(w, http.StatusOK, domain.NewVisitorStats(domain.NewVisitorRecord()), h.logger)
}

// RegisterRoutes registers analytics routes; admin guards the mutating endpoint
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/stats", h.GetStats)
		r.With(admin).Post("/reset", h.Reset)
	})
}
