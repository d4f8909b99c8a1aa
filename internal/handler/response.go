package handler

import (
	"net/http"

	"crop-advisor/internal/middleware"
	"crop-advisor/pkg/errors"
	"crop-advisor/pkg/logger"
	"crop-advisor/pkg/metrics"

	"github.com/goccy/go-json"
)

// SuccessResponse is the envelope for every successful API response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(&SuccessResponse{Success: true, Data: data}); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// respondError maps err onto its AppError and writes the error envelope
func respondError(w http.ResponseWriter, r *http.Request, err error, log *logger.Logger, m *metrics.Metrics) {
	appErr := errors.FromError(err)
	m.IncError(string(appErr.Type))
	middleware.WriteErrorResponse(w, r, appErr, log)
}
