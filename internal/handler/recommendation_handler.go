package handler

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"crop-advisor/internal/domain"
	"crop-advisor/internal/service"
	"crop-advisor/pkg/errors"
	"crop-advisor/pkg/logger"
	"crop-advisor/pkg/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

const maxRecommendationBody = 64 << 10

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator; field errors use JSON names
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// RecommendationRequest is the submitted measurement form.
// Pointers distinguish a missing field from an explicit zero.
type RecommendationRequest struct {
	N           *float64 `json:"n" validate:"required"`
	P           *float64 `json:"p" validate:"required"`
	K           *float64 `json:"k" validate:"required"`
	Temperature *float64 `json:"temperature" validate:"required"`
	Humidity    *float64 `json:"humidity" validate:"required"`
	PH          *float64 `json:"ph" validate:"required"`
	Rainfall    *float64 `json:"rainfall" validate:"required"`
}

// FeatureVector converts a validated request
func (r *RecommendationRequest) FeatureVector() domain.FeatureVector {
	return domain.FeatureVector{
		Nitrogen:    *r.N,
		Phosphorus:  *r.P,
		Potassium:   *r.K,
		Temperature: *r.Temperature,
		Humidity:    *r.Humidity,
		PH:          *r.PH,
		Rainfall:    *r.Rainfall,
	}
}

// CropsResponse lists the crop catalog and the advisory input ranges
type CropsResponse struct {
	Crops  []domain.CatalogEntry `json:"crops"`
	Ranges []domain.FeatureRange `json:"ranges"`
}

// RecommendationHandler handles crop recommendation requests
type RecommendationHandler struct {
	recommendationService service.RecommendationService
	logger                *logger.Logger
	metrics               *metrics.Metrics
}

// NewRecommendationHandler creates a new recommendation handler
func NewRecommendationHandler(recommendationService service.RecommendationService, log *logger.Logger, m *metrics.Metrics) *RecommendationHandler {
	return &RecommendationHandler{
		recommendationService: recommendationService,
		logger:                log,
		metrics:               m,
	}
}

// Recommend handles POST /api/recommendations
func (h *RecommendationHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRecommendationBody)).Decode(&req); err != nil {
		respondError(w, r, errors.NewValidationError("Request body must be a JSON object of numeric measurements", map[string]interface{}{
			"reason": err.Error(),
		}), h.logger, h.metrics)
		return
	}

	if err := getValidator().Struct(&req); err != nil {
		respondError(w, r, validationError(err), h.logger, h.metrics)
		return
	}

	result, err := h.recommendationService.Recommend(r.Context(), req.FeatureVector())
	if err != nil {
		respondError(w, r, err, h.logger, h.metrics)
		return
	}

	respondJSON(w, http.StatusOK, result, h.logger)
}

// ListCrops handles GET /api/crops
func (h *RecommendationHandler) ListCrops(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &CropsResponse{
		Crops:  h.recommendationService.Catalog(),
		Ranges: domain.FeatureRanges[:],
	}, h.logger)
}

// RegisterRoutes registers recommendation routes with the router
func (h *RecommendationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/crops", h.ListCrops)
	r.Post("/recommendations", h.Recommend)
}

func validationError(err error) *errors.AppError {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.NewValidationError("Invalid request", nil)
	}

	missing := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		missing = append(missing, fe.Field())
	}

	return errors.NewValidationError(
		fmt.Sprintf("Missing required measurements: %s", strings.Join(missing, ", ")),
		map[string]interface{}{"fields": missing},
	)
}
