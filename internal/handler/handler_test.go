package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"crop-advisor/internal/domain"
	"crop-advisor/internal/middleware"
	"crop-advisor/internal/repository"
	"crop-advisor/internal/service"
	"crop-advisor/pkg/classifier"
	"crop-advisor/pkg/logger"
	"crop-advisor/pkg/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenVisitorService fails every call with a storage error
type brokenVisitorService struct{}

var errDisk = fmt.Errorf("%w: read-only file system", domain.ErrStorageUnavailable)

func (brokenVisitorService) Load(ctx context.Context) (*domain.VisitorRecord, error) {
	return nil, errDisk
}

func (brokenVisitorService) RecordVisit(ctx context.Context, now time.Time) (int64, error) {
	return 0, errDisk
}

func (brokenVisitorService) ReadStats(ctx context.Context) (*domain.VisitorStats, error) {
	return nil, errDisk
}

func (brokenVisitorService) Reset(ctx context.Context) error {
	return errDisk
}

func (brokenVisitorService) Health(ctx context.Context) error {
	return errDisk
}

func (brokenVisitorService) Backend() string {
	return "file"
}

func (brokenVisitorService) Close() error {
	return nil
}

// busyVisitorService lets a visit land right after every reset
type busyVisitorService struct {
	service.VisitorService
}

func (s busyVisitorService) Reset(ctx context.Context) error {
	if err := s.VisitorService.Reset(ctx); err != nil {
		return err
	}
	_, err := s.VisitorService.RecordVisit(ctx, time.Now())
	return err
}

func fixedClassifier(label domain.CropLabel) classifier.Classifier {
	return classifier.Func(func(ctx context.Context, features []float64) (domain.CropLabel, error) {
		return label, nil
	})
}

func newTestRouter(t *testing.T, visitors service.VisitorService, label domain.CropLabel, adminKey string) http.Handler {
	log := logger.NewNop()
	m := metrics.New()

	recommendations, err := service.NewRecommendationService(fixedClassifier(label), domain.DefaultCatalog, 0, log, m)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Get("/health", NewHealthHandler(visitors, log).Check)
	r.Route("/api", func(r chi.Router) {
		NewRecommendationHandler(recommendations, log, m).RegisterRoutes(r)
		NewAnalyticsHandler(visitors, log, m).RegisterRoutes(r, middleware.RequireAPIKey(adminKey, log))
	})
	return r
}

func newFileVisitors(t *testing.T) service.VisitorService {
	repo, err := repository.NewFileVisitorRepository(filepath.Join(t.TempDir(), "visitor_data.json"))
	require.NoError(t, err)
	return service.NewVisitorService(repo, logger.NewNop(), nil)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Type      string                 `json:"type"`
		Message   string                 `json:"message"`
		Details   map[string]interface{} `json:"details"`
		RequestID string                 `json:"request_id"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

const riceBody = `{"n": 90, "p": 42, "k": 43, "temperature": 20.87, "humidity": 82, "ph": 6.5, "rainfall": 202.9}`

func TestRecommendationHandler_Recommend(t *testing.T) {
	tests := []struct {
		name           string
		label          domain.CropLabel
		body           string
		expectedStatus int
		expectedType   string
		expectedCrop   string
		outOfRange     []string
	}{
		{name: "integer label", label: domain.NumericLabel(20), body: riceBody, expectedStatus: http.StatusOK, expectedCrop: "Rice", outOfRange: []string{}},
		{name: "string label", label: domain.NamedLabel("rice"), body: riceBody, expectedStatus: http.StatusOK, expectedCrop: "Rice", outOfRange: []string{}},
		{
			name:           "out of range accepted",
			label:          domain.NumericLabel(20),
			body:           `{"n": 90, "p": 42, "k": 43, "temperature": 200, "humidity": 82, "ph": 6.5, "rainfall": 202.9}`,
			expectedStatus: http.StatusOK,
			expectedCrop:   "Rice",
			outOfRange:     []string{"temperature"},
		},
		{name: "zero values are present", label: domain.NumericLabel(0), body: `{"n": 0, "p": 0, "k": 0, "temperature": 8, "humidity": 10, "ph": 3, "rainfall": 20}`, expectedStatus: http.StatusOK, expectedCrop: "Apple", outOfRange: []string{}},
		{name: "unknown label", label: domain.NumericLabel(99), body: riceBody, expectedStatus: http.StatusUnprocessableEntity, expectedType: "unknown_label"},
		{name: "missing field", label: domain.NumericLabel(20), body: `{"n": 90, "p": 42, "k": 43, "temperature": 20, "humidity": 82, "ph": 6.5}`, expectedStatus: http.StatusBadRequest, expectedType: "validation"},
		{name: "non numeric", label: domain.NumericLabel(20), body: `{"n": "lots", "p": 42, "k": 43, "temperature": 20, "humidity": 82, "ph": 6.5, "rainfall": 100}`, expectedStatus: http.StatusBadRequest, expectedType: "validation"},
		{name: "empty body", label: domain.NumericLabel(20), body: ``, expectedStatus: http.StatusBadRequest, expectedType: "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, newFileVisitors(t), tt.label, "")

			rec, env := do(t, router, http.MethodPost, "/api/recommendations", tt.body, nil)
			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedType != "" {
				assert.False(t, env.Success)
				assert.Equal(t, tt.expectedType, env.Error.Type)
				assert.NotEmpty(t, env.Error.RequestID)
				return
			}

			require.True(t, env.Success)
			var result struct {
				Crop       string   `json:"crop"`
				OutOfRange []string `json:"out_of_range"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &result))
			assert.Equal(t, tt.expectedCrop, result.Crop)
			assert.Equal(t, tt.outOfRange, result.OutOfRange)
		})
	}
}

func TestRecommendationHandler_MissingFieldsReported(t *testing.T) {
	router := newTestRouter(t, newFileVisitors(t), domain.NumericLabel(20), "")

	_, env := do(t, router, http.MethodPost, "/api/recommendations", `{"n": 1, "p": 2}`, nil)
	assert.Equal(t, []interface{}{"k", "temperature", "humidity", "ph", "rainfall"}, env.Error.Details["fields"])
}

func TestRecommendationHandler_ListCrops(t *testing.T) {
	router := newTestRouter(t, newFileVisitors(t), domain.NumericLabel(20), "")

	rec, env := do(t, router, http.MethodGet, "/api/crops", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var crops CropsResponse
	require.NoError(t, json.Unmarshal(env.Data, &crops))
	assert.Len(t, crops.Crops, 22)
	assert.Len(t, crops.Ranges, domain.FeatureCount)
	assert.Equal(t, "watermelon", crops.Crops[21].Name)
}

func TestAnalyticsHandler(t *testing.T) {
	visitors := newFileVisitors(t)
	router := newTestRouter(t, visitors, domain.NumericLabel(20), "admin-key")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := visitors.RecordVisit(ctx, time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC))
		require.NoError(t, err)
	}

	rec, env := do(t, router, http.MethodGet, "/api/analytics/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.VisitorStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(2), stats.Count)
	assert.Equal(t, []string{"2024-01-01T00:00:00Z", "2024-01-01T00:01:00Z"}, stats.Timestamps)

	rec, _ = do(t, router, http.MethodPost, "/api/analytics/reset", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = do(t, router, http.MethodPost, "/api/analytics/reset", "", map[string]string{"Authorization": "Bearer admin-key"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(0), stats.Count)
	assert.Empty(t, stats.Timestamps)
}

func TestAnalyticsHandler_ResetReportsResetState(t *testing.T) {
	visitors := busyVisitorService{VisitorService: newFileVisitors(t)}
	router := newTestRouter(t, visitors, domain.NumericLabel(20), "")

	_, err := visitors.RecordVisit(context.Background(), time.Now())
	require.NoError(t, err)

	rec, env := do(t, router, http.MethodPost, "/api/analytics/reset", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.VisitorStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(0), stats.Count)
	assert.Empty(t, stats.Timestamps)
	assert.Nil(t, stats.LastVisit)

	// the visit that landed after the reset is still counted
	rec, env = do(t, router, http.MethodGet, "/api/analytics/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(1), stats.Count)
}

func TestAnalyticsHandler_StorageUnavailable(t *testing.T) {
	router := newTestRouter(t, brokenVisitorService{}, domain.NumericLabel(20), "")

	rec, env := do(t, router, http.MethodGet, "/api/analytics/stats", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "storage_unavailable", env.Error.Type)

	rec, _ = do(t, router, http.MethodPost, "/api/analytics/reset", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// recommendations keep working
	rec, _ = do(t, router, http.MethodPost, "/api/recommendations", riceBody, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name     string
		visitors service.VisitorService
		status   string
		check    string
	}{
		{name: "healthy", visitors: newFileVisitors(t), status: "healthy", check: "ok"},
		{name: "degraded", visitors: brokenVisitorService{}, status: "degraded", check: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, tt.visitors, domain.NumericLabel(20), "")

			rec, env := do(t, router, http.MethodGet, "/health", "", nil)
			require.Equal(t, http.StatusOK, rec.Code)

			var health HealthResponse
			require.NoError(t, json.Unmarshal(env.Data, &health))
			assert.Equal(t, tt.status, health.Status)
			assert.Equal(t, tt.check, health.Checks["visitor_store:file"])
		})
	}
}
