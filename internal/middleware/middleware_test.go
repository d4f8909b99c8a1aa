package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"crop-advisor/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORS(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"https://crops.example.com"}
	handler := CORS(config, logger.NewNop())(okHandler)

	tests := []struct {
		name           string
		method         string
		origin         string
		preflight      bool
		expectedStatus int
		expectedOrigin string
	}{
		{name: "allowed origin", method: http.MethodGet, origin: "https://crops.example.com", expectedStatus: http.StatusOK, expectedOrigin: "https://crops.example.com"},
		{name: "foreign origin", method: http.MethodGet, origin: "https://evil.example.com", expectedStatus: http.StatusOK},
		{name: "preflight", method: http.MethodOptions, origin: "https://crops.example.com", preflight: true, expectedStatus: http.StatusNoContent, expectedOrigin: "https://crops.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/crops", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.expectedOrigin != "" {
				assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
				assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, incoming, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid\r\n")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "not-a-uuid\r\n", seen)
}

func TestRequireAPIKey(t *testing.T) {
	tests := []struct {
		name           string
		apiKey         string
		header         string
		expectedStatus int
	}{
		{name: "open when unset", apiKey: "", expectedStatus: http.StatusOK},
		{name: "missing header", apiKey: "secret", expectedStatus: http.StatusUnauthorized},
		{name: "wrong scheme", apiKey: "secret", header: "Basic secret", expectedStatus: http.StatusUnauthorized},
		{name: "wrong key", apiKey: "secret", header: "Bearer nope", expectedStatus: http.StatusUnauthorized},
		{name: "valid key", apiKey: "secret", header: "Bearer secret", expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAPIKey(tt.apiKey, logger.NewNop())(okHandler)
			req := httptest.NewRequest(http.MethodPost, "/api/analytics/reset", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusUnauthorized {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, false, body["success"])
				assert.Equal(t, "authentication", body["error"].(map[string]interface{})["type"])
			}
		})
	}
}

// recorderFunc adapts a function to VisitRecorder
type recorderFunc func(ctx context.Context, now time.Time) (int64, error)

func (f recorderFunc) RecordVisit(ctx context.Context, now time.Time) (int64, error) {
	return f(ctx, now)
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		Secret:     []byte("test-secret"),
		CookieName: "test_session",
		TTL:        time.Hour,
	}
}

func serveWithCookies(handler http.Handler, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/crops", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSessionTracker_CountsOncePerSession(t *testing.T) {
	var visits atomic.Int64
	recorder := recorderFunc(func(ctx context.Context, now time.Time) (int64, error) {
		return visits.Add(1), nil
	})
	handler := SessionTracker(testSessionConfig(), recorder, logger.NewNop())(okHandler)

	first := serveWithCookies(handler, nil)
	require.Equal(t, http.StatusOK, first.Code)
	cookies := first.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "test_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	for i := 0; i < 5; i++ {
		rec := serveWithCookies(handler, cookies)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Result().Cookies(), "counted sessions are not re-issued")
	}
	assert.Equal(t, int64(1), visits.Load())

	// a second browser is a second session
	serveWithCookies(handler, nil)
	assert.Equal(t, int64(2), visits.Load())
}

func TestSessionTracker_RetriesAfterStorageFailure(t *testing.T) {
	var calls atomic.Int64
	failing := true
	recorder := recorderFunc(func(ctx context.Context, now time.Time) (int64, error) {
		calls.Add(1)
		if failing {
			return 0, errors.New("disk unavailable")
		}
		return 1, nil
	})

	var seen *SessionClaims
	handler := SessionTracker(testSessionConfig(), recorder, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetSession(r.Context())
	}))

	first := serveWithCookies(handler, nil)
	assert.Equal(t, http.StatusOK, first.Code)
	require.NotNil(t, seen)
	assert.False(t, seen.Counted)
	sessionID := seen.SessionID
	cookies := first.Result().Cookies()
	require.Len(t, cookies, 1)

	failing = false
	second := serveWithCookies(handler, cookies)
	assert.True(t, seen.Counted)
	assert.Equal(t, sessionID, seen.SessionID, "the same session is kept")
	assert.Equal(t, int64(2), calls.Load())

	serveWithCookies(handler, second.Result().Cookies())
	assert.Equal(t, int64(2), calls.Load())
}

func TestSessionTracker_RejectsForgedCookie(t *testing.T) {
	var visits atomic.Int64
	recorder := recorderFunc(func(ctx context.Context, now time.Time) (int64, error) {
		return visits.Add(1), nil
	})
	cfg := testSessionConfig()
	handler := SessionTracker(cfg, recorder, logger.NewNop())(okHandler)

	claims := newSession(time.Now(), time.Hour)
	claims.Counted = true
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	expired := newSession(time.Now().Add(-2*time.Hour), time.Hour)
	expired.Counted = true
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString(cfg.Secret)
	require.NoError(t, err)

	for _, value := range []string{forged, stale, "garbage"} {
		serveWithCookies(handler, []*http.Cookie{{Name: cfg.CookieName, Value: value}})
	}
	assert.Equal(t, int64(3), visits.Load())
}
