package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"crop-advisor/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionIssuer = "crop-advisor"

// SessionClaims is the signed session cookie payload.
// Counted is the session marker: it flips to true after the first recorded visit.
type SessionClaims struct {
	SessionID string `json:"sid"`
	Counted   bool   `json:"counted"`
	jwt.RegisteredClaims
}

// SessionConfig configures the visitor session cookie
type SessionConfig struct {
	Secret     []byte
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// VisitRecorder is the part of the visitor store the session tracker needs
type VisitRecorder interface {
	RecordVisit(ctx context.Context, now time.Time) (int64, error)
}

// SessionTracker counts each browsing session exactly once.
// New sessions and sessions whose marker is still false trigger one RecordVisit;
// the marker is only set after that call succeeds. A storage failure never
// fails the request, the visit is retried on the session's next request.
func SessionTracker(cfg SessionConfig, recorder VisitRecorder, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "crop_session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			ctx := r.Context()

			claims, err := parseSession(r, cfg)
			if err != nil {
				log.WithError(err).Debug("Starting new visitor session")
				claims = newSession(now, cfg.TTL)
			}

			if !claims.Counted {
				count, err := recorder.RecordVisit(ctx, now)
				if err != nil {
					log.WithFields(map[string]interface{}{
						"session_id": claims.SessionID,
						"request_id": GetRequestID(ctx),
					}).WithError(err).Warn("Failed to record visit, session left uncounted")
				} else {
					claims.Counted = true
					log.WithFields(map[string]interface{}{
						"session_id": claims.SessionID,
						"count":      count,
					}).Debug("Session counted")
				}

				if err := writeSession(w, claims, cfg); err != nil {
					log.WithError(err).Error("Failed to sign session cookie")
				}
			}

			ctx = context.WithValue(ctx, SessionContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession returns the session claims stored by SessionTracker
func GetSession(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(SessionContextKey).(*SessionClaims)
	return claims, ok
}

func newSession(now time.Time, ttl time.Duration) *SessionClaims {
	return &SessionClaims{
		SessionID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func parseSession(r *http.Request, cfg SessionConfig) (*SessionClaims, error) {
	cookie, err := r.Cookie(cfg.CookieName)
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(cookie.Value, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid session cookie: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session claims")
	}
	if _, err := uuid.Parse(claims.SessionID); err != nil {
		return nil, fmt.Errorf("invalid session id: %w", err)
	}

	return claims, nil
}

// writeSession keeps the original expiry so a session has a fixed lifetime
func writeSession(w http.ResponseWriter, claims *SessionClaims, cfg SessionConfig) error {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
