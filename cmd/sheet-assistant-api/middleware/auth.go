// Package middleware provides HTTP middleware for the sheet assistant API.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
)

// Context keys for request-scoped values.
type contextKey string

// CallerKey is the context key for the authenticated caller.
const CallerKey contextKey = "caller"

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Enabled     bool
	APIKeys     []string
	PublicPaths []string
}

// Auth returns bearer API-key middleware. When disabled every request passes
// as caller "anonymous".
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isPublic(r.URL.Path, cfg.PublicPaths) {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CallerKey, "anonymous")))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error": "missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				http.Error(w, `{"error": "invalid authorization header format"}`, http.StatusUnauthorized)
				return
			}

			idx, ok := matchKey(strings.TrimSpace(parts[1]), cfg.APIKeys)
			if !ok {
				http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CallerKey, callerName(idx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func matchKey(token string, keys []string) (int, bool) {
	found := -1
	for i, k := range keys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(k)) == 1 && found < 0 {
			found = i
		}
	}
	return found, found >= 0
}

func callerName(idx int) string {
	return "api-key-" + strconv.Itoa(idx+1)
}

func isPublic(path string, public []string) bool {
	for _, p := range public {
		if path == p {
			return true
		}
	}
	return false
}

// CallerFromContext returns the authenticated caller, or "api".
func CallerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CallerKey).(string); ok && v != "" {
		return v
	}
	return "api"
}

// CORS returns CORS middleware for browser clients.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Trace puts the chi request id, or a fresh uuid, on the context as the
// trace id and echoes it in X-Trace-ID.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := chimiddleware.GetReqID(r.Context())
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set("X-Trace-ID", traceID)
		next.ServeHTTP(w, r.WithContext(observability.ContextWithTraceID(r.Context(), traceID)))
	})
}

// RequestLogger logs one line per request.
func RequestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	logger = observability.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.WithContext(r.Context()).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
