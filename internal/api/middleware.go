package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/signalnoise/workbench/internal/metrics"
)

// responseRecorder wraps http.ResponseWriter to capture the status code for
// logging and metrics.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	headerSent bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rr *responseRecorder) WriteHeader(code int) {
	if !rr.headerSent {
		rr.statusCode = code
		rr.headerSent = true
		rr.ResponseWriter.WriteHeader(code)
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDMiddleware generates a unique ID for every request, adds it to
// the request context, and returns it in the X-Request-ID response header.
// A caller-supplied X-Request-ID is reused.
func RequestIDMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context, or "" if absent.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// LoggerMiddleware logs every request with method, path, status, and
// duration. Health probes are skipped to keep the log readable.
func LoggerMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newResponseRecorder(w)

		next.ServeHTTP(rec, r)

		if r.URL.Path == "/health" && rec.statusCode < 400 {
			return
		}

		event := logger.Info()
		if rec.statusCode >= 400 {
			event = logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.statusCode).
			Dur("duration", time.Since(start)).
			Str("request_id", GetRequestID(r.Context())).
			Msg("request")
	})
}

// RecoveryMiddleware catches panics, logs the stack, and returns a 500
// without leaking internals.
func RecoveryMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error().
					Interface("panic", err).
					Bytes("stack", debug.Stack()).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("request_id", GetRequestID(r.Context())).
					Msg("panic recovered")
				metrics.APIErrorsTotal.WithLabelValues("500").Inc()
				respondDetail(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware sets CORS headers and handles OPTIONS preflight for the
// browser workbench.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MetricsMiddleware tracks request count, duration, and errors per endpoint.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		metrics.APIRequestsInFlight.WithLabelValues().Inc()
		defer metrics.APIRequestsInFlight.WithLabelValues().Dec()

		rec := newResponseRecorder(w)
		next.ServeHTTP(rec, r)

		endpoint := normalizeEndpoint(r.URL.Path)
		metrics.APIRequestsTotal.WithLabelValues(endpoint, r.Method).Inc()
		metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if rec.statusCode >= 400 {
			metrics.APIErrorsTotal.WithLabelValues(strconv.Itoa(rec.statusCode)).Inc()
		}
	})
}

// RateLimitMiddleware applies a global token-bucket rate limiter.
func RateLimitMiddleware(rps int, next http.Handler) http.Handler {
	if rps <= 0 {
		rps = 100
	}
	limiter := rate.NewLimiter(rate.Limit(rps), rps*2)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			metrics.RateLimitHitsTotal.WithLabelValues().Inc()
			respondDetail(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// normalizeEndpoint collapses dynamic path segments for metric labels.
func normalizeEndpoint(path string) string {
	switch {
	case path == "/health":
		return "/health"
	case strings.HasPrefix(path, "/sources"):
		return "/sources"
	case strings.HasPrefix(path, "/ingest-requests"):
		return "/ingest-requests"
	case strings.HasPrefix(path, "/documents"):
		return "/documents"
	case strings.HasPrefix(path, "/segments"):
		return "/segments"
	case strings.HasPrefix(path, "/hypotheses"):
		return "/hypotheses"
	case strings.HasPrefix(path, "/questions"):
		return "/questions"
	case strings.HasPrefix(path, "/analysis"):
		return "/analysis"
	case strings.HasPrefix(path, "/transcription-requests"):
		return "/transcription-requests"
	default:
		return "/other"
	}
}
