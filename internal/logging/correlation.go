package logging

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"
	RequestIDHeader     = "X-Request-ID"

	maxIDLength = 64
)

// GenerateCorrelationID returns a fresh "cor_" identifier
func GenerateCorrelationID() string { return newID("cor") }

// GenerateRequestID returns a fresh "req_" identifier
func GenerateRequestID() string { return newID("req") }

func newID(prefix string) string {
	id := uuid.New()
	return prefix + "_" + strings.ReplaceAll(id.String(), "-", "")[:16]
}

// CorrelationIDMiddleware tags each request context with correlation and
// request IDs, taken from the incoming headers when present, and echoes them
// back on the response.
func CorrelationIDMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := headerID(r, CorrelationIDHeader, GenerateCorrelationID)
			requestID := headerID(r, RequestIDHeader, GenerateRequestID)

			ctx := CreateContextWithIDs(r.Context(), correlationID, requestID)
			ctx = context.WithValue(ctx, ServiceKey, "chaos-http")

			w.Header().Set(CorrelationIDHeader, correlationID)
			w.Header().Set(RequestIDHeader, requestID)

			logger.RequestStart(ctx, r.Method, r.URL.Path, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func headerID(r *http.Request, header string, generate func() string) string {
	if id := SanitizeCorrelationID(r.Header.Get(header)); id != "" {
		return id
	}
	return generate()
}

// LoggingMiddleware logs every completed request with its status and size
func LoggingMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.RequestEnd(r.Context(), r.Method, r.URL.Path, rec.status, time.Since(start), rec.written)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(data []byte) (int, error) {
	n, err := s.ResponseWriter.Write(data)
	s.written += int64(n)
	return n, err
}

func stringValue(ctx context.Context, key ContextKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// ExtractCorrelationID returns the correlation ID carried by ctx, if any
func ExtractCorrelationID(ctx context.Context) string { return stringValue(ctx, CorrelationIDKey) }

// ExtractRequestID returns the request ID carried by ctx, if any
func ExtractRequestID(ctx context.Context) string { return stringValue(ctx, RequestIDKey) }

// CreateContextWithIDs attaches the non-empty IDs to ctx
func CreateContextWithIDs(ctx context.Context, correlationID, requestID string) context.Context {
	if correlationID != "" {
		ctx = context.WithValue(ctx, CorrelationIDKey, correlationID)
	}
	if requestID != "" {
		ctx = context.WithValue(ctx, RequestIDKey, requestID)
	}
	return ctx
}

// SanitizeCorrelationID strips control characters, which could forge log
// lines, and caps the length.
func SanitizeCorrelationID(id string) string {
	id = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, id)
	if len(id) > maxIDLength {
		id = id[:maxIDLength]
	}
	return id
}

// WithRunID tags ctx with the injection run identifier
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}
