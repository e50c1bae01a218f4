// Package reqlog provides request-correlation IDs and structured JSON
// request logging, generalized from the teacher's HTTP request-logging
// middleware to this gateway's raw endpoints (taskqueue.Webhook) and
// background sweeps (processor.Service.SweepAll), which have no shared
// net/http router to hang a conventional middleware chain off of.
package reqlog

import (
	"context"
	"log"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request-id"

// NewRequestID generates a fresh correlation ID, used whenever an inbound
// request or background job has none of its own to propagate.
func NewRequestID() string {
	return uuid.New().String()
}

// RequestIDFromHeader returns the caller-supplied X-Request-ID, or a fresh
// one if the header is absent.
func RequestIDFromHeader(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return NewRequestID()
}

// WithRequestID attaches a request ID to the context for downstream use.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID stashed by WithRequestID.
// Returns "" if none was attached.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// LogHTTP writes one structured JSON line for a completed HTTP request.
// Log level follows the status code: 5xx logs as ERROR, 4xx as WARN,
// everything else as INFO.
func LogHTTP(requestID, method, path string, statusCode int, duration time.Duration) {
	entry := map[string]any{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"request_id":  requestID,
		"method":      method,
		"path":        path,
		"status":      statusCode,
		"duration_ms": duration.Milliseconds(),
	}
	writeLevelled(statusCode, entry)
}

// LogEvent writes one structured JSON line for a non-HTTP occurrence (a
// background sweep, a reconciliation), tagged with the same request ID
// scheme HTTP logging uses.
func LogEvent(requestID, message string, fields map[string]any) {
	entry := map[string]any{
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
		"message":    message,
	}
	for k, v := range fields {
		entry[k] = v
	}
	writeLevelled(200, entry)
}

func writeLevelled(statusCode int, entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[ERROR] reqlog: failed to marshal log entry: %v", err)
		return
	}
	switch {
	case statusCode >= 500:
		log.Printf("[ERROR] %s", data)
	case statusCode >= 400:
		log.Printf("[WARN] %s", data)
	default:
		log.Printf("[INFO] %s", data)
	}
}
