package reqlog

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestRequestIDFromHeaderUsesExistingID(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhooks/dataforseo", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")

	if got := RequestIDFromHeader(req); got != "caller-supplied-id" {
		t.Fatalf("RequestIDFromHeader() = %q, want %q", got, "caller-supplied-id")
	}
}

func TestRequestIDFromHeaderGeneratesWhenMissing(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhooks/dataforseo", nil)

	got := RequestIDFromHeader(req)
	if got == "" {
		t.Fatal("expected a generated request ID")
	}
}

func TestWithRequestIDRoundTrips(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Fatalf("RequestIDFromContext() = %q, want %q", got, "req-123")
	}
}

func TestRequestIDFromContextEmptyWhenUnset(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("RequestIDFromContext() = %q, want empty", got)
	}
}

func TestNewRequestIDProducesDistinctValues(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	if a == b {
		t.Fatal("expected distinct request IDs")
	}
}
