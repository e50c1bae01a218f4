// Package models provides the canonical row and result types shared across
// the cache manager, base HTTP client, and response-processing framework.
//
// Design Philosophy:
// - Types here are persistence-shaped (they mirror table columns), not
//   API-shaped; API request/response types live with the services that
//   expose them.
// - No behavior beyond simple derived accessors (IsExpired) — the
//   orchestration logic lives in responsecache and httpgateway.
package models

import (
	"time"
)

// CacheEntry is one row of a per-client response table (spec §3 Cache entry).
type CacheEntry struct {
	Key     string
	Client  string
	Endpoint string
	Method  string
	BaseURL string
	FullURL string
	Version string

	Attributes  string
	Attributes2 string
	Attributes3 string

	Credits int
	Cost    *float64

	RequestHeaders  []byte
	RequestBody     []byte
	ResponseHeaders []byte
	ResponseBody    []byte

	ResponseStatusCode int
	ResponseSize       int
	ResponseTime       float64

	// Compressed records whether ResponseBody/RequestBody were written
	// through the compression service. Governs decompression on read even
	// if the client's compression flag has since changed (spec §3
	// invariant 3: "the stored flag on the row governs, not the current
	// config").
	Compressed bool

	ExpiresAt *time.Time

	ProcessedAt     *time.Time
	ProcessedStatus *ProcessedStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired reports whether the row should be treated as absent on lookup.
// Mirrors the teacher's TTLPolicy.ShouldEvict, generalized from an evictable
// in-memory entry to a persisted row that is never proactively deleted
// (spec §3 invariant 6: "not proactively deleted").
func (e *CacheEntry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return now.After(*e.ExpiresAt)
}

// ProcessedStatus records the outcome of a single processor run over a
// response (spec §4.8). Status is one of StatusOK or StatusError.
type ProcessedStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Counts int    `json:"counts"`
}

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// RequestSnapshot is the request-half of a Result (spec §4.6.1 step 8).
type RequestSnapshot struct {
	BaseURL     string   `json:"base_url"`
	FullURL     string   `json:"full_url"`
	Method      string   `json:"method"`
	Attributes  string   `json:"attributes,omitempty"`
	Attributes2 string   `json:"attributes2,omitempty"`
	Attributes3 string   `json:"attributes3,omitempty"`
	Credits     int      `json:"credits"`
	Cost        *float64 `json:"cost,omitempty"`
	Headers     []byte   `json:"headers,omitempty"`
	Body        []byte   `json:"body,omitempty"`
}

// ResponseSnapshot is the response-half of a Result.
type ResponseSnapshot struct {
	Headers    []byte `json:"headers,omitempty"`
	Body       []byte `json:"body,omitempty"`
	StatusCode int    `json:"status_code"`
}

// Result is the uniform value returned from SendCachedRequest and from each
// slot of SendCachedRequestsParallel (spec §4.6.1 step 8, §4.6.2).
type Result struct {
	Request            RequestSnapshot  `json:"request"`
	Response           ResponseSnapshot `json:"response"`
	ResponseStatusCode int              `json:"response_status_code"`
	ResponseSize       int              `json:"response_size"`
	ResponseTime       float64          `json:"response_time"`
	IsCached           bool             `json:"is_cached"`
	ExpiresAt          *time.Time       `json:"expires_at,omitempty"`
}
