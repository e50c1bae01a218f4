package models

import "time"

// ErrorLogEntry is an append-only row in the shared errors table
// (spec §3 Error log entry).
type ErrorLogEntry struct {
	ID          int64
	APIClient   string
	ErrorType   ErrorType
	ErrorMessage string
	APIMessage  *string
	ContextData []byte
	CreatedAt   time.Time
}

// ErrorType enumerates the taxonomy from spec §3/§7.
type ErrorType string

const (
	ErrorTypeHTTP       ErrorType = "http_error"
	ErrorTypeCacheReject ErrorType = "cache_rejected"
	ErrorTypeProcessing ErrorType = "processing_error"
)
