package processor

import (
	"context"
	"time"

	"encore.app/pkg/models"
)

// ResponseRow is the minimal view of a cache entry a processor needs
// (spec §4.8).
type ResponseRow struct {
	Key                string
	Endpoint           string
	BaseURL            string
	ResponseStatusCode int
	ResponseBody       []byte
	CreatedAt          time.Time
}

// ResponseStore is the capability a Runner needs from C4 to drive C8.
// NewResponseStore (adapter.go) wraps *responsecache.Repository to
// satisfy this without responsecache importing processor.
type ResponseStore interface {
	ScanUnprocessed(ctx context.Context, client string, limit int) ([]ResponseRow, error)
	MarkProcessed(ctx context.Context, client, key string, status models.ProcessedStatus) error
	ResetProcessed(ctx context.Context, client, endpointLikePattern string) (int, error)
}
