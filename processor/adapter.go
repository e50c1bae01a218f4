package processor

import (
	"context"

	"encore.app/pkg/models"
	"encore.app/responsecache"
)

// repositoryStore adapts *responsecache.Repository to ResponseStore.
type repositoryStore struct {
	repo *responsecache.Repository
}

// NewResponseStore wraps the C4 repository for use by a Runner.
func NewResponseStore(repo *responsecache.Repository) ResponseStore {
	return &repositoryStore{repo: repo}
}

func (s *repositoryStore) ScanUnprocessed(ctx context.Context, client string, limit int) ([]ResponseRow, error) {
	rows, err := s.repo.ScanUnprocessed(ctx, client, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ResponseRow, len(rows))
	for i, r := range rows {
		out[i] = ResponseRow{
			Key:                r.Key,
			Endpoint:           r.Endpoint,
			BaseURL:            r.BaseURL,
			ResponseStatusCode: r.ResponseStatusCode,
			ResponseBody:       r.ResponseBody,
			CreatedAt:          r.CreatedAt,
		}
	}
	return out, nil
}

func (s *repositoryStore) MarkProcessed(ctx context.Context, client, key string, status models.ProcessedStatus) error {
	return s.repo.MarkProcessed(ctx, client, key, status)
}

func (s *repositoryStore) ResetProcessed(ctx context.Context, client, endpointLikePattern string) (int, error) {
	return s.repo.ResetProcessed(ctx, client, endpointLikePattern)
}

var _ ResponseStore = (*repositoryStore)(nil)
