package httpgateway

import (
	"context"
	"fmt"
	"sync"

	"encore.app/pkg/models"
	"encore.app/responsecache"
)

// fakeManager is an in-memory stand-in for *responsecache.Manager, letting
// the C6 pipeline be exercised without a database or Redis instance —
// mirrors the teacher's MockAuditLogger/MockOriginFetcher style of testing
// a service's orchestration logic against hand-rolled fakes.
type fakeManager struct {
	mu sync.Mutex

	stored      map[string]models.Result
	maxAttempts int // 0 means unlimited
	used        int
	errors      []models.ErrorLogEntry
}

func newFakeManager(maxAttempts int) *fakeManager {
	return &fakeManager{
		stored:      make(map[string]models.Result),
		maxAttempts: maxAttempts,
	}
}

func (f *fakeManager) GenerateCacheKey(client, endpoint string, params map[string]any, method, version string) (string, error) {
	return cacheKeyForTest(client, endpoint, params, method, version), nil
}

func (f *fakeManager) GetCachedResponse(_ context.Context, _ string, key string) (*models.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.stored[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeManager) StoreResponse(_ context.Context, in responsecache.StoreInput) (bool, error) {
	if in.ShouldCache != nil && !in.ShouldCache(in.ResponseBody) {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[in.Key] = models.Result{
		Request: models.RequestSnapshot{
			BaseURL: in.BaseURL, FullURL: in.FullURL, Method: in.Method,
			Attributes: in.Attributes, Credits: in.Credits, Cost: in.Cost,
			Headers: in.RequestHeaders, Body: in.RequestBody,
		},
		Response: models.ResponseSnapshot{
			Headers: in.ResponseHeaders, Body: in.ResponseBody, StatusCode: in.ResponseStatusCode,
		},
		ResponseStatusCode: in.ResponseStatusCode,
		ResponseSize:       in.ResponseSize,
		ResponseTime:       in.ResponseTime,
	}
	return true, nil
}

func (f *fakeManager) LogError(_ context.Context, entry models.ErrorLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, entry)
	return nil
}

func (f *fakeManager) AllowRequest(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.maxAttempts == 0 {
		return true, nil
	}
	return f.used < f.maxAttempts, nil
}

func (f *fakeManager) IncrementAttempts(_ context.Context, _ string, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used += amount
	return nil
}

func (f *fakeManager) GetRemainingAttempts(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.maxAttempts == 0 {
		return 1 << 30, nil
	}
	return f.maxAttempts - f.used, nil
}

func (f *fakeManager) GetAvailableIn(_ context.Context, _ string) (int, error) {
	return 10, nil
}

func cacheKeyForTest(client, endpoint string, params map[string]any, method, version string) string {
	return fmt.Sprintf("%s|%s|%s|%s|%v", client, endpoint, method, version, params)
}
