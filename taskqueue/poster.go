// Package taskqueue implements the C7 deferred-task reconciliation pattern:
// tag a provider-side asynchronous task with the cache key the eventual
// webhook delivery must be stored under, so a later identical call finds it
// already cached (spec §4.7, glossary "tag threading").
package taskqueue

import (
	"context"
	"errors"
	"fmt"

	"encore.app/httpgateway"
	"encore.app/pkg/models"
)

// ErrNotCachedAndPostDisabled is returned when a Standard call misses cache
// and the caller has postTaskIfNotCached=false — the spec leaves this
// outcome to the caller, it is neither a cache hit nor a task-post.
var ErrNotCachedAndPostDisabled = errors.New("taskqueue: not cached and postTaskIfNotCached is false")

// StandardRequest describes one "Standard*" method invocation (spec §4.7).
type StandardRequest struct {
	// SearchEndpoint and SearchParams determine the cache key the eventual
	// result will be stored under — they must exclude webhook URLs and
	// control flags (spec §4.3: "deliberately excluded... stripped by the
	// calling client before key generation").
	SearchEndpoint string
	SearchParams   map[string]any
	Method         string

	PostTaskIfNotCached bool
	TaskPostEndpoint    string
	PostbackURL         string
	PostbackDataType    string
	PingbackURL         string
}

// Poster drives the tag-threading pattern against a base client.
type Poster struct {
	Client *httpgateway.BaseClient
}

// NewPoster wraps a base client with the task-post/tag-threading pattern.
func NewPoster(client *httpgateway.BaseClient) *Poster {
	return &Poster{Client: client}
}

// Post implements the Standard* algorithm (spec §4.7):
//  1. compute key from search params only,
//  2. return the cached result if present,
//  3. otherwise, when allowed, post the provider task tagged with that key
//     and return the post acknowledgment (itself cached under its own key).
func (p *Poster) Post(ctx context.Context, req StandardRequest) (models.Result, error) {
	method := req.Method
	if method == "" {
		method = "POST"
	}

	key, err := p.Client.Manager.GenerateCacheKey(p.Client.ClientName, req.SearchEndpoint, req.SearchParams, method, p.Client.Version)
	if err != nil {
		return models.Result{}, fmt.Errorf("taskqueue: generate cache key: %w", err)
	}

	cached, err := p.Client.Manager.GetCachedResponse(ctx, p.Client.ClientName, key)
	if err != nil {
		return models.Result{}, fmt.Errorf("taskqueue: cache lookup: %w", err)
	}
	if cached != nil {
		cached.IsCached = true
		return *cached, nil
	}

	if !req.PostTaskIfNotCached {
		return models.Result{}, ErrNotCachedAndPostDisabled
	}

	taskParams := make(map[string]any, len(req.SearchParams)+3)
	for k, v := range req.SearchParams {
		taskParams[k] = v
	}
	taskParams["tag"] = key
	if req.PostbackURL != "" {
		taskParams["postback_url"] = req.PostbackURL
		taskParams["postback_data"] = req.PostbackDataType
	}
	if req.PingbackURL != "" {
		taskParams["pingback_url"] = req.PingbackURL
	}

	return p.Client.SendCachedRequest(ctx, httpgateway.Request{
		Endpoint: req.TaskPostEndpoint,
		Params:   taskParams,
		Method:   method,
	})
}
