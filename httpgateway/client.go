// Package httpgateway implements the C6 base HTTP client: the
// cache-lookup -> rate-check -> dispatch -> store pipeline every
// upstream-client subclass funnels through, plus its bounded parallel
// fan-out variant.
//
// Grounded on the teacher's cache-manager.Service.Get/Set request flow
// (cache-manager/service.go) for the single-request pipeline shape, and on
// warming/worker_pool.go for the bounded-concurrency idea behind parallel
// dispatch — generalized here to a one-shot errgroup + semaphore fan-out
// since a single SendCachedRequestsParallel call has no persistent queue to
// manage, unlike the teacher's long-lived warming pool.
package httpgateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"encore.app/pkg/metrics"
	"encore.app/pkg/models"
	"encore.app/responsecache"
)

// DefaultTimeout is the per-request HTTP timeout applied when the caller
// does not configure one (spec §5: "default 30 s").
const DefaultTimeout = 30 * time.Second

// CacheManager is the capability BaseClient needs from C5.
// *responsecache.Manager satisfies it.
type CacheManager interface {
	GenerateCacheKey(client, endpoint string, params map[string]any, method, version string) (string, error)
	GetCachedResponse(ctx context.Context, client, key string) (*models.Result, error)
	StoreResponse(ctx context.Context, in responsecache.StoreInput) (bool, error)
	LogError(ctx context.Context, entry models.ErrorLogEntry) error
	AllowRequest(ctx context.Context, client string) (bool, error)
	IncrementAttempts(ctx context.Context, client string, amount int) error
	GetRemainingAttempts(ctx context.Context, client string) (int, error)
	GetAvailableIn(ctx context.Context, client string) (int, error)
}

var _ CacheManager = (*responsecache.Manager)(nil)

// BaseClient is the C6 base HTTP client for one upstream client
// (spec §4.6). Vendor-specific subclasses embed this and call
// SendCachedRequest / SendCachedRequestsParallel from their own
// endpoint-shaped methods.
type BaseClient struct {
	ClientName string
	BaseURL    string
	Version    string

	Manager CacheManager
	Hooks   ClientHooks

	HTTPClient *http.Client

	// UseCache disables cache lookups entirely when false (spec §4.6.1
	// step 2: "only if useCache is true"). Defaults to true.
	UseCache bool

	// DispatchLimiter paces live dispatches in SendCachedRequestsParallel
	// beyond maxParallelDispatch's concurrency ceiling, smoothing bursts
	// against a provider that charges by request rate rather than just
	// concurrency. Nil (the default) applies no pacing.
	DispatchLimiter *rate.Limiter

	// group collapses concurrent cache-miss dispatches for the same key
	// into a single live HTTP call, generalized from the teacher's
	// cache-manager/singleflight.go stampede guard.
	group singleflight.Group

	// Metrics records cache/dispatch counters for this client when set.
	// Nil by default; a caller wires it to a shared *metrics.Registry
	// entry to surface it through an endpoint.
	Metrics *metrics.ClientMetrics
}

// NewBaseClient constructs a BaseClient with the spec's default timeout
// and ShouldCache/CalculateCost/CalculateCredits behavior when hooks is nil.
func NewBaseClient(clientName, baseURL, version string, manager CacheManager, hooks ClientHooks) *BaseClient {
	if hooks == nil {
		hooks = DefaultHooks{}
	}
	return &BaseClient{
		ClientName: clientName,
		BaseURL:    baseURL,
		Version:    version,
		Manager:    manager,
		Hooks:      hooks,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		UseCache:   true,
	}
}

// Request bundles one call's shape (spec §4.6.1 signature).
type Request struct {
	Endpoint   string
	Params     map[string]any
	Method     string
	Attributes string
	// Amount is the number of rate-limit credits this call reserves.
	// Zero defers to Hooks.CalculateCredits(endpoint).
	Amount int
	TTL    *time.Duration
}

func (c *BaseClient) fullURL(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if c.Version != "" {
		return fmt.Sprintf("%s/%s/%s", base, strings.Trim(c.Version, "/"), strings.TrimLeft(endpoint, "/"))
	}
	return fmt.Sprintf("%s/%s", base, strings.TrimLeft(endpoint, "/"))
}

// SendCachedRequest runs the full C6 pipeline for one request
// (spec §4.6.1).
func (c *BaseClient) SendCachedRequest(ctx context.Context, req Request) (models.Result, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	amount := req.Amount
	if amount <= 0 {
		amount = c.Hooks.CalculateCredits(req.Endpoint)
	}

	key, err := c.Manager.GenerateCacheKey(c.ClientName, req.Endpoint, req.Params, method, c.Version)
	if err != nil {
		return models.Result{}, fmt.Errorf("httpgateway: generate cache key: %w", err)
	}

	if c.UseCache {
		if cached, err := c.Manager.GetCachedResponse(ctx, c.ClientName, key); err != nil {
			return models.Result{}, fmt.Errorf("httpgateway: cache lookup: %w", err)
		} else if cached != nil {
			cached.IsCached = true
			if c.Metrics != nil {
				c.Metrics.RecordHit()
			}
			return *cached, nil
		}
	}

	allowed, err := c.Manager.AllowRequest(ctx, c.ClientName)
	if err != nil {
		return models.Result{}, fmt.Errorf("httpgateway: rate-limit check: %w", err)
	}
	if !allowed {
		availableIn, _ := c.Manager.GetAvailableIn(ctx, c.ClientName)
		if c.Metrics != nil {
			c.Metrics.RecordRateLimited()
		}
		return models.Result{}, &RateLimitExceeded{Client: c.ClientName, AvailableIn: availableIn}
	}
	if remaining, err := c.Manager.GetRemainingAttempts(ctx, c.ClientName); err == nil && remaining < amount {
		availableIn, _ := c.Manager.GetAvailableIn(ctx, c.ClientName)
		if c.Metrics != nil {
			c.Metrics.RecordRateLimited()
		}
		return models.Result{}, &RateLimitExceeded{Client: c.ClientName, AvailableIn: availableIn}
	}

	return c.dispatchAndStoreOnce(ctx, key, method, req, amount)
}

// dispatchAndStoreOnce collapses concurrent callers racing on the same
// cache key into a single live dispatch via c.group, then fans the shared
// result back out to each caller. A provider credit is only consumed once
// per collapsed group, since dispatchAndStore itself only runs once.
func (c *BaseClient) dispatchAndStoreOnce(ctx context.Context, key, method string, req Request, amount int) (models.Result, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.dispatchAndStore(ctx, key, method, req, amount)
	})
	if err != nil {
		return models.Result{}, err
	}
	result := v.(models.Result)
	return result, nil
}

// dispatchAndStore performs steps 4-8 of §4.6.1, shared by the single and
// parallel dispatch paths.
func (c *BaseClient) dispatchAndStore(ctx context.Context, key, method string, req Request, amount int) (models.Result, error) {
	fullURL := c.fullURL(req.Endpoint)

	httpReq, reqBodyBytes, err := c.buildRequest(ctx, method, fullURL, req.Params)
	if err != nil {
		return models.Result{}, fmt.Errorf("httpgateway: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(httpReq)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return models.Result{}, &NetworkFailure{Client: c.ClientName, Endpoint: req.Endpoint, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Result{}, &NetworkFailure{Client: c.ClientName, Endpoint: req.Endpoint, Cause: err}
	}

	// The request reached the provider: credits are consumed regardless of
	// status code (spec §4.6.1 step 5, §9 failure semantics table).
	if err := c.Manager.IncrementAttempts(ctx, c.ClientName, amount); err != nil {
		return models.Result{}, fmt.Errorf("httpgateway: increment attempts: %w", err)
	}

	respHeaders := headerBytes(resp.Header)

	if c.Metrics != nil {
		c.Metrics.RecordDispatch(resp.StatusCode, amount, time.Duration(elapsed*float64(time.Second)))
	}

	if resp.StatusCode >= 400 {
		c.logHTTPError(ctx, req.Endpoint, resp.StatusCode, respBody)
	}

	cost := c.Hooks.CalculateCost(respBody)
	shouldCache := c.Hooks.ShouldCache(respBody, resp.StatusCode)

	_, storeErr := c.Manager.StoreResponse(ctx, responsecache.StoreInput{
		Client:              c.ClientName,
		Key:                 key,
		Endpoint:            req.Endpoint,
		Method:              method,
		BaseURL:             c.BaseURL,
		FullURL:             fullURL,
		Version:             c.Version,
		Attributes:          req.Attributes,
		Credits:             amount,
		Cost:                cost,
		RequestHeaders:      headerBytes(httpReq.Header),
		RequestBody:         reqBodyBytes,
		ResponseHeaders:     respHeaders,
		ResponseBody:        respBody,
		ResponseStatusCode:  resp.StatusCode,
		ResponseSize:        len(respBody),
		ResponseTime:        elapsed,
		TTL:                 req.TTL,
		ShouldCache: func(body []byte) bool {
			return shouldCache
		},
	})
	if storeErr != nil {
		return models.Result{}, fmt.Errorf("httpgateway: store response: %w", storeErr)
	}

	return models.Result{
		Request: models.RequestSnapshot{
			BaseURL:    c.BaseURL,
			FullURL:    fullURL,
			Method:     method,
			Attributes: req.Attributes,
			Credits:    amount,
			Cost:       cost,
			Headers:    headerBytes(httpReq.Header),
			Body:       reqBodyBytes,
		},
		Response: models.ResponseSnapshot{
			Headers:    respHeaders,
			Body:       respBody,
			StatusCode: resp.StatusCode,
		},
		ResponseStatusCode: resp.StatusCode,
		ResponseSize:       len(respBody),
		ResponseTime:       elapsed,
		IsCached:           false,
	}, nil
}

func (c *BaseClient) logHTTPError(ctx context.Context, endpoint string, statusCode int, body []byte) {
	apiMessage := c.Hooks.LogHTTPError(statusCode, body)

	errContext := map[string]any{
		"endpoint":    endpoint,
		"status_code": statusCode,
	}
	contextJSON, _ := json.Marshal(errContext)

	_ = c.Manager.LogError(ctx, models.ErrorLogEntry{
		APIClient:    c.ClientName,
		ErrorType:    models.ErrorTypeHTTP,
		ErrorMessage: (&HttpStatusError{Client: c.ClientName, Endpoint: endpoint, StatusCode: statusCode, Body: body}).Error(),
		APIMessage:   apiMessage,
		ContextData:  contextJSON,
		CreatedAt:    time.Now(),
	})
}

// buildRequest composes the outbound HTTP request: JSON body for POST,
// query string for GET (spec §6). Auth headers/params from the client's
// hooks are merged in on every call.
func (c *BaseClient) buildRequest(ctx context.Context, method, fullURL string, params map[string]any) (*http.Request, []byte, error) {
	authParams := c.Hooks.AuthParams()

	var body io.Reader
	var bodyBytes []byte

	if method == http.MethodGet {
		u, err := url.Parse(fullURL)
		if err != nil {
			return nil, nil, err
		}
		q := u.Query()
		for k, v := range params {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		for k, v := range authParams {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		fullURL = u.String()
	} else {
		merged := make(map[string]any, len(params)+len(authParams))
		for k, v := range params {
			merged[k] = v
		}
		for k, v := range authParams {
			merged[k] = v
		}
		encoded, err := json.Marshal(merged)
		if err != nil {
			return nil, nil, err
		}
		bodyBytes = encoded
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, nil, err
	}
	if method != http.MethodGet {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.Hooks.AuthHeaders() {
		httpReq.Header.Set(k, v)
	}

	return httpReq, bodyBytes, nil
}

func headerBytes(h http.Header) []byte {
	if len(h) == 0 {
		return nil
	}
	out, _ := json.Marshal(h)
	return out
}
