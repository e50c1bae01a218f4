package httpgateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"encore.app/pkg/models"
)

// maxParallelDispatch bounds concurrent live dispatches within one
// SendCachedRequestsParallel call (spec §5: "recommended: min(jobCount, 10)").
const maxParallelDispatch = 10

// JobResult pairs a parallel-dispatch slot with any per-job failure that did
// not abort its siblings (spec §4.6.2 item 4). Err is nil for a successful
// dispatch or cache hit.
type JobResult struct {
	Result models.Result
	Err    error
}

// SendCachedRequestsParallel fans out jobs concurrently, bounded by
// maxParallelDispatch, preserving input order in the output (spec §4.6.2).
//
// A RateLimitExceeded failure returned here means NO job was dispatched —
// the capacity check runs before any HTTP call, per spec step 2. Individual
// job failures after that point are reported per-slot in JobResult.Err and
// never abort siblings.
func (c *BaseClient) SendCachedRequestsParallel(ctx context.Context, jobs []Request) ([]JobResult, error) {
	results := make([]JobResult, len(jobs))
	keys := make([]string, len(jobs))
	amounts := make([]int, len(jobs))
	liveIdx := make([]int, 0, len(jobs))

	for i, job := range jobs {
		method := strings.ToUpper(job.Method)
		if method == "" {
			method = http.MethodGet
		}
		amount := job.Amount
		if amount <= 0 {
			amount = c.Hooks.CalculateCredits(job.Endpoint)
		}
		amounts[i] = amount

		key, err := c.Manager.GenerateCacheKey(c.ClientName, job.Endpoint, job.Params, method, c.Version)
		if err != nil {
			results[i] = JobResult{Err: fmt.Errorf("httpgateway: generate cache key: %w", err)}
			continue
		}
		keys[i] = key

		if c.UseCache {
			cached, err := c.Manager.GetCachedResponse(ctx, c.ClientName, key)
			if err != nil {
				results[i] = JobResult{Err: fmt.Errorf("httpgateway: cache lookup: %w", err)}
				continue
			}
			if cached != nil {
				cached.IsCached = true
				if c.Metrics != nil {
					c.Metrics.RecordHit()
				}
				results[i] = JobResult{Result: *cached}
				continue
			}
		}

		liveIdx = append(liveIdx, i)
	}

	if len(liveIdx) == 0 {
		return results, nil
	}

	// Check-then-dispatch with no reservation: each live job still calls
	// IncrementAttempts on its own, so a concurrent caller consuming credits
	// between this check and the dispatches below can push usage past the
	// limit.
	needed := 0
	for _, i := range liveIdx {
		needed += amounts[i]
	}
	remaining, err := c.Manager.GetRemainingAttempts(ctx, c.ClientName)
	if err != nil {
		return nil, fmt.Errorf("httpgateway: rate-limit capacity check: %w", err)
	}
	if remaining < needed {
		availableIn, _ := c.Manager.GetAvailableIn(ctx, c.ClientName)
		if c.Metrics != nil {
			c.Metrics.RecordRateLimited()
		}
		return nil, &RateLimitExceeded{Client: c.ClientName, AvailableIn: availableIn}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(maxParallelDispatch, len(liveIdx)))

	for _, i := range liveIdx {
		i := i
		job := jobs[i]
		method := strings.ToUpper(job.Method)
		if method == "" {
			method = http.MethodGet
		}
		key := keys[i]
		amount := amounts[i]

		g.Go(func() error {
			select {
			case <-gctx.Done():
				results[i] = JobResult{Err: &CancelledError{Client: c.ClientName, Endpoint: job.Endpoint}}
				return nil
			default:
			}

			if c.DispatchLimiter != nil {
				if err := c.DispatchLimiter.Wait(gctx); err != nil {
					results[i] = JobResult{Err: &CancelledError{Client: c.ClientName, Endpoint: job.Endpoint}}
					return nil
				}
			}

			result, err := c.dispatchAndStoreOnce(gctx, key, method, job, amount)
			if err != nil {
				if gctx.Err() != nil {
					results[i] = JobResult{Err: &CancelledError{Client: c.ClientName, Endpoint: job.Endpoint}}
					return nil
				}
				results[i] = JobResult{Err: err}
				return nil
			}
			results[i] = JobResult{Result: result}
			return nil
		})
	}

	// Individual job failures are captured per-slot above, never returned
	// from g.Wait(), so sibling jobs are never aborted by one failure
	// (spec §4.6.2 item 4). g.Wait()'s error is therefore always nil here;
	// SetLimit's own panics on misuse are the only way it would not be.
	_ = g.Wait()

	return results, nil
}
