// Package ratelimit implements the cache gateway's rate-limit service (C2):
// a per-client fixed-window token bucket backed by a shared, atomic
// key-value store so the limit holds across every process calling the
// gateway, not just the one handling the current request.
//
// The teacher's pkg/middleware/ratelimit.go implements the same token-
// bucket vocabulary (Allow, AllowN, Reset, stale-key eviction) but backs it
// with a process-local sync.Map, which spec §4.2/§9 explicitly rules out
// ("do not rely on process-local locks unless the deployment is guaranteed
// single-process"). This package keeps the teacher's naming and state
// machine but moves the bucket into Redis (github.com/redis/go-redis/v9,
// grounded on jordigilh-kubernaut's go.mod) via a Lua script so increment
// and first-window-expiry stay atomic under concurrent callers.
//
// Window expiry is Redis's own EXPIRE/TTL, not a locally-injected clock:
// the bucket has to decay the same way for every process sharing it, and
// only Redis's server clock can arbitrate that. An injectable clock belongs
// where expiry math actually runs against a local time.Now() call instead
// — see responsecache.Repository's cache TTL checks.
package ratelimit

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix matches spec §4.2: "api-cache:rate-limit:" + client.
const KeyPrefix = "api-cache:rate-limit:"

// UnlimitedSentinel is returned by RemainingAttempts for clients with no
// configured max_attempts (spec §4.2: "absent means unlimited").
const UnlimitedSentinel = int(^uint(0) >> 1) // max int

// Limits resolves per-client rate-limit configuration. Backed by the
// client descriptor config (spec §3); absent MaxAttempts means unlimited.
type Limits interface {
	MaxAttempts(client string) (attempts int, ok bool)
	DecaySeconds(client string) int
}

// incrementScript atomically increments the bucket counter and, only when
// this increment created the key (i.e. it is the first of a new window),
// arms the expiry. A plain INCR followed by a separate EXPIRE would leave a
// window between the two calls where a process crash (or just slow
// scheduling) leaves the key without a TTL, pinning the bucket exhausted
// forever (spec §4.2 concurrency contract: "no read-modify-write races").
var incrementScript = redis.NewScript(`
local used = redis.call("INCRBY", KEYS[1], ARGV[1])
if used == tonumber(ARGV[1]) then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return used
`)

// Service is the C2 rate-limit service.
type Service struct {
	rdb    *redis.Client
	limits Limits
}

// New creates a rate-limit service backed by rdb.
func New(rdb *redis.Client, limits Limits) *Service {
	return &Service{rdb: rdb, limits: limits}
}

// Key returns the deterministic bucket key for client (spec §4.2).
func Key(client string) string {
	return KeyPrefix + client
}

// MaxAttempts reads the client's configured bucket size, if any.
func (s *Service) MaxAttempts(client string) (int, bool) {
	return s.limits.MaxAttempts(client)
}

// DecaySeconds reads the client's decay window length.
func (s *Service) DecaySeconds(client string) int {
	return s.limits.DecaySeconds(client)
}

// RemainingAttempts returns max-used for client, or UnlimitedSentinel when
// the client has no configured max_attempts.
func (s *Service) RemainingAttempts(ctx context.Context, client string) (int, error) {
	max, ok := s.limits.MaxAttempts(client)
	if !ok {
		return UnlimitedSentinel, nil
	}

	used, err := s.usedCount(ctx, client)
	if err != nil {
		return 0, err
	}

	remaining := max - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// AvailableIn returns the seconds remaining until the bucket's current
// window resets, or 0 when attempts remain.
func (s *Service) AvailableIn(ctx context.Context, client string) (int, error) {
	remaining, err := s.RemainingAttempts(ctx, client)
	if err != nil {
		return 0, err
	}
	if remaining > 0 {
		return 0, nil
	}

	ttl, err := s.rdb.TTL(ctx, Key(client)).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return int(ttl.Seconds()), nil
}

// AllowRequest reports whether client has at least one remaining attempt.
// When it does not, a warning-level log is emitted with the available-in
// seconds (spec §4.2). Unlimited clients always return true without
// logging.
func (s *Service) AllowRequest(ctx context.Context, client string) (bool, error) {
	if _, ok := s.limits.MaxAttempts(client); !ok {
		return true, nil
	}

	remaining, err := s.RemainingAttempts(ctx, client)
	if err != nil {
		return false, err
	}
	if remaining >= 1 {
		return true, nil
	}

	availableIn, err := s.AvailableIn(ctx, client)
	if err != nil {
		return false, err
	}
	log.Printf("rate limit exhausted: client=%s available_in_seconds=%d", client, availableIn)
	return false, nil
}

// IncrementAttempts atomically adds amount (default 1) to client's bucket,
// arming the decay-window expiry on first use. Unlimited clients are a
// no-op. amount must be >= 1.
func (s *Service) IncrementAttempts(ctx context.Context, client string, amount int) error {
	if amount < 1 {
		amount = 1
	}
	if _, ok := s.limits.MaxAttempts(client); !ok {
		return nil
	}

	decay := s.limits.DecaySeconds(client)
	if decay <= 0 {
		decay = 1
	}

	_, err := incrementScript.Run(ctx, s.rdb, []string{Key(client)}, amount, decay).Result()
	if err != nil {
		return fmt.Errorf("ratelimit: increment: %w", err)
	}
	return nil
}

// Clear deletes client's bucket; the next request starts a fresh window.
func (s *Service) Clear(ctx context.Context, client string) error {
	if err := s.rdb.Del(ctx, Key(client)).Err(); err != nil {
		return fmt.Errorf("ratelimit: clear: %w", err)
	}
	return nil
}

func (s *Service) usedCount(ctx context.Context, client string) (int, error) {
	val, err := s.rdb.Get(ctx, Key(client)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: get: %w", err)
	}
	return val, nil
}
