package responsecache

import (
	"golang.org/x/text/cases"
)

// foldClient case-folds a client name before every registry lookup, so
// "DataForSEO", "dataforseo" and "DATAFORSEO" all resolve to the same
// configured client regardless of how the caller (a URL path segment, an
// operator-typed config key) happened to capitalize it.
var foldClient = cases.Fold().String

// ClientConfig is the per-client descriptor (spec §3 Client descriptor).
// Assembled as a plain struct literal by the service that owns client
// onboarding, the same way the teacher's cache-manager.Config is built in
// initService rather than loaded from a config file (spec §1 non-goal:
// "configuration file parsing" is out of the core's scope).
type ClientConfig struct {
	BaseURL     string
	Version     string
	Credential  Credential
	RateLimit   RateLimitConfig
	Compression bool
	CacheTTLSeconds *int

	PostbackURL string
	PingbackURL string

	// WebhookSecret signs inbound deferred-task deliveries for this client
	// (spec §4.7, §6). When empty, taskqueue falls back to a secret derived
	// from its master secret; with no master secret either, signature
	// verification is off for this client.
	WebhookSecret string
}

// Credential carries either an API key or a login/password pair. Never
// logged (spec §6): callers must not format this struct into log lines.
type Credential struct {
	APIKey   string
	Login    string
	Password string
}

// RateLimitConfig holds the per-client bucket shape (spec §4.2).
type RateLimitConfig struct {
	// MaxAttempts is nil for an unlimited client.
	MaxAttempts  *int
	DecaySeconds int
}

// ClientRegistry resolves client descriptors by name and satisfies both
// ratelimit.Limits and compress.EnabledFunc's backing lookup.
type ClientRegistry struct {
	clients map[string]ClientConfig
}

// NewClientRegistry builds a registry from a name-to-config map, folding
// every key so later lookups don't need to match the caller's casing.
func NewClientRegistry(clients map[string]ClientConfig) *ClientRegistry {
	folded := make(map[string]ClientConfig, len(clients))
	for name, cfg := range clients {
		folded[foldClient(name)] = cfg
	}
	return &ClientRegistry{clients: folded}
}

// Get returns the named client's config.
func (r *ClientRegistry) Get(client string) (ClientConfig, bool) {
	cfg, ok := r.clients[foldClient(client)]
	return cfg, ok
}

// MaxAttempts implements ratelimit.Limits.
func (r *ClientRegistry) MaxAttempts(client string) (int, bool) {
	cfg, ok := r.clients[foldClient(client)]
	if !ok || cfg.RateLimit.MaxAttempts == nil {
		return 0, false
	}
	return *cfg.RateLimit.MaxAttempts, true
}

// DecaySeconds implements ratelimit.Limits.
func (r *ClientRegistry) DecaySeconds(client string) int {
	cfg, ok := r.clients[foldClient(client)]
	if !ok || cfg.RateLimit.DecaySeconds <= 0 {
		return 60
	}
	return cfg.RateLimit.DecaySeconds
}

// CompressionEnabled backs compress.EnabledFunc.
func (r *ClientRegistry) CompressionEnabled(client string) bool {
	cfg, ok := r.clients[foldClient(client)]
	return ok && cfg.Compression
}

// SecretFor returns the client's webhook-signing secret, or "" when none is
// configured. Satisfies taskqueue.WebhookSecrets.
func (r *ClientRegistry) SecretFor(client string) string {
	cfg, ok := r.clients[foldClient(client)]
	if !ok {
		return ""
	}
	return cfg.WebhookSecret
}
