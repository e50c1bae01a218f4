package httpgateway

// ClientHooks models the per-vendor overrides the spec's subclasses apply
// (§9 Design Notes: "Dynamic method dispatch / duck-typed overrides" —
// logHttpError, shouldCache, calculateCost, calculateCredits). Each
// upstream-client subclass composes DefaultHooks and overrides only the
// methods it needs, the idiomatic Go stand-in for duck-typed overriding.
type ClientHooks interface {
	// AuthHeaders returns headers to attach to every dispatch for client.
	AuthHeaders() map[string]string
	// AuthParams returns query/body params merged into every dispatch.
	AuthParams() map[string]string
	// ShouldCache decides whether a successfully dispatched response should
	// be persisted. Default: always true.
	ShouldCache(responseBody []byte, statusCode int) bool
	// CalculateCost extracts a provider-reported cost from the response
	// body, if any. Default: nil (unknown).
	CalculateCost(responseBody []byte) *float64
	// CalculateCredits returns the number of rate-limit credits a call to
	// endpoint consumes. Default: 1.
	CalculateCredits(endpoint string) int
	// LogHTTPError extracts a human-readable api_message from an error
	// response body. Default: nil (malformed or unrecognized body).
	LogHTTPError(statusCode int, body []byte) *string
}

// DefaultHooks implements ClientHooks with the spec's stated defaults.
// Embed it in a vendor-specific hook type and override individual methods.
type DefaultHooks struct{}

func (DefaultHooks) AuthHeaders() map[string]string { return nil }
func (DefaultHooks) AuthParams() map[string]string  { return nil }

// ShouldCache defaults to true (spec §4.6.1 step 7: "default true").
func (DefaultHooks) ShouldCache([]byte, int) bool { return true }

func (DefaultHooks) CalculateCost([]byte) *float64 { return nil }

// CalculateCredits defaults to 1 (spec §3 invariant 2: "default 1").
func (DefaultHooks) CalculateCredits(string) int { return 1 }

func (DefaultHooks) LogHTTPError(int, []byte) *string { return nil }

var _ ClientHooks = DefaultHooks{}
