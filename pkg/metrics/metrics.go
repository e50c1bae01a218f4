// Package metrics collects per-client gateway counters and exposes
// point-in-time snapshots in the shape pkg/models renders to Prometheus.
//
// Grounded on the teacher's monitoring service (deleted in the final
// adaptation pass, see DESIGN.md) for the counter/snapshot split: hot-path
// increments stay lock-free, percentile math runs only on read.
package metrics

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"encore.app/pkg/models"
)

// maxLatencySamples bounds the ring buffer used for percentile math. Older
// samples are overwritten once the buffer fills; percentiles are computed
// from whatever is currently held, not a lifetime history.
const maxLatencySamples = 1024

// ClientMetrics accumulates counters for one client. Increment methods are
// safe for concurrent use from every BaseClient call site.
type ClientMetrics struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	dispatches  atomic.Uint64
	httpErrors  atomic.Uint64
	rateLimited atomic.Uint64
	credits     atomic.Uint64

	mu      sync.Mutex
	samples []time.Duration
	next    int
}

func newClientMetrics() *ClientMetrics {
	return &ClientMetrics{samples: make([]time.Duration, 0, maxLatencySamples)}
}

// RecordHit counts one cache hit that skipped dispatch.
func (m *ClientMetrics) RecordHit() {
	m.hits.Inc()
}

// RecordRateLimited counts one call rejected before dispatch.
func (m *ClientMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

// RecordDispatch counts one live HTTP call: a cache miss that reached the
// wire, its resulting status code, the credits it consumed, and the
// latency sample for percentile math.
func (m *ClientMetrics) RecordDispatch(statusCode, credits int, latency time.Duration) {
	m.misses.Inc()
	m.dispatches.Inc()
	m.credits.Add(uint64(credits))
	if statusCode >= 400 {
		m.httpErrors.Inc()
	}

	m.mu.Lock()
	if len(m.samples) < maxLatencySamples {
		m.samples = append(m.samples, latency)
	} else {
		m.samples[m.next] = latency
		m.next = (m.next + 1) % maxLatencySamples
	}
	m.mu.Unlock()
}

// Snapshot renders the current counters into a models.MetricSnapshot.
func (m *ClientMetrics) Snapshot() models.MetricSnapshot {
	m.mu.Lock()
	samples := make([]time.Duration, len(m.samples))
	copy(samples, m.samples)
	m.mu.Unlock()

	latency := models.CalculateLatencySummary(samples)

	return models.NewMetricSnapshot(
		m.hits.Load(),
		m.misses.Load(),
		m.dispatches.Load(),
		m.httpErrors.Load(),
		m.rateLimited.Load(),
		m.credits.Load(),
		latency,
	)
}

// Registry tracks one ClientMetrics per client name, created on first use.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*ClientMetrics
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*ClientMetrics)}
}

// ForClient returns the ClientMetrics for client, creating it on first call.
func (r *Registry) ForClient(client string) *ClientMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	cm, ok := r.clients[client]
	if !ok {
		cm = newClientMetrics()
		r.clients[client] = cm
	}
	return cm
}

// Snapshot returns a snapshot for client, or the zero value if nothing has
// been recorded for it yet.
func (r *Registry) Snapshot(client string) models.MetricSnapshot {
	r.mu.Lock()
	cm, ok := r.clients[client]
	r.mu.Unlock()
	if !ok {
		return models.NewMetricSnapshot(0, 0, 0, 0, 0, 0, models.LatencySummary{})
	}
	return cm.Snapshot()
}

// Clients lists every client name with at least one recorded metric.
func (r *Registry) Clients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
