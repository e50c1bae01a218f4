package models

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// MetricSnapshot is a point-in-time summary of gateway activity for one
// client: cache effectiveness, rate-limit pressure, and dispatch latency.
// Adapted from the teacher's L1/L2 cache snapshot (percentile math kept
// verbatim) to the request-lifecycle counters this gateway actually emits.
type MetricSnapshot struct {
	Timestamp time.Time

	CacheHits   uint64
	CacheMisses uint64
	Dispatches  uint64 // HTTP calls actually sent (cache misses that reached the wire)
	HTTPErrors  uint64 // dispatches that returned status >= 400
	RateLimited uint64 // calls rejected by AllowRequest before dispatch

	CreditsConsumed uint64

	Latency LatencySummary

	HitRate float64
}

// LatencySummary provides a statistical summary of response_time samples.
type LatencySummary struct {
	Count uint64
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
	P50   time.Duration
	P90   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// NewMetricSnapshot builds a snapshot with the derived hit rate filled in.
func NewMetricSnapshot(hits, misses, dispatches, httpErrors, rateLimited, credits uint64, latency LatencySummary) MetricSnapshot {
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return MetricSnapshot{
		Timestamp:       time.Now(),
		CacheHits:       hits,
		CacheMisses:     misses,
		Dispatches:      dispatches,
		HTTPErrors:      httpErrors,
		RateLimited:     rateLimited,
		CreditsConsumed: credits,
		Latency:         latency,
		HitRate:         hitRate,
	}
}

// TotalRequests returns cache hits plus cache misses.
func (m *MetricSnapshot) TotalRequests() uint64 {
	return m.CacheHits + m.CacheMisses
}

// ErrorRate returns HTTP errors per dispatch (0 when there were no dispatches).
func (m *MetricSnapshot) ErrorRate() float64 {
	if m.Dispatches == 0 {
		return 0
	}
	return float64(m.HTTPErrors) / float64(m.Dispatches)
}

// UpdateLatency folds a new response_time sample into summary, updating
// count/sum/min/max cheaply. Percentiles require CalculateLatencySummary
// over the raw samples — this keeps the hot path allocation-free.
func UpdateLatency(summary *LatencySummary, sample time.Duration) {
	if summary.Count == 0 {
		summary.Min = sample
		summary.Max = sample
	} else {
		if sample < summary.Min {
			summary.Min = sample
		}
		if sample > summary.Max {
			summary.Max = sample
		}
	}
	summary.Count++
	summary.Sum += sample
}

// CalculateLatencySummary computes an exact latency summary from samples.
// Complexity: O(n log n) for the percentile sort.
func CalculateLatencySummary(samples []time.Duration) LatencySummary {
	if len(samples) == 0 {
		return LatencySummary{}
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, s := range sorted {
		sum += s
	}

	return LatencySummary{
		Count: uint64(len(sorted)),
		Sum:   sum,
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   percentileDuration(sorted, 0.50),
		P90:   percentileDuration(sorted, 0.90),
		P95:   percentileDuration(sorted, 0.95),
		P99:   percentileDuration(sorted, 0.99),
	}
}

// AvgLatency returns the mean latency, or 0 when no samples were recorded.
func (ls *LatencySummary) AvgLatency() time.Duration {
	if ls.Count == 0 {
		return 0
	}
	return ls.Sum / time.Duration(ls.Count)
}

// SnapshotToPrometheusFormat flattens a snapshot into name->value pairs
// suitable for a Prometheus gauge sweep.
func SnapshotToPrometheusFormat(snapshot MetricSnapshot, prefix string) map[string]float64 {
	metrics := make(map[string]float64)

	metrics[fmt.Sprintf("%s_hits_total", prefix)] = float64(snapshot.CacheHits)
	metrics[fmt.Sprintf("%s_misses_total", prefix)] = float64(snapshot.CacheMisses)
	metrics[fmt.Sprintf("%s_dispatches_total", prefix)] = float64(snapshot.Dispatches)
	metrics[fmt.Sprintf("%s_http_errors_total", prefix)] = float64(snapshot.HTTPErrors)
	metrics[fmt.Sprintf("%s_rate_limited_total", prefix)] = float64(snapshot.RateLimited)
	metrics[fmt.Sprintf("%s_credits_consumed_total", prefix)] = float64(snapshot.CreditsConsumed)

	metrics[fmt.Sprintf("%s_hit_rate", prefix)] = snapshot.HitRate
	metrics[fmt.Sprintf("%s_error_rate", prefix)] = snapshot.ErrorRate()

	metrics[fmt.Sprintf("%s_latency_avg_ms", prefix)] = float64(snapshot.Latency.AvgLatency().Milliseconds())
	metrics[fmt.Sprintf("%s_latency_min_ms", prefix)] = float64(snapshot.Latency.Min.Milliseconds())
	metrics[fmt.Sprintf("%s_latency_max_ms", prefix)] = float64(snapshot.Latency.Max.Milliseconds())
	metrics[fmt.Sprintf("%s_latency_p50_ms", prefix)] = float64(snapshot.Latency.P50.Milliseconds())
	metrics[fmt.Sprintf("%s_latency_p90_ms", prefix)] = float64(snapshot.Latency.P90.Milliseconds())
	metrics[fmt.Sprintf("%s_latency_p95_ms", prefix)] = float64(snapshot.Latency.P95.Milliseconds())
	metrics[fmt.Sprintf("%s_latency_p99_ms", prefix)] = float64(snapshot.Latency.P99.Milliseconds())

	return metrics
}

func percentileDuration(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}

	index := p * float64(len(samples)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return samples[lower]
	}

	weight := index - float64(lower)
	return time.Duration(float64(samples[lower])*(1-weight) + float64(samples[upper])*weight)
}
