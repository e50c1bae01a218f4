// Package processor implements the C8 response-processing framework:
// a Runner drives one Processor at a time over a client's stored
// responses, extracting normalized rows into destination tables and
// marking each response processed exactly once.
//
// Grounded on invalidation/service.go's scan-then-act shape and
// invalidation/patterns.go's wildcard matching, generalized from
// pattern-matched cache-key invalidation to pattern-matched response
// extraction.
package processor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"encore.app/pkg/models"
)

// SandboxBaseURLMarker is matched against a response's base_url to decide
// whether it came from a provider's sandbox environment (spec §4.8
// skipSandbox policy, glossary "Sandbox response").
const SandboxBaseURLMarker = "sandbox"

// Stats accumulates one processResponses/processResponsesAll run's outcome
// (spec §4.8).
type Stats struct {
	Scanned    int
	Processed  int
	Upserted   int
	Duplicates int
	Skipped    int
	Errors     int
}

func (s *Stats) add(other Stats) {
	s.Scanned += other.Scanned
	s.Processed += other.Processed
	s.Upserted += other.Upserted
	s.Duplicates += other.Duplicates
	s.Skipped += other.Skipped
	s.Errors += other.Errors
}

// Policies are the per-processor-instance mutable settings (spec §4.8).
type Policies struct {
	// SkipSandbox skips rows whose base_url identifies a sandbox endpoint.
	SkipSandbox bool
	// UpdateIfNewer overwrites an existing destination row on key
	// collision only when the new response is newer.
	UpdateIfNewer bool
	// SkipNestedItems controls whether a processor descends into nested
	// structures (e.g. People-Also-Ask items inside a SERP).
	SkipNestedItems bool
}

// DefaultPolicies mirrors the spec's defaults: skipSandbox=true,
// updateIfNewer=true, skipNestedItems=false.
func DefaultPolicies() Policies {
	return Policies{SkipSandbox: true, UpdateIfNewer: true, SkipNestedItems: false}
}

// Processor extracts entities from one endpoint family's raw responses and
// upserts them into its own destination table(s) (spec §4.8).
type Processor interface {
	// Name identifies the processor for logging and table ownership.
	Name() string
	// EndpointPattern is matched against each response's endpoint
	// (prefix*, *suffix, *contains*, exact, or a wildcard elsewhere such
	// as a middle segment — see matchEndpoint).
	EndpointPattern() string
	// EnsureSchema creates the processor's destination table(s) if absent.
	EnsureSchema(ctx context.Context) error
	// Extract parses a response body and upserts rows into the
	// destination table(s), honoring policies. It returns the number of
	// rows newly inserted or updated, and the number skipped as
	// duplicates under updateIfNewer=false.
	Extract(ctx context.Context, row ResponseRow, policies Policies) (upserted, duplicates int, err error)
	// ClearTables truncates the destination table(s). When withCount is
	// true it returns the number of rows removed; otherwise it returns
	// nil to signal "not measured" (spec §4.8 clearProcessedTables).
	ClearTables(ctx context.Context, withCount bool) (*int, error)
}

// Runner drives a single Processor against one client's response table.
type Runner struct {
	Store     ResponseStore
	Client    string
	Processor Processor
	Policies  Policies
}

// NewRunner builds a Runner with spec-default policies.
func NewRunner(store ResponseStore, client string, p Processor) *Runner {
	return &Runner{Store: store, Client: client, Processor: p, Policies: DefaultPolicies()}
}

// ProcessResponses implements spec §4.8's processResponses(limit): scan up
// to limit unprocessed rows, filter to this processor's endpoint pattern,
// extract and mark each one.
func (r *Runner) ProcessResponses(ctx context.Context, limit int) (Stats, error) {
	var stats Stats

	if err := r.Processor.EnsureSchema(ctx); err != nil {
		return stats, fmt.Errorf("processor: ensure schema for %s: %w", r.Processor.Name(), err)
	}

	rows, err := r.Store.ScanUnprocessed(ctx, r.Client, limit)
	if err != nil {
		return stats, fmt.Errorf("processor: scan unprocessed: %w", err)
	}
	stats.Scanned = len(rows)

	pattern := r.Processor.EndpointPattern()

	for _, row := range rows {
		if !matchEndpoint(pattern, row.Endpoint) {
			// Not this processor's endpoint family: leave unmarked so
			// another processor (or a later run of this one after a
			// pattern change) can still pick it up (spec §4.8 extraction
			// policy: "endpoints not matching... silently skipped, not
			// marked").
			continue
		}
		if row.ResponseStatusCode != 200 {
			continue
		}
		if r.Policies.SkipSandbox && strings.Contains(row.BaseURL, SandboxBaseURLMarker) {
			continue
		}

		upserted, duplicates, extractErr := r.Processor.Extract(ctx, row, r.Policies)
		if extractErr != nil {
			stats.Errors++
			status := models.ProcessedStatus{Status: models.StatusError, Error: extractErr.Error(), Counts: 0}
			if markErr := r.Store.MarkProcessed(ctx, r.Client, row.Key, status); markErr != nil {
				log.Printf("processor: mark-error failed for %s key=%s: %v", r.Processor.Name(), row.Key, markErr)
			}
			stats.Processed++
			continue
		}

		stats.Upserted += upserted
		stats.Duplicates += duplicates
		status := models.ProcessedStatus{Status: models.StatusOK, Counts: upserted}
		if err := r.Store.MarkProcessed(ctx, r.Client, row.Key, status); err != nil {
			return stats, fmt.Errorf("processor: mark processed key=%s: %w", row.Key, err)
		}
		stats.Processed++
	}

	return stats, nil
}

// ProcessResponsesAll implements spec §4.8's processResponsesAll(batchSize):
// loop ProcessResponses until a batch comes back short (Scanned <
// batchSize), accumulating stats across batches.
//
// ScanUnprocessed is shared across every processor wired against a client,
// so a batch can come back full (Scanned == batchSize) yet contain nothing
// this processor's pattern matches — those rows are left unmarked for a
// sibling processor and would otherwise be rescanned forever. Stopping on
// no-progress (Processed == 0) as well as on a short batch prevents that
// hang.
func (r *Runner) ProcessResponsesAll(ctx context.Context, batchSize int) (Stats, error) {
	var total Stats
	for {
		batch, err := r.ProcessResponses(ctx, batchSize)
		if err != nil {
			return total, err
		}
		total.add(batch)
		if batch.Scanned < batchSize || batch.Processed == 0 {
			return total, nil
		}
	}
}

// ResetProcessed implements spec §4.8's resetProcessed(): clear
// processed_at/processed_status only for rows matching this processor's
// own endpoint pattern.
func (r *Runner) ResetProcessed(ctx context.Context) (int, error) {
	return r.Store.ResetProcessed(ctx, r.Client, likePattern(r.Processor.EndpointPattern()))
}

// ClearProcessedTables implements spec §4.8's clearProcessedTables.
func (r *Runner) ClearProcessedTables(ctx context.Context, withCount bool) (*int, error) {
	return r.Processor.ClearTables(ctx, withCount)
}
