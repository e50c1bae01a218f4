package responsecache

import (
	"context"
	"fmt"
	"regexp"

	"encore.dev/storage/sqldb"
)

// clientNamePattern matches the teacher's table-naming discipline
// (invalidation/audit.go builds one fixed table via a literal query); here
// the table name is built from the client name, so it must be restricted to
// characters safe to interpolate into DDL.
var clientNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// responsesTableName returns the per-client table name (spec §4.4,
// "<prefix>_<client>_responses") after validating client against
// clientNamePattern. Unknown or malformed client names are rejected rather
// than silently sanitized, since a client name is operator-configured, not
// user input that needs best-effort cleanup.
func responsesTableName(client string) (string, error) {
	if !clientNamePattern.MatchString(client) {
		return "", fmt.Errorf("responsecache: invalid client name %q", client)
	}
	return fmt.Sprintf("api_cache_%s_responses", client), nil
}

// ensureResponsesTable creates the per-client response table if it does not
// already exist. Grounded on invalidation/audit.go's ensureSchema pattern:
// idempotent CREATE TABLE IF NOT EXISTS plus supporting indexes, run lazily
// on first use per client rather than via a migration the core does not own
// (spec §1 Out of scope: "migration definitions").
func ensureResponsesTable(ctx context.Context, db *sqldb.Database, table string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			client TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL,
			base_url TEXT NOT NULL,
			full_url TEXT NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			attributes TEXT NOT NULL DEFAULT '',
			attributes2 TEXT NOT NULL DEFAULT '',
			attributes3 TEXT NOT NULL DEFAULT '',
			credits INTEGER NOT NULL DEFAULT 1,
			cost DOUBLE PRECISION,
			compressed BOOLEAN NOT NULL DEFAULT FALSE,
			request_headers BYTEA,
			request_body BYTEA,
			response_headers BYTEA,
			response_body BYTEA,
			response_status_code INTEGER NOT NULL,
			response_size INTEGER NOT NULL DEFAULT 0,
			response_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			expires_at TIMESTAMPTZ,
			processed_at TIMESTAMPTZ,
			processed_status JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_endpoint_processed
		ON %[1]s(endpoint, processed_at);
	`, table)

	_, err := db.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("responsecache: ensure table %s: %w", table, err)
	}
	return nil
}

// ensureErrorsTable creates the shared errors table (spec §3 Error log
// entry), append-only like the teacher's invalidation_audit table.
func ensureErrorsTable(ctx context.Context, db *sqldb.Database) error {
	query := `
		CREATE TABLE IF NOT EXISTS api_cache_errors (
			id BIGSERIAL PRIMARY KEY,
			api_client TEXT NOT NULL,
			error_type TEXT NOT NULL,
			error_message TEXT NOT NULL,
			api_message TEXT,
			context_data JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_api_cache_errors_client
		ON api_cache_errors(api_client);
	`
	_, err := db.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("responsecache: ensure errors table: %w", err)
	}
	return nil
}
