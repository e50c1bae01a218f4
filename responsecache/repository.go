package responsecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"encore.app/pkg/clock"
	"encore.app/pkg/models"
	"encore.dev/storage/sqldb"
)

// Compressor is the capability the repository needs from the compression
// service (C1) to store and retrieve bodies symmetrically. compress.Service
// satisfies it; the interface exists so repository tests can fake it without
// pulling in gzip.
type Compressor interface {
	IsEnabled(client string) bool
	Compress(client string, data []byte) ([]byte, error)
	Decompress(client string, data []byte) ([]byte, error)
}

// ShouldCacheFunc lets a caller decline caching a response that dispatched
// successfully but should not be persisted (spec §4.4, e.g. "all sub-tasks
// errored but HTTP was 200").
type ShouldCacheFunc func(responseBody []byte) bool

// StoreInput bundles the fields storeResponse needs (spec §4.4).
type StoreInput struct {
	Client   string
	Key      string
	Endpoint string
	Method   string
	BaseURL  string
	FullURL  string
	Version  string

	Attributes, Attributes2, Attributes3 string

	Credits int
	Cost    *float64

	RequestHeaders, RequestBody, ResponseHeaders, ResponseBody []byte

	ResponseStatusCode int
	ResponseSize       int
	ResponseTime       float64

	TTL         *time.Duration
	ShouldCache ShouldCacheFunc
}

// Repository is the C4 cache repository: per-client response table I/O plus
// the shared error log. Grounded on invalidation/audit.go's AuditLogger —
// same lazy ensureSchema-on-construction idiom, generalized to one table per
// client instead of one fixed table.
type Repository struct {
	db         *sqldb.Database
	compressor Compressor
	clock      clock.Clock

	mu            sync.Mutex
	ensuredTables map[string]bool
	errorsReady   bool
}

// NewRepository creates a cache repository backed by db. c is the clock
// used for cache-entry expiry checks and TTL-to-timestamp math; a nil c
// defaults to the system clock, so tests can inject clock.NewFixed to
// assert expiry behavior deterministically without sleeping.
func NewRepository(db *sqldb.Database, compressor Compressor, c clock.Clock) *Repository {
	if c == nil {
		c = clock.Real()
	}
	return &Repository{
		db:            db,
		compressor:    compressor,
		clock:         c,
		ensuredTables: make(map[string]bool),
	}
}

func (r *Repository) ensureTable(ctx context.Context, client string) (string, error) {
	table, err := responsesTableName(client)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	ready := r.ensuredTables[client]
	r.mu.Unlock()
	if ready {
		return table, nil
	}

	if err := ensureResponsesTable(ctx, r.db, table); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.ensuredTables[client] = true
	r.mu.Unlock()
	return table, nil
}

func (r *Repository) ensureErrorsTable(ctx context.Context) error {
	r.mu.Lock()
	ready := r.errorsReady
	r.mu.Unlock()
	if ready {
		return nil
	}
	if err := ensureErrorsTable(ctx, r.db); err != nil {
		return err
	}
	r.mu.Lock()
	r.errorsReady = true
	r.mu.Unlock()
	return nil
}

// GetCachedResponse returns the cached result for (client, key), or nil when
// absent, expired, or unreadable (spec §4.4). A row that fails decompression
// is treated as a miss and logged cache_rejected rather than returned as an
// error — the caller's cache-miss path already knows how to recover by
// dispatching.
func (r *Repository) GetCachedResponse(ctx context.Context, client, key string) (*models.Result, error) {
	table, err := r.ensureTable(ctx, client)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT base_url, full_url, method, attributes, attributes2, attributes3,
		       credits, cost, compressed, request_headers, request_body,
		       response_headers, response_body, response_status_code,
		       response_size, response_time, expires_at
		FROM %s WHERE key = $1
	`, table)

	var (
		baseURL, fullURL, method                       string
		attrs, attrs2, attrs3                          string
		credits                                        int
		cost                                           sql.NullFloat64
		compressed                                      bool
		reqHeaders, reqBody, respHeaders, respBody      []byte
		statusCode, responseSize                       int
		responseTime                                   float64
		expiresAt                                      sql.NullTime
	)

	row := r.db.QueryRow(ctx, query, key)
	err = row.Scan(&baseURL, &fullURL, &method, &attrs, &attrs2, &attrs3,
		&credits, &cost, &compressed, &reqHeaders, &reqBody,
		&respHeaders, &respBody, &statusCode, &responseSize, &responseTime, &expiresAt)
	if err != nil {
		if errors.Is(err, sqldb.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("responsecache: get cached response: %w", err)
	}

	var expires *time.Time
	if expiresAt.Valid {
		t := expiresAt.Time
		expires = &t
	}
	entry := models.CacheEntry{ExpiresAt: expires}
	if entry.IsExpired(r.clock.Now()) {
		return nil, nil
	}

	decompress := func(data []byte) ([]byte, bool) {
		if !compressed || len(data) == 0 {
			return data, true
		}
		out, err := r.compressor.Decompress(client, data)
		if err != nil {
			log.Printf("responsecache: decompress failed for client=%s key=%s: %v", client, key, err)
			_ = r.LogError(ctx, models.ErrorLogEntry{
				APIClient:    client,
				ErrorType:    models.ErrorTypeCacheReject,
				ErrorMessage: err.Error(),
				CreatedAt:    time.Now(),
			})
			return nil, false
		}
		return out, true
	}

	reqBody, ok := decompress(reqBody)
	if !ok {
		return nil, nil
	}
	respBody, ok = decompress(respBody)
	if !ok {
		return nil, nil
	}

	var costPtr *float64
	if cost.Valid {
		v := cost.Float64
		costPtr = &v
	}

	return &models.Result{
		Request: models.RequestSnapshot{
			BaseURL:     baseURL,
			FullURL:     fullURL,
			Method:      method,
			Attributes:  attrs,
			Attributes2: attrs2,
			Attributes3: attrs3,
			Credits:     credits,
			Cost:        costPtr,
			Headers:     reqHeaders,
			Body:        reqBody,
		},
		Response: models.ResponseSnapshot{
			Headers:    respHeaders,
			Body:       respBody,
			StatusCode: statusCode,
		},
		ResponseStatusCode: statusCode,
		ResponseSize:       responseSize,
		ResponseTime:       responseTime,
		IsCached:           true,
		ExpiresAt:          expires,
	}, nil
}

// StoreResponse inserts or updates the row for (client, key) (spec §4.4,
// invariant 1: unique key per client, update in place via ON CONFLICT).
func (r *Repository) StoreResponse(ctx context.Context, in StoreInput) (bool, error) {
	if in.ShouldCache != nil && !in.ShouldCache(in.ResponseBody) {
		return false, nil
	}

	table, err := r.ensureTable(ctx, in.Client)
	if err != nil {
		return false, err
	}

	enabled := r.compressor.IsEnabled(in.Client)
	reqBody, respBody := in.RequestBody, in.ResponseBody
	if enabled {
		reqBody, err = r.compressor.Compress(in.Client, reqBody)
		if err != nil {
			return false, fmt.Errorf("responsecache: compress request body: %w", err)
		}
		respBody, err = r.compressor.Compress(in.Client, respBody)
		if err != nil {
			return false, fmt.Errorf("responsecache: compress response body: %w", err)
		}
	}

	var expiresAt *time.Time
	if in.TTL != nil {
		t := r.clock.Now().Add(*in.TTL)
		expiresAt = &t
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			key, client, endpoint, method, base_url, full_url, version,
			attributes, attributes2, attributes3, credits, cost, compressed,
			request_headers, request_body, response_headers, response_body,
			response_status_code, response_size, response_time, expires_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, NOW(), NOW()
		)
		ON CONFLICT (key) DO UPDATE SET
			endpoint = EXCLUDED.endpoint,
			method = EXCLUDED.method,
			base_url = EXCLUDED.base_url,
			full_url = EXCLUDED.full_url,
			version = EXCLUDED.version,
			attributes = EXCLUDED.attributes,
			attributes2 = EXCLUDED.attributes2,
			attributes3 = EXCLUDED.attributes3,
			credits = EXCLUDED.credits,
			cost = EXCLUDED.cost,
			compressed = EXCLUDED.compressed,
			request_headers = EXCLUDED.request_headers,
			request_body = EXCLUDED.request_body,
			response_headers = EXCLUDED.response_headers,
			response_body = EXCLUDED.response_body,
			response_status_code = EXCLUDED.response_status_code,
			response_size = EXCLUDED.response_size,
			response_time = EXCLUDED.response_time,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, table)

	_, err = r.db.Exec(ctx, query,
		in.Key, in.Client, in.Endpoint, in.Method, in.BaseURL, in.FullURL, in.Version,
		in.Attributes, in.Attributes2, in.Attributes3, in.Credits, in.Cost, enabled,
		in.RequestHeaders, reqBody, in.ResponseHeaders, respBody,
		in.ResponseStatusCode, in.ResponseSize, in.ResponseTime, expiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("responsecache: store response: %w", err)
	}

	return true, nil
}

// ProcessableRow is the minimal view of a response row a processor needs
// (spec §4.8). Bodies are returned decompressed, mirroring GetCachedResponse.
type ProcessableRow struct {
	Key                string
	Endpoint           string
	BaseURL            string
	ResponseStatusCode int
	ResponseBody       []byte
	CreatedAt          time.Time
}

// ScanUnprocessed returns up to limit rows for client with processed_at
// still null, oldest first; processor.NewResponseStore adapts it to
// processor.ResponseStore (spec §4.8:
// "scan up to limit unprocessed rows in the client's responses table").
// Endpoint-pattern filtering happens in the caller: a client's full
// endpoint set is usually small enough that filtering client-side after a
// single scan is simpler than building per-pattern SQL, and keeps this
// repository ignorant of processor-specific pattern syntax.
func (r *Repository) ScanUnprocessed(ctx context.Context, client string, limit int) ([]ProcessableRow, error) {
	table, err := r.ensureTable(ctx, client)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT key, endpoint, base_url, response_status_code, compressed, response_body, created_at
		FROM %s
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, table)

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("responsecache: scan unprocessed: %w", err)
	}
	defer rows.Close()

	var out []ProcessableRow
	for rows.Next() {
		var (
			key, endpoint, baseURL string
			statusCode             int
			compressed             bool
			body                   []byte
			createdAt              time.Time
		)
		if err := rows.Scan(&key, &endpoint, &baseURL, &statusCode, &compressed, &body, &createdAt); err != nil {
			return nil, fmt.Errorf("responsecache: scan unprocessed row: %w", err)
		}
		if compressed && len(body) > 0 {
			decoded, err := r.compressor.Decompress(client, body)
			if err != nil {
				log.Printf("responsecache: decompress failed while scanning client=%s key=%s: %v", client, key, err)
				continue
			}
			body = decoded
		}
		out = append(out, ProcessableRow{
			Key:                key,
			Endpoint:           endpoint,
			BaseURL:            baseURL,
			ResponseStatusCode: statusCode,
			ResponseBody:       body,
			CreatedAt:          createdAt,
		})
	}
	return out, rows.Err()
}

// MarkProcessed records the outcome of one processor run over a response
// (spec §4.8 "processed idempotence": set exactly once, requires an
// explicit reset to run again).
func (r *Repository) MarkProcessed(ctx context.Context, client, key string, status models.ProcessedStatus) error {
	table, err := r.ensureTable(ctx, client)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("responsecache: marshal processed status: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET processed_at = NOW(), processed_status = $2 WHERE key = $1`, table)
	_, err = r.db.Exec(ctx, query, key, payload)
	if err != nil {
		return fmt.Errorf("responsecache: mark processed: %w", err)
	}
	return nil
}

// ResetProcessed clears processed_at/processed_status for rows whose
// endpoint matches the given SQL LIKE pattern, and only those rows (spec
// §4.8 "resetProcessed... never touch other endpoints").
func (r *Repository) ResetProcessed(ctx context.Context, client, endpointLike string) (int, error) {
	table, err := r.ensureTable(ctx, client)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`UPDATE %s SET processed_at = NULL, processed_status = NULL WHERE endpoint LIKE $1`, table)
	result, err := r.db.Exec(ctx, query, endpointLike)
	if err != nil {
		return 0, fmt.Errorf("responsecache: reset processed: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// LogError appends an entry to the shared errors table (spec §4.4,
// §3 Error log entry). Append-only, mirroring invalidation/audit.go's
// AuditLogger.Insert.
func (r *Repository) LogError(ctx context.Context, entry models.ErrorLogEntry) error {
	if err := r.ensureErrorsTable(ctx); err != nil {
		return err
	}

	query := `
		INSERT INTO api_cache_errors (api_client, error_type, error_message, api_message, context_data, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.Exec(ctx, query, entry.APIClient, string(entry.ErrorType), entry.ErrorMessage, entry.APIMessage, entry.ContextData)
	if err != nil {
		return fmt.Errorf("responsecache: log error: %w", err)
	}
	return nil
}
