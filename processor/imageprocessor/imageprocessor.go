// Package imageprocessor implements a C8 processor for image-search
// endpoints: it extracts image results into a table keyed by image_id,
// the spec's second worked composite-key example.
package imageprocessor

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"encore.app/processor"
	"encore.dev/storage/sqldb"
)

const tableName = "processed_images"

type task struct {
	Result []struct {
		Items []item `json:"items"`
	} `json:"result"`
}

type item struct {
	ImageID   string `json:"image_id"`
	URL       string `json:"url"`
	Alt       string `json:"alt"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SourceURL string `json:"source_url"`
}

type body struct {
	Tasks []task `json:"tasks"`
}

// Processor extracts image results into processed_images.
type Processor struct {
	DB               *sqldb.Database
	EndpointPattern_ string
}

// New constructs an image-result processor against db, matching
// endpointPattern (e.g. "serp/*/images/task_get").
func New(db *sqldb.Database, endpointPattern string) *Processor {
	return &Processor{DB: db, EndpointPattern_: endpointPattern}
}

func (p *Processor) Name() string            { return "imageprocessor" }
func (p *Processor) EndpointPattern() string { return p.EndpointPattern_ }

func (p *Processor) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			response_key TEXT NOT NULL,
			image_id TEXT NOT NULL UNIQUE,
			url TEXT,
			alt TEXT,
			width INTEGER,
			height INTEGER,
			source_url TEXT,
			captured_at TIMESTAMPTZ NOT NULL
		);
	`, tableName)
	_, err := p.DB.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("imageprocessor: ensure schema: %w", err)
	}
	return nil
}

// extractItems parses a raw response body into the flat list of image
// items to upsert. Pulled out of Extract so the extraction-failure rules
// (spec §4.8) are testable without a database.
func extractItems(responseBody []byte) ([]item, error) {
	var parsed body
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(parsed.Tasks) == 0 {
		return nil, fmt.Errorf("missing tasks array")
	}

	var out []item
	for _, t := range parsed.Tasks {
		for _, result := range t.Result {
			for _, it := range result.Items {
				if it.ImageID == "" {
					continue
				}
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func (p *Processor) Extract(ctx context.Context, row processor.ResponseRow, policies processor.Policies) (upserted, duplicates int, err error) {
	items, err := extractItems(row.ResponseBody)
	if err != nil {
		return 0, 0, err
	}

	for _, it := range items {
		ok, err := p.upsertItem(ctx, row, it, policies.UpdateIfNewer)
		if err != nil {
			return upserted, duplicates, err
		}
		if ok {
			upserted++
		} else {
			duplicates++
		}
	}
	return upserted, duplicates, nil
}

func (p *Processor) upsertItem(ctx context.Context, row processor.ResponseRow, it item, updateIfNewer bool) (upserted bool, err error) {
	conflictAction := "DO NOTHING"
	if updateIfNewer {
		conflictAction = fmt.Sprintf(`DO UPDATE SET
			response_key = EXCLUDED.response_key,
			url = EXCLUDED.url,
			alt = EXCLUDED.alt,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			source_url = EXCLUDED.source_url,
			captured_at = EXCLUDED.captured_at
			WHERE %[1]s.captured_at < EXCLUDED.captured_at`, tableName)
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (response_key, image_id, url, alt, width, height, source_url, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (image_id)
		%[2]s
	`, tableName, conflictAction)

	result, err := p.DB.Exec(ctx, query,
		row.Key, it.ImageID, it.URL, it.Alt, it.Width, it.Height, it.SourceURL, row.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("imageprocessor: upsert item: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (p *Processor) ClearTables(ctx context.Context, withCount bool) (*int, error) {
	if !withCount {
		_, err := p.DB.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", tableName))
		return nil, err
	}
	var count int
	row := p.DB.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName))
	if err := row.Scan(&count); err != nil {
		return nil, fmt.Errorf("imageprocessor: count before clear: %w", err)
	}
	if _, err := p.DB.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", tableName)); err != nil {
		return nil, fmt.Errorf("imageprocessor: truncate: %w", err)
	}
	return &count, nil
}

var _ processor.Processor = (*Processor)(nil)
