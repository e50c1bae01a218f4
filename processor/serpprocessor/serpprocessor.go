// Package serpprocessor implements a C8 processor for search-results
// endpoints: it extracts organic SERP items into a normalized table keyed
// by {keyword, location_code, language_code, device, data_asin}, the
// composite key named as the spec's worked example for this processor.
package serpprocessor

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"encore.app/processor"
	"encore.dev/storage/sqldb"
)

const tableName = "processed_serp_items"

// task is the top-level shape a search-provider response is expected to
// carry. A missing tasks array is an extraction failure (spec §4.8
// extraction policy example).
type task struct {
	Data struct {
		Keyword      string `json:"keyword"`
		LocationCode int    `json:"location_code"`
		LanguageCode string `json:"language_code"`
		Device       string `json:"device"`
	} `json:"data"`
	Result []struct {
		Items []item `json:"items"`
	} `json:"result"`
}

type item struct {
	Type         string `json:"type"`
	RankAbsolute int    `json:"rank_absolute"`
	Domain       string `json:"domain"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	DataASIN     string `json:"data_asin"`
	Items        []item `json:"items,omitempty"` // nested People-Also-Ask / carousel items
}

type body struct {
	Tasks []task `json:"tasks"`
}

// Processor extracts organic SERP items into processed_serp_items.
type Processor struct {
	DB               *sqldb.Database
	EndpointPattern_ string
}

// New constructs a SERP item processor against db, matching endpointPattern
// (e.g. "serp/*/organic/task_get").
func New(db *sqldb.Database, endpointPattern string) *Processor {
	return &Processor{DB: db, EndpointPattern_: endpointPattern}
}

func (p *Processor) Name() string            { return "serpprocessor" }
func (p *Processor) EndpointPattern() string { return p.EndpointPattern_ }

func (p *Processor) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			response_key TEXT NOT NULL,
			keyword TEXT NOT NULL,
			location_code INTEGER NOT NULL,
			language_code TEXT NOT NULL,
			device TEXT NOT NULL,
			data_asin TEXT NOT NULL DEFAULT '',
			rank_absolute INTEGER,
			domain TEXT,
			title TEXT,
			url TEXT,
			captured_at TIMESTAMPTZ NOT NULL,
			UNIQUE (keyword, location_code, language_code, device, data_asin)
		);
	`, tableName)
	_, err := p.DB.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("serpprocessor: ensure schema: %w", err)
	}
	return nil
}

// extractedItem pairs a SERP item with the task-level fields its composite
// key needs.
type extractedItem struct {
	Keyword      string
	LocationCode int
	LanguageCode string
	Device       string
	item
}

// extractItems parses a raw response body into the flat list of SERP items
// to upsert. Pulled out of Extract so the parsing/extraction-failure rules
// (spec §4.8: invalid JSON or a missing tasks array marks the response
// ERROR) are testable without a database.
func extractItems(responseBody []byte, skipNestedItems bool) ([]extractedItem, error) {
	var parsed body
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(parsed.Tasks) == 0 {
		return nil, fmt.Errorf("missing tasks array")
	}

	var out []extractedItem
	for _, t := range parsed.Tasks {
		for _, result := range t.Result {
			items := result.Items
			if !skipNestedItems {
				items = flatten(items)
			}
			for _, it := range items {
				if it.Type != "organic" && it.DataASIN == "" {
					continue
				}
				out = append(out, extractedItem{
					Keyword:      t.Data.Keyword,
					LocationCode: t.Data.LocationCode,
					LanguageCode: t.Data.LanguageCode,
					Device:       t.Data.Device,
					item:         it,
				})
			}
		}
	}
	return out, nil
}

// flatten descends into nested items (People-Also-Ask, carousels) unless
// the caller's skipNestedItems policy says not to.
func flatten(items []item) []item {
	out := make([]item, 0, len(items))
	for _, it := range items {
		out = append(out, it)
		if len(it.Items) > 0 {
			out = append(out, flatten(it.Items)...)
		}
	}
	return out
}

// Extract implements processor.Processor (spec §4.8).
func (p *Processor) Extract(ctx context.Context, row processor.ResponseRow, policies processor.Policies) (upserted, duplicates int, err error) {
	items, err := extractItems(row.ResponseBody, policies.SkipNestedItems)
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

func (p *Processor) upsertItem(ctx context.Context, row processor.ResponseRow, it extractedItem, updateIfNewer bool) (upserted bool, err error) {
	conflictAction := "DO NOTHING"
	if updateIfNewer {
		conflictAction = fmt.Sprintf(`DO UPDATE SET
			response_key = EXCLUDED.response_key,
			rank_absolute = EXCLUDED.rank_absolute,
			domain = EXCLUDED.domain,
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			captured_at = EXCLUDED.captured_at
			WHERE %[1]s.captured_at < EXCLUDED.captured_at`, tableName)
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (
			response_key, keyword, location_code, language_code, device,
			data_asin, rank_absolute, domain, title, url, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (keyword, location_code, language_code, device, data_asin)
		%[2]s
	`, tableName, conflictAction)

	result, err := p.DB.Exec(ctx, query,
		row.Key, it.Keyword, it.LocationCode, it.LanguageCode, it.Device,
		it.DataASIN, it.RankAbsolute, it.Domain, it.Title, it.URL, row.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("serpprocessor: upsert item: %w", err)
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
		return nil, fmt.Errorf("serpprocessor: count before clear: %w", err)
	}
	if _, err := p.DB.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", tableName)); err != nil {
		return nil, fmt.Errorf("serpprocessor: truncate: %w", err)
	}
	return &count, nil
}

var _ processor.Processor = (*Processor)(nil)
