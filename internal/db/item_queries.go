package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ItemRecord carries one normalized item ready for persistence. Ingest
// computes the canonical URL, hashes, and domain before handing it over;
// this layer never normalizes.
type ItemRecord struct {
	Source           string
	SourceItemID     string
	Title            string
	Body             string
	CanonicalURL     *string
	CanonicalURLHash []byte
	URLDomain        *string
	ContentHash      []byte
	PublishedAt      *time.Time
	SourceMetadata   json.RawMessage
}

// UpsertItemResult reports what the upsert did.
type UpsertItemResult struct {
	ItemID   int64  `json:"item_id"`
	ItemUUID string `json:"item_uuid"`
	Inserted bool   `json:"inserted"`
}

// ItemDetail is the read model for one item.
type ItemDetail struct {
	ItemID       int64           `json:"item_id"`
	ItemUUID     string          `json:"item_uuid"`
	Source       string          `json:"source"`
	SourceItemID string          `json:"source_item_id"`
	Title        string          `json:"title"`
	Body         string          `json:"body"`
	CanonicalURL *string         `json:"canonical_url,omitempty"`
	URLDomain    *string         `json:"url_domain,omitempty"`
	PublishedAt  *time.Time      `json:"published_at,omitempty"`
	DedupeState  string          `json:"dedupe_state"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// UpsertItem inserts or refreshes one item keyed by (source, source_item_id).
// A re-ingest whose content or URL hash changed flips the item back to
// pending so the next dedupe run re-evaluates it; an identical payload
// leaves the dedupe state alone.
func (p *Pool) UpsertItem(ctx context.Context, record ItemRecord) (UpsertItemResult, error) {
	source := strings.TrimSpace(record.Source)
	sourceItemID := strings.TrimSpace(record.SourceItemID)
	if source == "" || sourceItemID == "" {
		return UpsertItemResult{}, fmt.Errorf("source and source_item_id are required")
	}

	const q = `
INSERT INTO collate_core.items
	(source, source_item_id, title, body, canonical_url, canonical_url_hash, url_domain, content_hash, published_at, source_metadata, dedupe_state, created_at, updated_at)
VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', now(), now())
ON CONFLICT (source, source_item_id) DO UPDATE SET
	title = EXCLUDED.title,
	body = EXCLUDED.body,
	canonical_url = EXCLUDED.canonical_url,
	canonical_url_hash = EXCLUDED.canonical_url_hash,
	url_domain = EXCLUDED.url_domain,
	content_hash = EXCLUDED.content_hash,
	published_at = EXCLUDED.published_at,
	source_metadata = EXCLUDED.source_metadata,
	dedupe_state = CASE
		WHEN collate_core.items.content_hash IS DISTINCT FROM EXCLUDED.content_hash
		  OR collate_core.items.canonical_url_hash IS DISTINCT FROM EXCLUDED.canonical_url_hash
		THEN 'pending'
		ELSE collate_core.items.dedupe_state
	END,
	updated_at = now()
RETURNING item_id, item_uuid::text, (xmax = 0) AS inserted
`

	var result UpsertItemResult
	err := p.QueryRow(ctx, q,
		source,
		sourceItemID,
		record.Title,
		record.Body,
		record.CanonicalURL,
		record.CanonicalURLHash,
		record.URLDomain,
		record.ContentHash,
		record.PublishedAt,
		record.SourceMetadata,
	).Scan(&result.ItemID, &result.ItemUUID, &result.Inserted)
	if err != nil {
		return UpsertItemResult{}, fmt.Errorf("upsert item %s/%s: %w", source, sourceItemID, err)
	}
	return result, nil
}

// GetItemByUUID returns one item by its public UUID.
func (p *Pool) GetItemByUUID(ctx context.Context, itemUUID string) (*ItemDetail, error) {
	trimmedUUID := strings.TrimSpace(itemUUID)
	if trimmedUUID == "" {
		return nil, fmt.Errorf("item UUID is required")
	}

	const q = `
SELECT
	i.item_id,
	i.item_uuid::text,
	i.source,
	i.source_item_id,
	i.title,
	i.body,
	i.canonical_url,
	i.url_domain,
	i.published_at,
	i.dedupe_state,
	i.source_metadata,
	i.created_at,
	i.updated_at
FROM collate_core.items i
WHERE i.item_uuid = ?::uuid
`

	var item ItemDetail
	if err := p.QueryRow(ctx, q, trimmedUUID).Scan(
		&item.ItemID,
		&item.ItemUUID,
		&item.Source,
		&item.SourceItemID,
		&item.Title,
		&item.Body,
		&item.CanonicalURL,
		&item.URLDomain,
		&item.PublishedAt,
		&item.DedupeState,
		&item.Metadata,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query item by uuid: %w", err)
	}
	return &item, nil
}

// CountItemsByState returns the dedupe_state distribution, used by health
// and stats output.
func (p *Pool) CountItemsByState(ctx context.Context) (map[string]int64, error) {
	const q = `
SELECT dedupe_state, COUNT(*)
FROM collate_core.items
GROUP BY dedupe_state
`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count items by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			state string
			count int64
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan item state count: %w", err)
		}
		counts[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item state counts: %w", err)
	}
	return counts, nil
}
