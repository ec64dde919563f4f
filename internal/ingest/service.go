// Package ingest is the write boundary for content items: payload
// validation, normalization, and the idempotent upsert into storage. It
// never touches cluster state; items land as pending and wait for the
// dedupe engine.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/collate/internal/db"
	"horse.fit/collate/internal/normalize"
	payloadschema "horse.fit/collate/schema"
)

type Service struct {
	pool   *db.Pool
	logger zerolog.Logger
}

// Result reports one ingested payload.
type Result struct {
	ItemID   int64  `json:"item_id"`
	ItemUUID string `json:"item_uuid"`
	Inserted bool   `json:"inserted"`
	Source   string `json:"source"`
}

func NewService(pool *db.Pool, logger zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// IngestOne validates one raw payload and upserts the normalized item.
// Re-ingesting the same (source, source_item_id) refreshes the row instead
// of duplicating it.
func (s *Service) IngestOne(ctx context.Context, payload json.RawMessage) (Result, error) {
	if s == nil || s.pool == nil {
		return Result{}, fmt.Errorf("ingest service is not initialized")
	}

	item, err := payloadschema.ValidateItemPayload(payload)
	if err != nil {
		return Result{}, fmt.Errorf("validate payload: %w", err)
	}

	record, err := buildRecord(item)
	if err != nil {
		return Result{}, err
	}

	upserted, err := s.pool.UpsertItem(ctx, record)
	if err != nil {
		return Result{}, err
	}

	s.logger.Info().
		Str("source", record.Source).
		Str("source_item_id", record.SourceItemID).
		Int64("item_id", upserted.ItemID).
		Bool("inserted", upserted.Inserted).
		Msg("item ingested")

	return Result{
		ItemID:   upserted.ItemID,
		ItemUUID: upserted.ItemUUID,
		Inserted: upserted.Inserted,
		Source:   record.Source,
	}, nil
}

// buildRecord computes the derived fields once, at ingest time: canonical
// URL, URL hash, domain, and content hash. The dedupe engine reads these
// columns and never re-normalizes.
func buildRecord(item *payloadschema.Item) (db.ItemRecord, error) {
	title := strings.TrimSpace(item.Title)
	body := ""
	if item.Body != nil {
		body = strings.TrimSpace(*item.Body)
	}

	record := db.ItemRecord{
		Source:       strings.TrimSpace(item.Source),
		SourceItemID: strings.TrimSpace(item.SourceItemID),
		Title:        title,
		Body:         body,
		ContentHash:  normalize.ContentHash(title, body),
	}

	if item.URL != nil {
		if canonical := normalize.CanonicalURL(*item.URL); canonical != "" {
			record.CanonicalURL = &canonical
			record.CanonicalURLHash = normalize.URLHash(*item.URL)
			if domain := normalize.URLDomain(*item.URL); domain != "" {
				record.URLDomain = &domain
			}
		}
	}

	if item.PublishedAt != nil && strings.TrimSpace(*item.PublishedAt) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*item.PublishedAt))
		if err != nil {
			return db.ItemRecord{}, fmt.Errorf("parse published_at: %w", err)
		}
		utc := parsed.UTC()
		record.PublishedAt = &utc
	}

	if len(item.SourceMetadata) > 0 {
		encoded, err := json.Marshal(item.SourceMetadata)
		if err != nil {
			return db.ItemRecord{}, fmt.Errorf("marshal source_metadata: %w", err)
		}
		record.SourceMetadata = encoded
	}

	return record, nil
}
