package db

import (
	"encoding/json"
	"time"
)

// Item maps collate_core.items. Rows are written by the ingest boundary; the
// dedupe engine only flips dedupe_state and never touches content fields.
type Item struct {
	ItemID           int64           `gorm:"column:item_id;primaryKey;autoIncrement"`
	ItemUUID         string          `gorm:"column:item_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Source           string          `gorm:"column:source;type:text;not null;uniqueIndex:uq_items_source_source_item_id,priority:1"`
	SourceItemID     string          `gorm:"column:source_item_id;type:text;not null;uniqueIndex:uq_items_source_source_item_id,priority:2"`
	Title            string          `gorm:"column:title;type:text;not null;default:''"`
	Body             string          `gorm:"column:body;type:text;not null;default:''"`
	CanonicalURL     *string         `gorm:"column:canonical_url;type:text"`
	CanonicalURLHash []byte          `gorm:"column:canonical_url_hash;type:bytea"`
	URLDomain        *string         `gorm:"column:url_domain;type:text"`
	ContentHash      []byte          `gorm:"column:content_hash;type:bytea"`
	PublishedAt      *time.Time      `gorm:"column:published_at;type:timestamptz"`
	DedupeState      string          `gorm:"column:dedupe_state;type:text;not null;default:pending"`
	SourceMetadata   json.RawMessage `gorm:"column:source_metadata;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Item) TableName() string { return "collate_core.items" }

// DedupeCluster maps collate_core.dedupe_clusters. cluster_id carries creation
// order and is the merge-target tie-break; cluster_key is an opaque random
// identifier exposed to readers and never ordered on.
type DedupeCluster struct {
	ClusterID            int64     `gorm:"column:cluster_id;primaryKey;autoIncrement"`
	ClusterKey           string    `gorm:"column:cluster_key;type:uuid;not null;unique"`
	RepresentativeItemID *int64    `gorm:"column:representative_item_id;type:bigint"`
	CreatedAt            time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt            time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (DedupeCluster) TableName() string { return "collate_core.dedupe_clusters" }

// DedupeMember maps collate_core.dedupe_members. item_id is additionally unique
// (post-automigrate SQL) so an item belongs to exactly one cluster.
type DedupeMember struct {
	ClusterID int64     `gorm:"column:cluster_id;type:bigint;primaryKey"`
	ItemID    int64     `gorm:"column:item_id;type:bigint;primaryKey"`
	AddedAt   time.Time `gorm:"column:added_at;type:timestamptz;not null;default:now()"`
}

func (DedupeMember) TableName() string { return "collate_core.dedupe_members" }

// DedupeDecision maps collate_core.dedupe_decisions. Append-only explainability
// ledger; never read back for matching.
type DedupeDecision struct {
	DecisionID      int64           `gorm:"column:decision_id;primaryKey;autoIncrement"`
	ItemID          int64           `gorm:"column:item_id;type:bigint;not null"`
	ClusterID       *int64          `gorm:"column:cluster_id;type:bigint"`
	CandidateItemID *int64          `gorm:"column:candidate_item_id;type:bigint"`
	Strategy        string          `gorm:"column:strategy;type:text;not null"`
	Outcome         string          `gorm:"column:outcome;type:text;not null"`
	Reason          string          `gorm:"column:reason;type:text;not null"`
	Score           *float64        `gorm:"column:score;type:double precision"`
	Details         json.RawMessage `gorm:"column:details;type:jsonb"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (DedupeDecision) TableName() string { return "collate_core.dedupe_decisions" }

func autoMigrateModels() []any {
	return []any{
		&Item{},
		&DedupeCluster{},
		&DedupeMember{},
		&DedupeDecision{},
	}
}
