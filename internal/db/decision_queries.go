package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DecisionRecord is the read model for one persisted dedupe decision.
type DecisionRecord struct {
	DecisionID        int64           `json:"decision_id"`
	ItemUUID          string          `json:"item_uuid"`
	ClusterKey        *string         `json:"cluster_key,omitempty"`
	CandidateItemUUID *string         `json:"candidate_item_uuid,omitempty"`
	Strategy          string          `json:"strategy"`
	Outcome           string          `json:"outcome"`
	Reason            string          `json:"reason"`
	Score             *float64        `json:"score,omitempty"`
	Details           json.RawMessage `json:"details,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

const decisionSelect = `
SELECT
	d.decision_id,
	i.item_uuid::text,
	c.cluster_key::text,
	cand.item_uuid::text,
	d.strategy,
	d.outcome,
	d.reason,
	d.score,
	d.details,
	d.created_at
FROM collate_core.dedupe_decisions d
JOIN collate_core.items i
	ON i.item_id = d.item_id
LEFT JOIN collate_core.dedupe_clusters c
	ON c.cluster_id = d.cluster_id
LEFT JOIN collate_core.items cand
	ON cand.item_id = d.candidate_item_id
`

// ListDecisionsForItem returns the decision trail of one item, newest first.
// Decisions referencing since-merged clusters keep their rows; the cluster
// key is simply null once the cluster is gone.
func (p *Pool) ListDecisionsForItem(ctx context.Context, itemUUID string, limit int) ([]DecisionRecord, error) {
	trimmedUUID := strings.TrimSpace(itemUUID)
	if trimmedUUID == "" {
		return nil, fmt.Errorf("item UUID is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	q := decisionSelect + `
WHERE i.item_uuid = ?::uuid
ORDER BY d.decision_id DESC
LIMIT ?
`

	rows, err := p.Query(ctx, q, trimmedUUID, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions for item: %w", err)
	}
	defer rows.Close()

	return scanDecisionRecords(rows, limit)
}

// ListDecisionsForCluster returns the decisions that shaped one cluster,
// newest first.
func (p *Pool) ListDecisionsForCluster(ctx context.Context, clusterKey string, limit int) ([]DecisionRecord, error) {
	trimmedKey := strings.TrimSpace(clusterKey)
	if trimmedKey == "" {
		return nil, fmt.Errorf("cluster key is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	q := decisionSelect + `
WHERE c.cluster_key = ?::uuid
ORDER BY d.decision_id DESC
LIMIT ?
`

	rows, err := p.Query(ctx, q, trimmedKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions for cluster: %w", err)
	}
	defer rows.Close()

	return scanDecisionRecords(rows, limit)
}

func scanDecisionRecords(rows *Rows, capacity int) ([]DecisionRecord, error) {
	if capacity < 0 {
		capacity = 0
	}

	records := make([]DecisionRecord, 0, capacity)
	for rows.Next() {
		var record DecisionRecord
		if err := rows.Scan(
			&record.DecisionID,
			&record.ItemUUID,
			&record.ClusterKey,
			&record.CandidateItemUUID,
			&record.Strategy,
			&record.Outcome,
			&record.Reason,
			&record.Score,
			&record.Details,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision rows: %w", err)
	}
	return records, nil
}
