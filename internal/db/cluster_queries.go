package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ClusterSummary is the read model for cluster listings.
type ClusterSummary struct {
	ClusterID           int64     `json:"cluster_id"`
	ClusterKey          string    `json:"cluster_key"`
	MemberCount         int       `json:"member_count"`
	RepresentativeUUID  *string   `json:"representative_item_uuid,omitempty"`
	RepresentativeTitle *string   `json:"representative_title,omitempty"`
	RepresentativeURL   *string   `json:"representative_url,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ClusterDetail contains one cluster and all member items.
type ClusterDetail struct {
	Cluster ClusterSummary  `json:"cluster"`
	Members []ClusterMember `json:"members"`
}

// ClusterMember is an item row within a cluster.
type ClusterMember struct {
	ItemID         int64      `json:"item_id"`
	ItemUUID       string     `json:"item_uuid"`
	Source         string     `json:"source"`
	Title          string     `json:"title"`
	CanonicalURL   *string    `json:"canonical_url,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	AddedAt        time.Time  `json:"added_at"`
	Representative bool       `json:"representative"`
}

const clusterSummarySelect = `
SELECT
	c.cluster_id,
	c.cluster_key::text,
	(SELECT COUNT(*) FROM collate_core.dedupe_members m WHERE m.cluster_id = c.cluster_id) AS member_count,
	rep.item_uuid::text,
	rep.title,
	rep.canonical_url,
	c.created_at,
	c.updated_at
FROM collate_core.dedupe_clusters c
LEFT JOIN collate_core.items rep
	ON rep.item_id = c.representative_item_id
`

// ListClustersChangedSince lists clusters whose membership or representative
// changed at or after the given UTC instant, most recently changed first.
func (p *Pool) ListClustersChangedSince(ctx context.Context, since time.Time, limit int) ([]ClusterSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	q := clusterSummarySelect + `
WHERE c.updated_at >= ?
ORDER BY c.updated_at DESC, c.cluster_id DESC
LIMIT ?
`

	rows, err := p.Query(ctx, q, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query clusters changed since: %w", err)
	}
	defer rows.Close()

	return scanClusterSummaries(rows, limit)
}

// GetClusterDetailByKey returns one cluster by its public key with all
// members, representative first.
func (p *Pool) GetClusterDetailByKey(ctx context.Context, clusterKey string) (*ClusterDetail, error) {
	trimmedKey := strings.TrimSpace(clusterKey)
	if trimmedKey == "" {
		return nil, fmt.Errorf("cluster key is required")
	}

	q := clusterSummarySelect + `
WHERE c.cluster_key = ?::uuid
`

	var header ClusterSummary
	if err := p.QueryRow(ctx, q, trimmedKey).Scan(
		&header.ClusterID,
		&header.ClusterKey,
		&header.MemberCount,
		&header.RepresentativeUUID,
		&header.RepresentativeTitle,
		&header.RepresentativeURL,
		&header.CreatedAt,
		&header.UpdatedAt,
	); err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query cluster header: %w", err)
	}

	members, err := p.listClusterMembers(ctx, header.ClusterID, header.MemberCount)
	if err != nil {
		return nil, err
	}
	return &ClusterDetail{Cluster: header, Members: members}, nil
}

// GetClusterForItem resolves the cluster an item belongs to, by item UUID.
// Returns ErrNoRows when the item exists without a membership (still
// pending) or does not exist at all.
func (p *Pool) GetClusterForItem(ctx context.Context, itemUUID string) (*ClusterDetail, error) {
	trimmedUUID := strings.TrimSpace(itemUUID)
	if trimmedUUID == "" {
		return nil, fmt.Errorf("item UUID is required")
	}

	const q = `
SELECT c.cluster_key::text
FROM collate_core.items i
JOIN collate_core.dedupe_members m ON m.item_id = i.item_id
JOIN collate_core.dedupe_clusters c ON c.cluster_id = m.cluster_id
WHERE i.item_uuid = ?::uuid
`

	var clusterKey string
	if err := p.QueryRow(ctx, q, trimmedUUID).Scan(&clusterKey); err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query cluster for item: %w", err)
	}
	return p.GetClusterDetailByKey(ctx, clusterKey)
}

func (p *Pool) listClusterMembers(ctx context.Context, clusterID int64, capacity int) ([]ClusterMember, error) {
	const q = `
SELECT
	i.item_id,
	i.item_uuid::text,
	i.source,
	i.title,
	i.canonical_url,
	i.published_at,
	m.added_at,
	(i.item_id = c.representative_item_id) AS representative
FROM collate_core.dedupe_members m
JOIN collate_core.items i
	ON i.item_id = m.item_id
JOIN collate_core.dedupe_clusters c
	ON c.cluster_id = m.cluster_id
WHERE m.cluster_id = ?
ORDER BY representative DESC, m.added_at ASC, i.item_id ASC
`

	rows, err := p.Query(ctx, q, clusterID)
	if err != nil {
		return nil, fmt.Errorf("query cluster members: %w", err)
	}
	defer rows.Close()

	if capacity < 0 {
		capacity = 0
	}
	members := make([]ClusterMember, 0, capacity)
	for rows.Next() {
		var member ClusterMember
		if err := rows.Scan(
			&member.ItemID,
			&member.ItemUUID,
			&member.Source,
			&member.Title,
			&member.CanonicalURL,
			&member.PublishedAt,
			&member.AddedAt,
			&member.Representative,
		); err != nil {
			return nil, fmt.Errorf("scan cluster member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster members: %w", err)
	}
	return members, nil
}

func scanClusterSummaries(rows *Rows, capacity int) ([]ClusterSummary, error) {
	if capacity < 0 {
		capacity = 0
	}

	items := make([]ClusterSummary, 0, capacity)
	for rows.Next() {
		var row ClusterSummary
		if err := rows.Scan(
			&row.ClusterID,
			&row.ClusterKey,
			&row.MemberCount,
			&row.RepresentativeUUID,
			&row.RepresentativeTitle,
			&row.RepresentativeURL,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cluster summary row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster summary rows: %w", err)
	}
	return items, nil
}
