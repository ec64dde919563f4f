package dedupe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"horse.fit/collate/internal/db"
	"horse.fit/collate/internal/normalize"
)

// candidateCluster is one cluster admitted by the blocking keys, loaded with
// its representative's comparison fields.
type candidateCluster struct {
	ClusterID      int64
	ClusterKey     string
	Representative Comparable
	LastActivityAt time.Time
}

const (
	rareTokenMinLength = 5
	rareTokenLimit     = 8
)

// rareTitleTokens extracts the blocking tokens of a title: hash-normalized
// (so tokens are plain alphanumerics, safe inside a tsquery), at least five
// runes, deduplicated, longest first, capped.
func rareTitleTokens(title string) []string {
	fields := strings.Fields(normalize.HashText(title))
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < rareTokenMinLength || !isAlphanumeric(f) {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		return len(tokens[i]) > len(tokens[j])
	})
	if len(tokens) > rareTokenLimit {
		tokens = tokens[:rareTokenLimit]
	}
	return tokens
}

func isAlphanumeric(token string) bool {
	for _, r := range token {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// titleTokenQuery renders blocking tokens as an OR tsquery, or "" when the
// title carries no usable token.
func titleTokenQuery(tokens []string) string {
	return strings.Join(tokens, " | ")
}

// selectCandidatesTx reduces the cluster population to the candidate set for
// one item: clusters with activity inside the horizon that share at least
// one blocking key (canonical-URL hash, domain, or a rare title token),
// ordered by most recent activity, capped. Any lookup failure aborts the
// evaluation; a partial candidate set is never matched against.
func selectCandidatesTx(ctx context.Context, tx db.Tx, item Comparable, domain string, horizon time.Duration, cap int, now time.Time) ([]candidateCluster, error) {
	cutoff := now.Add(-horizon)
	tsquery := titleTokenQuery(rareTitleTokens(item.Title))

	rows, err := tx.Query(ctx, `
		SELECT c.cluster_id,
		       c.cluster_key,
		       rep.item_id,
		       rep.title,
		       rep.body,
		       COALESCE(rep.canonical_url, ''),
		       rep.canonical_url_hash,
		       rep.content_hash,
		       rep.published_at,
		       recent.last_activity_at
		FROM collate_core.dedupe_clusters c
		JOIN LATERAL (
			SELECT MAX(COALESCE(i.published_at, i.created_at)) AS last_activity_at
			FROM collate_core.dedupe_members m
			JOIN collate_core.items i ON i.item_id = m.item_id
			WHERE m.cluster_id = c.cluster_id
		) recent ON TRUE
		JOIN collate_core.items rep ON rep.item_id = c.representative_item_id
		WHERE recent.last_activity_at >= ?
		  AND EXISTS (
			SELECT 1
			FROM collate_core.dedupe_members m
			JOIN collate_core.items i ON i.item_id = m.item_id
			WHERE m.cluster_id = c.cluster_id
			  AND (
				(length(?::bytea) > 0 AND i.canonical_url_hash = ?::bytea)
				OR (?::text <> '' AND i.url_domain = ?::text)
				OR (?::text <> '' AND to_tsvector('simple', i.title) @@ to_tsquery('simple', ?::text))
			  )
		  )
		ORDER BY recent.last_activity_at DESC, c.cluster_id DESC
		LIMIT ?`,
		cutoff,
		item.CanonicalURLHash, item.CanonicalURLHash,
		domain, domain,
		tsquery, tsquery,
		cap,
	)
	if err != nil {
		return nil, fmt.Errorf("select candidate clusters: %w", err)
	}
	defer rows.Close()

	var candidates []candidateCluster
	for rows.Next() {
		var c candidateCluster
		if err := rows.Scan(
			&c.ClusterID,
			&c.ClusterKey,
			&c.Representative.ItemID,
			&c.Representative.Title,
			&c.Representative.Body,
			&c.Representative.CanonicalURL,
			&c.Representative.CanonicalURLHash,
			&c.Representative.ContentHash,
			&c.Representative.PublishedAt,
			&c.LastActivityAt,
		); err != nil {
			return nil, fmt.Errorf("scan candidate cluster: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate clusters: %w", err)
	}
	return candidates, nil
}
