package dedupe

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/collate/internal/db"
	"horse.fit/collate/internal/globaltime"
)

const (
	DefaultHorizon             = 72 * time.Hour
	DefaultSimilarityThreshold = 0.92
	DefaultCandidateCap        = 50
)

// DefaultStrategyOrder is the chain used when no explicit order is
// configured: cheapest and most precise first.
func DefaultStrategyOrder() []string {
	return []string{StrategyExactURL, StrategyContentHash, StrategyTitleSimilarity}
}

// Options tune one evaluation run. Zero values fall back to defaults.
type Options struct {
	Horizon             time.Duration
	SimilarityThreshold float64
	CandidateCap        int
	StrategyOrder       []string
}

func (o Options) withDefaults() Options {
	if o.Horizon <= 0 {
		o.Horizon = DefaultHorizon
	}
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if o.CandidateCap <= 0 {
		o.CandidateCap = DefaultCandidateCap
	}
	if len(o.StrategyOrder) == 0 {
		o.StrategyOrder = DefaultStrategyOrder()
	}
	return o
}

// Actions reported by Evaluate.
const (
	ActionCreated  = "created"
	ActionExtended = "extended"
	ActionMerged   = "merged"
	ActionNoop     = "noop"
)

// EvaluateResult describes what one evaluation did to cluster state.
type EvaluateResult struct {
	ItemID           int64
	ClusterID        int64
	ClusterKey       string
	Action           string
	MergedClusterIDs []int64
}

// ProcessResult summarizes a batch run over pending items.
type ProcessResult struct {
	Reset     int64
	Processed int
	Created   int
	Extended  int
	Merged    int
	Noops     int
}

// RecomputeResult summarizes a maintenance pass.
type RecomputeResult struct {
	OrphanMembersRemoved   int64
	EmptyClustersRemoved   int64
	RepresentativesUpdated int
}

// Engine owns all cluster mutations. One Engine per process; the writer gate
// inside it serializes concurrent callers.
type Engine struct {
	pool   *db.Pool
	logger zerolog.Logger
	gate   writerGate
}

func NewEngine(pool *db.Pool, logger zerolog.Logger) *Engine {
	return &Engine{
		pool:   pool,
		logger: logger.With().Str("component", "dedupe").Logger(),
	}
}

// Evaluate runs the full dedupe decision for one item inside a single
// transaction: candidate selection, the strategy chain per candidate,
// decision recording, and exactly one cluster mutation. On any error the
// transaction rolls back and the item stays pending.
func (e *Engine) Evaluate(ctx context.Context, itemID int64, opts Options) (EvaluateResult, error) {
	opts = opts.withDefaults()
	chain, err := BuildChain(opts.StrategyOrder, opts.SimilarityThreshold)
	if err != nil {
		return EvaluateResult{}, err
	}

	if err := e.gate.acquire(ctx); err != nil {
		return EvaluateResult{}, err
	}
	defer e.gate.release()

	tx, err := e.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("begin dedupe transaction: %w", err)
	}
	if err := lockWriterTx(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return EvaluateResult{}, err
	}

	result, err := e.evaluateTx(ctx, tx, chain, itemID, opts)
	if err != nil {
		_ = tx.Rollback(ctx)
		return EvaluateResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return EvaluateResult{}, fmt.Errorf("commit dedupe transaction: %w", err)
	}

	e.logger.Info().
		Int64("item_id", result.ItemID).
		Int64("cluster_id", result.ClusterID).
		Str("cluster_key", result.ClusterKey).
		Str("action", result.Action).
		Ints64("merged_cluster_ids", result.MergedClusterIDs).
		Msg("evaluated item")
	return result, nil
}

func (e *Engine) evaluateTx(ctx context.Context, tx db.Tx, chain []Strategy, itemID int64, opts Options) (EvaluateResult, error) {
	item, domain, err := loadItemForDedupeTx(ctx, tx, itemID)
	if err != nil {
		return EvaluateResult{}, err
	}

	// Re-running a clustered item is a no-op relative to cluster state.
	if clusterID, clusterKey, ok, err := findMembershipTx(ctx, tx, itemID); err != nil {
		return EvaluateResult{}, err
	} else if ok {
		if err := markItemClusteredTx(ctx, tx, itemID); err != nil {
			return EvaluateResult{}, err
		}
		return EvaluateResult{ItemID: itemID, ClusterID: clusterID, ClusterKey: clusterKey, Action: ActionNoop}, nil
	}

	now := globaltime.Now().UTC()
	candidates, err := selectCandidatesTx(ctx, tx, item, domain, opts.Horizon, opts.CandidateCap, now)
	if err != nil {
		return EvaluateResult{}, err
	}

	var matched []candidateCluster
	for _, candidate := range candidates {
		outcome, attempts, err := ExecuteChain(chain, item, candidate.Representative)
		if err != nil {
			return EvaluateResult{}, err
		}
		if err := insertAttemptsTx(ctx, tx, itemID, candidate, attempts); err != nil {
			return EvaluateResult{}, err
		}
		if outcome.Status == StatusDuplicate {
			matched = append(matched, candidate)
		}
	}

	result := EvaluateResult{ItemID: itemID}
	switch len(matched) {
	case 0:
		clusterID, clusterKey, err := createClusterTx(ctx, tx, itemID)
		if err != nil {
			return EvaluateResult{}, err
		}
		result.ClusterID = clusterID
		result.ClusterKey = clusterKey
		result.Action = ActionCreated

	case 1:
		result.ClusterID = matched[0].ClusterID
		result.ClusterKey = matched[0].ClusterKey
		result.Action = ActionExtended

	default:
		target, sources := mergePlan(matched)
		if err := mergeClustersTx(ctx, tx, itemID, target.ClusterID, sources); err != nil {
			return EvaluateResult{}, err
		}
		result.ClusterID = target.ClusterID
		result.ClusterKey = target.ClusterKey
		result.Action = ActionMerged
		result.MergedClusterIDs = sources
	}

	if result.Action != ActionCreated {
		if err := insertMemberTx(ctx, tx, result.ClusterID, itemID); err != nil {
			return EvaluateResult{}, err
		}
	}
	if _, err := recomputeRepresentativeTx(ctx, tx, result.ClusterID); err != nil {
		return EvaluateResult{}, err
	}
	if err := markItemClusteredTx(ctx, tx, itemID); err != nil {
		return EvaluateResult{}, err
	}
	return result, nil
}

// mergePlan picks the merge target: the oldest cluster, i.e. the smallest
// cluster_id. Everything else is absorbed.
func mergePlan(matched []candidateCluster) (candidateCluster, []int64) {
	ranked := make([]candidateCluster, len(matched))
	copy(ranked, matched)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].ClusterID < ranked[j].ClusterID
	})

	sources := make([]int64, 0, len(ranked)-1)
	for _, c := range ranked[1:] {
		sources = append(sources, c.ClusterID)
	}
	return ranked[0], sources
}

// ProcessPending evaluates up to limit pending items in item_id order. The
// first failure aborts the batch; remaining items stay pending for the next
// run.
func (e *Engine) ProcessPending(ctx context.Context, limit int, opts Options) (ProcessResult, error) {
	if limit <= 0 {
		limit = 100
	}

	var result ProcessResult
	ids, err := e.listPendingItemIDs(ctx, limit)
	if err != nil {
		return result, err
	}

	for _, id := range ids {
		evalResult, err := e.Evaluate(ctx, id, opts)
		if err != nil {
			return result, fmt.Errorf("evaluate item %d: %w", id, err)
		}
		result.Processed++
		switch evalResult.Action {
		case ActionCreated:
			result.Created++
		case ActionExtended:
			result.Extended++
		case ActionMerged:
			result.Merged++
		default:
			result.Noops++
		}
	}
	return result, nil
}

// Sweep is the reconciliation pass: items marked clustered without a
// membership row (an interrupted run) are reset to pending, then the pending
// backlog is processed.
func (e *Engine) Sweep(ctx context.Context, limit int, opts Options) (ProcessResult, error) {
	reset, err := e.resetStrandedItems(ctx)
	if err != nil {
		return ProcessResult{}, err
	}

	result, err := e.ProcessPending(ctx, limit, opts)
	result.Reset = reset
	if err != nil {
		return result, err
	}

	e.logger.Info().
		Int64("reset", result.Reset).
		Int("processed", result.Processed).
		Int("created", result.Created).
		Int("extended", result.Extended).
		Int("merged", result.Merged).
		Msg("sweep finished")
	return result, nil
}

// resetStrandedItems flips items marked clustered without a membership row
// back to pending. It mutates dedupe state, so it runs under the writer
// lock like every other mutation.
func (e *Engine) resetStrandedItems(ctx context.Context) (int64, error) {
	if err := e.gate.acquire(ctx); err != nil {
		return 0, err
	}
	defer e.gate.release()

	tx, err := e.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin reset transaction: %w", err)
	}
	if err := lockWriterTx(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE collate_core.items i
		SET dedupe_state = 'pending', updated_at = now()
		WHERE i.dedupe_state = 'clustered'
		  AND NOT EXISTS (
			SELECT 1 FROM collate_core.dedupe_members m WHERE m.item_id = i.item_id
		  )`)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("reset stranded items: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit reset transaction: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecomputeClusters is the maintenance pass invoked after items are purged
// out-of-band: drop members whose item is gone, drop clusters left empty,
// and re-pick every representative.
func (e *Engine) RecomputeClusters(ctx context.Context) (RecomputeResult, error) {
	if err := e.gate.acquire(ctx); err != nil {
		return RecomputeResult{}, err
	}
	defer e.gate.release()

	tx, err := e.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return RecomputeResult{}, fmt.Errorf("begin recompute transaction: %w", err)
	}
	if err := lockWriterTx(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return RecomputeResult{}, err
	}

	result, err := e.recomputeClustersTx(ctx, tx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return RecomputeResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return RecomputeResult{}, fmt.Errorf("commit recompute transaction: %w", err)
	}

	e.logger.Info().
		Int64("orphan_members_removed", result.OrphanMembersRemoved).
		Int64("empty_clusters_removed", result.EmptyClustersRemoved).
		Int("representatives_updated", result.RepresentativesUpdated).
		Msg("recomputed clusters")
	return result, nil
}

func (e *Engine) recomputeClustersTx(ctx context.Context, tx db.Tx) (RecomputeResult, error) {
	var result RecomputeResult

	tag, err := tx.Exec(ctx, `
		DELETE FROM collate_core.dedupe_members m
		WHERE NOT EXISTS (
			SELECT 1 FROM collate_core.items i WHERE i.item_id = m.item_id
		)`)
	if err != nil {
		return result, fmt.Errorf("delete orphan members: %w", err)
	}
	result.OrphanMembersRemoved = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		DELETE FROM collate_core.dedupe_clusters c
		WHERE NOT EXISTS (
			SELECT 1 FROM collate_core.dedupe_members m WHERE m.cluster_id = c.cluster_id
		)`)
	if err != nil {
		return result, fmt.Errorf("delete empty clusters: %w", err)
	}
	result.EmptyClustersRemoved = tag.RowsAffected()

	type clusterRep struct {
		clusterID int64
		repItemID *int64
	}
	rows, err := tx.Query(ctx, `
		SELECT cluster_id, representative_item_id
		FROM collate_core.dedupe_clusters
		ORDER BY cluster_id`)
	if err != nil {
		return result, fmt.Errorf("list clusters: %w", err)
	}
	var clusters []clusterRep
	for rows.Next() {
		var c clusterRep
		if err := rows.Scan(&c.clusterID, &c.repItemID); err != nil {
			rows.Close()
			return result, fmt.Errorf("scan cluster: %w", err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return result, fmt.Errorf("iterate clusters: %w", err)
	}
	rows.Close()

	for _, c := range clusters {
		repID, err := recomputeRepresentativeTx(ctx, tx, c.clusterID)
		if err != nil {
			return result, err
		}
		if c.repItemID == nil || *c.repItemID != repID {
			result.RepresentativesUpdated++
		}
	}
	return result, nil
}

func (e *Engine) listPendingItemIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT item_id
		FROM collate_core.items
		WHERE dedupe_state = 'pending'
		ORDER BY item_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending item: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending items: %w", err)
	}
	return ids, nil
}

func loadItemForDedupeTx(ctx context.Context, tx db.Tx, itemID int64) (Comparable, string, error) {
	var (
		item   Comparable
		domain string
	)
	err := tx.QueryRow(ctx, `
		SELECT item_id,
		       title,
		       body,
		       COALESCE(canonical_url, ''),
		       canonical_url_hash,
		       content_hash,
		       published_at,
		       COALESCE(url_domain, '')
		FROM collate_core.items
		WHERE item_id = ?
		FOR UPDATE`, itemID).Scan(
		&item.ItemID,
		&item.Title,
		&item.Body,
		&item.CanonicalURL,
		&item.CanonicalURLHash,
		&item.ContentHash,
		&item.PublishedAt,
		&domain,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return Comparable{}, "", fmt.Errorf("item %d: %w", itemID, db.ErrNoRows)
		}
		return Comparable{}, "", fmt.Errorf("load item %d: %w", itemID, err)
	}
	return item, domain, nil
}

func findMembershipTx(ctx context.Context, tx db.Tx, itemID int64) (int64, string, bool, error) {
	var (
		clusterID  int64
		clusterKey string
	)
	err := tx.QueryRow(ctx, `
		SELECT m.cluster_id, c.cluster_key
		FROM collate_core.dedupe_members m
		JOIN collate_core.dedupe_clusters c ON c.cluster_id = m.cluster_id
		WHERE m.item_id = ?`, itemID).Scan(&clusterID, &clusterKey)
	if err != nil {
		if db.IsNoRows(err) {
			return 0, "", false, nil
		}
		return 0, "", false, fmt.Errorf("find membership for item %d: %w", itemID, err)
	}
	return clusterID, clusterKey, true, nil
}

func createClusterTx(ctx context.Context, tx db.Tx, itemID int64) (int64, string, error) {
	clusterKey := uuid.NewString()

	var clusterID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO collate_core.dedupe_clusters (cluster_key, representative_item_id, created_at, updated_at)
		VALUES (?, ?, now(), now())
		RETURNING cluster_id`, clusterKey, itemID).Scan(&clusterID)
	if err != nil {
		return 0, "", fmt.Errorf("create cluster: %w", err)
	}
	if err := insertMemberTx(ctx, tx, clusterID, itemID); err != nil {
		return 0, "", err
	}
	return clusterID, clusterKey, nil
}

func insertMemberTx(ctx context.Context, tx db.Tx, clusterID, itemID int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO collate_core.dedupe_members (cluster_id, item_id, added_at)
		VALUES (?, ?, now())
		ON CONFLICT DO NOTHING`, clusterID, itemID)
	if err != nil {
		return fmt.Errorf("insert member (cluster %d, item %d): %w", clusterID, itemID, err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE collate_core.dedupe_clusters SET updated_at = now() WHERE cluster_id = ?`, clusterID)
	if err != nil {
		return fmt.Errorf("touch cluster %d: %w", clusterID, err)
	}
	return nil
}

// mergeClustersTx absorbs the source clusters into the target. Memberships
// are disjoint (item_id is unique across clusters), so moving rows cannot
// conflict. One merge decision is recorded per absorbed cluster.
func mergeClustersTx(ctx context.Context, tx db.Tx, itemID, targetClusterID int64, sourceClusterIDs []int64) error {
	for _, sourceID := range sourceClusterIDs {
		if _, err := tx.Exec(ctx, `
			UPDATE collate_core.dedupe_members
			SET cluster_id = ?
			WHERE cluster_id = ?`, targetClusterID, sourceID); err != nil {
			return fmt.Errorf("move members from cluster %d to %d: %w", sourceID, targetClusterID, err)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM collate_core.dedupe_clusters WHERE cluster_id = ?`, sourceID); err != nil {
			return fmt.Errorf("delete merged cluster %d: %w", sourceID, err)
		}
		if err := insertMergeDecisionTx(ctx, tx, itemID, sourceID, targetClusterID); err != nil {
			return err
		}
	}

	var leftover int64
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM collate_core.dedupe_members WHERE cluster_id IN ?`, sourceClusterIDs).Scan(&leftover); err != nil {
		return fmt.Errorf("verify merge of clusters %v: %w", sourceClusterIDs, err)
	}
	if leftover != 0 {
		return fmt.Errorf("merge left %d member rows on absorbed clusters %v", leftover, sourceClusterIDs)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE collate_core.dedupe_clusters SET updated_at = now() WHERE cluster_id = ?`, targetClusterID); err != nil {
		return fmt.Errorf("touch merge target %d: %w", targetClusterID, err)
	}
	return nil
}

// attemptScore maps an attempt to its persisted score: the computed value
// when the strategy scored the pair, NULL otherwise.
func attemptScore(attempt Attempt) *float64 {
	if !attempt.Outcome.Scored {
		return nil
	}
	score := attempt.Outcome.Score
	return &score
}

func insertAttemptsTx(ctx context.Context, tx db.Tx, itemID int64, candidate candidateCluster, attempts []Attempt) error {
	for _, attempt := range attempts {
		score := attemptScore(attempt)
		if _, err := tx.Exec(ctx, `
			INSERT INTO collate_core.dedupe_decisions
				(item_id, cluster_id, candidate_item_id, strategy, outcome, reason, score, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, now())`,
			itemID,
			candidate.ClusterID,
			candidate.Representative.ItemID,
			attempt.Strategy,
			string(attempt.Outcome.Status),
			attempt.Outcome.Reason,
			score,
		); err != nil {
			return fmt.Errorf("insert decision (item %d, strategy %s): %w", itemID, attempt.Strategy, err)
		}
	}
	return nil
}

func insertMergeDecisionTx(ctx context.Context, tx db.Tx, itemID, sourceClusterID, targetClusterID int64) error {
	details, err := json.Marshal(map[string]int64{
		"source_cluster_id": sourceClusterID,
		"target_cluster_id": targetClusterID,
	})
	if err != nil {
		return fmt.Errorf("marshal merge details: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO collate_core.dedupe_decisions
			(item_id, cluster_id, strategy, outcome, reason, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, now())`,
		itemID,
		targetClusterID,
		StrategyClusterMerge,
		string(StatusDuplicate),
		ReasonClusterMerge,
		details,
	); err != nil {
		return fmt.Errorf("insert merge decision (clusters %d -> %d): %w", sourceClusterID, targetClusterID, err)
	}
	return nil
}

func recomputeRepresentativeTx(ctx context.Context, tx db.Tx, clusterID int64) (int64, error) {
	rows, err := tx.Query(ctx, `
		SELECT i.item_id,
		       i.title,
		       i.body,
		       (i.canonical_url IS NOT NULL AND i.canonical_url <> ''),
		       i.published_at
		FROM collate_core.dedupe_members m
		JOIN collate_core.items i ON i.item_id = m.item_id
		WHERE m.cluster_id = ?`, clusterID)
	if err != nil {
		return 0, fmt.Errorf("load members of cluster %d: %w", clusterID, err)
	}
	defer rows.Close()

	var members []memberItem
	for rows.Next() {
		var m memberItem
		if err := rows.Scan(&m.ItemID, &m.Title, &m.Body, &m.HasURL, &m.PublishedAt); err != nil {
			return 0, fmt.Errorf("scan member of cluster %d: %w", clusterID, err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate members of cluster %d: %w", clusterID, err)
	}

	repID, ok := chooseRepresentative(members)
	if !ok {
		return 0, fmt.Errorf("cluster %d has no members", clusterID)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE collate_core.dedupe_clusters
		SET representative_item_id = ?, updated_at = now()
		WHERE cluster_id = ?`, repID, clusterID); err != nil {
		return 0, fmt.Errorf("update representative of cluster %d: %w", clusterID, err)
	}
	return repID, nil
}

func markItemClusteredTx(ctx context.Context, tx db.Tx, itemID int64) error {
	if _, err := tx.Exec(ctx, `
		UPDATE collate_core.items
		SET dedupe_state = 'clustered', updated_at = now()
		WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("mark item %d clustered: %w", itemID, err)
	}
	return nil
}
