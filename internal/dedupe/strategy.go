package dedupe

import (
	"bytes"
	"fmt"
	"time"

	"horse.fit/collate/internal/normalize"
)

// Strategy names accepted in a chain order.
const (
	StrategyExactURL        = "exact_url"
	StrategyContentHash     = "content_hash"
	StrategyTitleSimilarity = "title_similarity"

	// StrategyChain labels the synthesized DISTINCT decision recorded when
	// every configured strategy abstained on a pair.
	StrategyChain = "chain"

	// StrategyClusterMerge labels decisions recorded for cluster merges.
	StrategyClusterMerge = "cluster_merge"
)

// Reason codes carried on outcomes and persisted with decisions.
const (
	ReasonExactURLMatch       = "exact_url_match"
	ReasonURLMismatch         = "url_mismatch"
	ReasonURLMissingLeft      = "url_missing_left"
	ReasonURLMissingRight     = "url_missing_right"
	ReasonURLMissingBoth      = "url_missing_both"
	ReasonContentHashMatch    = "content_hash_match"
	ReasonContentHashMismatch = "content_hash_mismatch"
	ReasonContentMissing      = "content_missing"
	ReasonTitleMatch          = "title_similarity_match"
	ReasonBelowThreshold      = "below_threshold"
	ReasonTitleTooShort       = "title_too_short"
	ReasonNoStrategyMatch     = "no_strategy_match"
	ReasonClusterMerge        = "cluster_merge"
)

// Comparable carries the normalized fields strategies read. The engine fills
// it from persisted item rows; tests construct it directly.
type Comparable struct {
	ItemID           int64
	Title            string
	Body             string
	CanonicalURL     string
	CanonicalURLHash []byte
	ContentHash      []byte
	PublishedAt      *time.Time
}

// Strategy compares one new item against one candidate representative and
// returns exactly one Outcome. Implementations are pure.
type Strategy interface {
	Name() string
	Evaluate(item, candidate Comparable) Outcome
}

// BuildChain resolves a configured strategy order into executable strategies.
// Unknown names are a startup error, never skipped.
func BuildChain(order []string, similarityThreshold float64) ([]Strategy, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("strategy order is empty")
	}

	chain := make([]Strategy, 0, len(order))
	for _, name := range order {
		switch name {
		case StrategyExactURL:
			chain = append(chain, exactURLStrategy{})
		case StrategyContentHash:
			chain = append(chain, contentHashStrategy{})
		case StrategyTitleSimilarity:
			chain = append(chain, titleSimilarityStrategy{threshold: similarityThreshold})
		default:
			return nil, fmt.Errorf("unknown dedupe strategy %q", name)
		}
	}
	return chain, nil
}

// exactURLStrategy compares canonical-URL hashes. It is the cheapest check
// and typically runs first.
type exactURLStrategy struct{}

func (exactURLStrategy) Name() string { return StrategyExactURL }

func (exactURLStrategy) Evaluate(item, candidate Comparable) Outcome {
	leftMissing := len(item.CanonicalURLHash) == 0
	rightMissing := len(candidate.CanonicalURLHash) == 0
	switch {
	case leftMissing && rightMissing:
		return Abstain(ReasonURLMissingBoth)
	case leftMissing:
		return Abstain(ReasonURLMissingLeft)
	case rightMissing:
		return Abstain(ReasonURLMissingRight)
	}

	if bytes.Equal(item.CanonicalURLHash, candidate.CanonicalURLHash) {
		return Duplicate(1, ReasonExactURLMatch)
	}
	// Two distinct canonical URLs are treated as distinct publications even
	// when later strategies might have scored the text close.
	return Distinct(ReasonURLMismatch)
}

// contentHashStrategy compares normalized-content hashes. A hash mismatch is
// not evidence of distinctness: minor edits change the hash, so the strategy
// abstains and defers to similarity.
type contentHashStrategy struct{}

func (contentHashStrategy) Name() string { return StrategyContentHash }

func (contentHashStrategy) Evaluate(item, candidate Comparable) Outcome {
	left := item.contentHash()
	right := candidate.contentHash()
	if len(left) == 0 || len(right) == 0 {
		return Abstain(ReasonContentMissing)
	}
	if bytes.Equal(left, right) {
		return Duplicate(1, ReasonContentHashMatch)
	}
	return Abstain(ReasonContentHashMismatch)
}

// titleSimilarityStrategy scores title token overlap and decides against a
// configured threshold. Titles with fewer than three tokens carry too little
// signal to decide either way.
type titleSimilarityStrategy struct {
	threshold float64
}

const minTitleTokens = 3

func (titleSimilarityStrategy) Name() string { return StrategyTitleSimilarity }

func (s titleSimilarityStrategy) Evaluate(item, candidate Comparable) Outcome {
	left := normalize.SimilarityText(item.Title)
	right := normalize.SimilarityText(candidate.Title)
	if normalize.TokenCount(left) < minTitleTokens || normalize.TokenCount(right) < minTitleTokens {
		return Abstain(ReasonTitleTooShort)
	}

	score := TokenSetRatio(left, right)
	if score >= s.threshold {
		return Duplicate(score, ReasonTitleMatch)
	}
	out := Distinct(ReasonBelowThreshold)
	out.Score = score
	out.Scored = true
	return out
}

func (c Comparable) contentHash() []byte {
	if len(c.ContentHash) > 0 {
		return c.ContentHash
	}
	return normalize.ContentHash(c.Title, c.Body)
}
