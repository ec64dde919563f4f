package dedupe

import (
	"testing"

	"horse.fit/collate/internal/normalize"
)

func urlComparable(id int64, rawURL, title, body string) Comparable {
	return Comparable{
		ItemID:           id,
		Title:            title,
		Body:             body,
		CanonicalURL:     normalize.CanonicalURL(rawURL),
		CanonicalURLHash: normalize.URLHash(rawURL),
		ContentHash:      normalize.ContentHash(title, body),
	}
}

func TestExactURL_TrackingVariantsMatch(t *testing.T) {
	t.Parallel()

	item := urlComparable(1, "https://example.com/story?utm_source=feed", "Quake hits coastal region overnight", "")
	candidate := urlComparable(2, "https://example.com/story", "Completely different headline here", "")

	out := exactURLStrategy{}.Evaluate(item, candidate)
	if out.Status != StatusDuplicate {
		t.Fatalf("expected DUPLICATE, got %s (%s)", out.Status, out.Reason)
	}
	if out.Reason != ReasonExactURLMatch {
		t.Fatalf("unexpected reason: %s", out.Reason)
	}
	if out.Score != 1 {
		t.Fatalf("unexpected score: %v", out.Score)
	}
}

func TestExactURL_MismatchIsDistinct(t *testing.T) {
	t.Parallel()

	item := urlComparable(1, "https://example.com/a", "t", "")
	candidate := urlComparable(2, "https://example.com/b", "t", "")

	out := exactURLStrategy{}.Evaluate(item, candidate)
	if out.Status != StatusDistinct || out.Reason != ReasonURLMismatch {
		t.Fatalf("expected DISTINCT/url_mismatch, got %s/%s", out.Status, out.Reason)
	}
}

func TestExactURL_MissingSides(t *testing.T) {
	t.Parallel()

	withURL := urlComparable(1, "https://example.com/a", "t", "")
	withoutURL := Comparable{ItemID: 2, Title: "t"}

	cases := []struct {
		name       string
		item       Comparable
		candidate  Comparable
		wantReason string
	}{
		{"left missing", withoutURL, withURL, ReasonURLMissingLeft},
		{"right missing", withURL, withoutURL, ReasonURLMissingRight},
		{"both missing", withoutURL, withoutURL, ReasonURLMissingBoth},
	}
	for _, tc := range cases {
		out := exactURLStrategy{}.Evaluate(tc.item, tc.candidate)
		if out.Status != StatusAbstain || out.Reason != tc.wantReason {
			t.Fatalf("%s: expected ABSTAIN/%s, got %s/%s", tc.name, tc.wantReason, out.Status, out.Reason)
		}
	}
}

func TestContentHash_MatchAndMismatch(t *testing.T) {
	t.Parallel()

	left := Comparable{ItemID: 1, Title: "Big News!", Body: "It happened;  today."}
	right := Comparable{ItemID: 2, Title: "big news", Body: "it happened today"}
	out := contentHashStrategy{}.Evaluate(left, right)
	if out.Status != StatusDuplicate || out.Reason != ReasonContentHashMatch {
		t.Fatalf("expected DUPLICATE/content_hash_match, got %s/%s", out.Status, out.Reason)
	}

	// A mismatch abstains rather than deciding distinct: a one-word edit
	// must still be catchable by title similarity.
	edited := Comparable{ItemID: 3, Title: "big news", Body: "it happened yesterday"}
	out = contentHashStrategy{}.Evaluate(left, edited)
	if out.Status != StatusAbstain || out.Reason != ReasonContentHashMismatch {
		t.Fatalf("expected ABSTAIN/content_hash_mismatch, got %s/%s", out.Status, out.Reason)
	}
}

func TestContentHash_MissingContent(t *testing.T) {
	t.Parallel()

	out := contentHashStrategy{}.Evaluate(Comparable{ItemID: 1}, Comparable{ItemID: 2, Title: "x"})
	if out.Status != StatusAbstain || out.Reason != ReasonContentMissing {
		t.Fatalf("expected ABSTAIN/content_missing, got %s/%s", out.Status, out.Reason)
	}
}

func TestTitleSimilarity_SubsetTitlesMatch(t *testing.T) {
	t.Parallel()

	s := titleSimilarityStrategy{threshold: 0.92}
	item := Comparable{ItemID: 1, Title: "Central bank raises interest rates again"}
	candidate := Comparable{ItemID: 2, Title: "Central bank raises interest rates again - live updates"}

	out := s.Evaluate(item, candidate)
	if out.Status != StatusDuplicate || out.Reason != ReasonTitleMatch {
		t.Fatalf("expected DUPLICATE/title_similarity_match, got %s/%s", out.Status, out.Reason)
	}
	if out.Score < 0.92 {
		t.Fatalf("expected score >= threshold, got %v", out.Score)
	}
}

func TestTitleSimilarity_BelowThresholdIsDistinct(t *testing.T) {
	t.Parallel()

	s := titleSimilarityStrategy{threshold: 0.92}
	item := Comparable{ItemID: 1, Title: "Central bank raises interest rates"}
	candidate := Comparable{ItemID: 2, Title: "Local team wins championship final"}

	out := s.Evaluate(item, candidate)
	if out.Status != StatusDistinct || out.Reason != ReasonBelowThreshold {
		t.Fatalf("expected DISTINCT/below_threshold, got %s/%s", out.Status, out.Reason)
	}
	if out.Score >= 0.92 {
		t.Fatalf("expected score below threshold, got %v", out.Score)
	}
}

func TestTitleSimilarity_ShortTitleAbstains(t *testing.T) {
	t.Parallel()

	s := titleSimilarityStrategy{threshold: 0.92}
	out := s.Evaluate(
		Comparable{ItemID: 1, Title: "Market update"},
		Comparable{ItemID: 2, Title: "Market update today extended"},
	)
	if out.Status != StatusAbstain || out.Reason != ReasonTitleTooShort {
		t.Fatalf("expected ABSTAIN/title_too_short, got %s/%s", out.Status, out.Reason)
	}
}

func TestBuildChain_UnknownStrategy(t *testing.T) {
	t.Parallel()

	if _, err := BuildChain([]string{"exact_url", "phrenology"}, 0.92); err == nil {
		t.Fatalf("expected error for unknown strategy name")
	}
	if _, err := BuildChain(nil, 0.92); err == nil {
		t.Fatalf("expected error for empty order")
	}
}

func TestBuildChain_PreservesOrder(t *testing.T) {
	t.Parallel()

	chain, err := BuildChain([]string{"title_similarity", "exact_url"}, 0.92)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chain) != 2 || chain[0].Name() != StrategyTitleSimilarity || chain[1].Name() != StrategyExactURL {
		t.Fatalf("unexpected chain order: %v, %v", chain[0].Name(), chain[1].Name())
	}
}
