package dedupe

import "testing"

func TestTokenSetRatio_Identical(t *testing.T) {
	t.Parallel()

	if got := TokenSetRatio("a b c", "c b a"); got != 1 {
		t.Fatalf("expected 1 for same token set, got %v", got)
	}
	if got := TokenSetRatio("a a b", "a b"); got != 1 {
		t.Fatalf("expected duplicate tokens to collapse, got %v", got)
	}
}

func TestTokenSetRatio_SubsetScoresOne(t *testing.T) {
	t.Parallel()

	got := TokenSetRatio(
		"central bank raises interest rates again",
		"central bank raises interest rates again - live updates",
	)
	if got != 1 {
		t.Fatalf("expected 1 for a token subset, got %v", got)
	}
}

func TestTokenSetRatio_Disjoint(t *testing.T) {
	t.Parallel()

	got := TokenSetRatio("alpha beta gamma", "delta epsilon zeta")
	if got > 0.5 {
		t.Fatalf("expected low score for disjoint sets, got %v", got)
	}
}

func TestTokenSetRatio_Empty(t *testing.T) {
	t.Parallel()

	if got := TokenSetRatio("", ""); got != 1 {
		t.Fatalf("expected 1 for two empty inputs, got %v", got)
	}
	if got := TokenSetRatio("a b", ""); got != 0 {
		t.Fatalf("expected 0 against an empty input, got %v", got)
	}
}

func TestTokenSetRatio_Symmetric(t *testing.T) {
	t.Parallel()

	left := "quake hits coastal region"
	right := "quake strikes coastal area overnight"
	if TokenSetRatio(left, right) != TokenSetRatio(right, left) {
		t.Fatalf("expected symmetric scores")
	}
}

func TestIndelSimilarity(t *testing.T) {
	t.Parallel()

	if got := indelSimilarity("abc", "abc"); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	if got := indelSimilarity("", ""); got != 1 {
		t.Fatalf("expected 1 for two empty strings, got %v", got)
	}
	if got := indelSimilarity("abcd", "ab"); got != 2.0/3.0 {
		t.Fatalf("expected 2/3, got %v", got)
	}
	if got := indelSimilarity("abc", "xyz"); got != 0 {
		t.Fatalf("expected 0 for disjoint strings, got %v", got)
	}
}
