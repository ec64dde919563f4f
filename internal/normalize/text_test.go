package normalize

import "testing"

func TestHashText_CollapsesCasingAndPunctuation(t *testing.T) {
	t.Parallel()

	left := HashText("NASA Confirms: New Exoplanet Discovery!")
	right := HashText("nasa confirms   new exoplanet discovery")
	if left != right {
		t.Fatalf("expected identical hash text, got %q vs %q", left, right)
	}
	if left != "nasa confirms new exoplanet discovery" {
		t.Fatalf("unexpected hash text: %q", left)
	}
}

func TestHashText_NFKCFold(t *testing.T) {
	t.Parallel()

	// Fullwidth forms fold to ASCII under NFKC.
	if got := HashText("Ｈｅｌｌｏ　Ｗｏｒｌｄ"); got != "hello world" {
		t.Fatalf("unexpected NFKC result: %q", got)
	}
}

func TestHashText_Empty(t *testing.T) {
	t.Parallel()

	if got := HashText(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := HashText("!!! ..."); got != "" {
		t.Fatalf("expected punctuation-only input to normalize empty, got %q", got)
	}
}

func TestSimilarityText_PreservesBoundaries(t *testing.T) {
	t.Parallel()

	got := SimilarityText("Breaking:  NASA   confirms\tdiscovery")
	if got != "breaking: nasa confirms discovery" {
		t.Fatalf("unexpected similarity text: %q", got)
	}
}

func TestTokenCount(t *testing.T) {
	t.Parallel()

	if got := TokenCount(""); got != 0 {
		t.Fatalf("expected 0 tokens, got %d", got)
	}
	if got := TokenCount(SimilarityText("one two three")); got != 3 {
		t.Fatalf("expected 3 tokens, got %d", got)
	}
}

func TestContentHash_RawVariantsCollide(t *testing.T) {
	t.Parallel()

	left := ContentHash("Big News!", "It happened;  today.")
	right := ContentHash("big news", "it happened today")
	if left == nil || right == nil {
		t.Fatalf("expected non-nil hashes")
	}
	if string(left) != string(right) {
		t.Fatalf("expected normalized variants to hash identically")
	}

	if ContentHash("", "") != nil {
		t.Fatalf("expected nil hash for empty content")
	}
}

func TestContentHash_EmbeddedURLTrackingStripped(t *testing.T) {
	t.Parallel()

	left := ContentHash("title", "read https://example.com/story?utm_source=feed now")
	right := ContentHash("title", "read https://example.com/story now")
	if string(left) != string(right) {
		t.Fatalf("expected embedded tracking params to be stripped before hashing")
	}
}
