package normalize

import "testing"

func TestCanonicalURL_StripsTrackingAndNormalizes(t *testing.T) {
	t.Parallel()

	got := CanonicalURL("https://Example.COM:443/news/path/?utm_source=abc&fbclid=123&b=2&a=1")
	if got != "https://example.com/news/path/?a=1&b=2" {
		t.Fatalf("unexpected canonical url: %q", got)
	}
}

func TestCanonicalURL_Invalid(t *testing.T) {
	t.Parallel()

	cases := []string{"", "   ", "not a url", "ftp://example.com/file", "mailto:a@b.c"}
	for _, raw := range cases {
		if got := CanonicalURL(raw); got != "" {
			t.Fatalf("expected empty result for %q, got %q", raw, got)
		}
	}
}

func TestCanonicalURL_KeepsNonDefaultPort(t *testing.T) {
	t.Parallel()

	if got := CanonicalURL("http://example.com:8080/a"); got != "http://example.com:8080/a" {
		t.Fatalf("unexpected canonical url: %q", got)
	}
	if got := CanonicalURL("http://example.com:80/a"); got != "http://example.com/a" {
		t.Fatalf("expected default port stripped, got %q", got)
	}
}

func TestCanonicalURL_UnwrapsLinkWrapper(t *testing.T) {
	t.Parallel()

	got := CanonicalURL("https://t.me/iv?url=https%3A%2F%2Fexample.com%2Fstory%3Futm_source%3Dx")
	if got != "https://example.com/story" {
		t.Fatalf("unexpected unwrapped url: %q", got)
	}

	// A wrapper without a target stays as-is.
	got = CanonicalURL("https://t.me/iv?rhash=abc123")
	if got != "https://t.me/iv?rhash=abc123" {
		t.Fatalf("unexpected wrapper passthrough: %q", got)
	}
}

func TestCanonicalURL_SortsQueryPairs(t *testing.T) {
	t.Parallel()

	left := CanonicalURL("https://example.com/a?z=1&a=2")
	right := CanonicalURL("https://example.com/a?a=2&z=1")
	if left != right {
		t.Fatalf("expected identical canonical urls, got %q vs %q", left, right)
	}
}

func TestURLDomain(t *testing.T) {
	t.Parallel()

	if got := URLDomain("https://News.Example.com/a/b"); got != "news.example.com" {
		t.Fatalf("unexpected domain: %q", got)
	}
	if got := URLDomain("garbage"); got != "" {
		t.Fatalf("expected empty domain, got %q", got)
	}
}

func TestURLHash_TrackingVariantsCollide(t *testing.T) {
	t.Parallel()

	left := URLHash("https://example.com/story?utm_campaign=a")
	right := URLHash("https://example.com/story")
	if left == nil || right == nil {
		t.Fatalf("expected non-nil hashes")
	}
	if string(left) != string(right) {
		t.Fatalf("expected tracking-param variants to hash identically")
	}
	if URLHash("not a url") != nil {
		t.Fatalf("expected nil hash for invalid url")
	}
}
