package normalize

import (
	"crypto/sha256"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var urlPattern = regexp.MustCompile(`(?i)https?://\S+`)

// HashText normalizes one text input for deterministic hash comparisons:
// NFKC fold, lowercase, canonicalize embedded URLs, replace every
// non-alphanumeric rune with a space, collapse whitespace, trim.
func HashText(value string) string {
	if value == "" {
		return ""
	}

	normalized := strings.ToLower(norm.NFKC.String(value))
	normalized = canonicalizeEmbeddedURLs(normalized)
	return collapseNonAlphanumeric(normalized)
}

// HashInput builds the hash-normalized input from title and body.
func HashInput(title, body string) string {
	return HashText(title + "\n" + body)
}

// ContentHash returns the SHA-256 over the hash-normalized title+body, or nil
// when both fields normalize to nothing.
func ContentHash(title, body string) []byte {
	input := HashInput(title, body)
	if input == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(input))
	return sum[:]
}

// URLHash returns the SHA-256 of the canonicalized URL, or nil when the
// input cannot be canonicalized.
func URLHash(raw string) []byte {
	canonical := CanonicalURL(raw)
	if canonical == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(canonical))
	return sum[:]
}

func canonicalizeEmbeddedURLs(value string) string {
	return urlPattern.ReplaceAllStringFunc(value, func(match string) string {
		canonical := CanonicalURL(match)
		if canonical == "" {
			return match
		}
		return canonical
	})
}

func collapseNonAlphanumeric(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
