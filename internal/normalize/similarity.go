package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// SimilarityText normalizes one text input for token-based similarity
// comparisons. Same steps as HashText except token boundaries are preserved:
// only repeated whitespace is collapsed, punctuation stays.
func SimilarityText(value string) string {
	if value == "" {
		return ""
	}

	normalized := strings.ToLower(norm.NFKC.String(value))
	normalized = canonicalizeEmbeddedURLs(normalized)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(normalized, " "))
}

// TokenCount reports the whitespace-delimited token count of a
// similarity-normalized string.
func TokenCount(normalized string) int {
	if normalized == "" {
		return 0
	}
	return len(strings.Fields(normalized))
}
