package dedupe

import (
	"sort"
	"strings"
)

// TokenSetRatio scores two similarity-normalized strings in [0, 1] by token
// set comparison: both inputs are split into unique sorted tokens, and the
// best pairwise similarity of (intersection, intersection+rest_a,
// intersection+rest_b) wins. A pure subset pair therefore scores 1 even when
// one side carries extra tokens.
func TokenSetRatio(left, right string) float64 {
	leftTokens := uniqueSortedTokens(left)
	rightTokens := uniqueSortedTokens(right)
	if len(leftTokens) == 0 && len(rightTokens) == 0 {
		return 1
	}
	if len(leftTokens) == 0 || len(rightTokens) == 0 {
		return 0
	}

	intersection, restLeft, rightOnly := splitTokenSets(leftTokens, rightTokens)

	sect := strings.Join(intersection, " ")
	combinedLeft := joinSections(intersection, restLeft)
	combinedRight := joinSections(intersection, rightOnly)

	best := indelSimilarity(combinedLeft, combinedRight)
	if len(intersection) > 0 {
		if s := indelSimilarity(sect, combinedLeft); s > best {
			best = s
		}
		if s := indelSimilarity(sect, combinedRight); s > best {
			best = s
		}
	}
	return best
}

func uniqueSortedTokens(value string) []string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	sort.Strings(tokens)
	return tokens
}

func splitTokenSets(left, right []string) (intersection, leftOnly, rightOnly []string) {
	rightSet := make(map[string]struct{}, len(right))
	for _, t := range right {
		rightSet[t] = struct{}{}
	}
	leftSet := make(map[string]struct{}, len(left))
	for _, t := range left {
		leftSet[t] = struct{}{}
		if _, ok := rightSet[t]; ok {
			intersection = append(intersection, t)
		} else {
			leftOnly = append(leftOnly, t)
		}
	}
	for _, t := range right {
		if _, ok := leftSet[t]; !ok {
			rightOnly = append(rightOnly, t)
		}
	}
	return intersection, leftOnly, rightOnly
}

func joinSections(intersection, rest []string) string {
	if len(rest) == 0 {
		return strings.Join(intersection, " ")
	}
	if len(intersection) == 0 {
		return strings.Join(rest, " ")
	}
	return strings.Join(intersection, " ") + " " + strings.Join(rest, " ")
}

// indelSimilarity is the normalized insert/delete similarity of two strings:
// 2*LCS / (len(a)+len(b)) over runes.
func indelSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra := []rune(a)
	rb := []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return float64(2*lcsLength(ra, rb)) / float64(total)
}

func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
