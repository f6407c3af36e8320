package proto

import (
	"cmp"
	"slices"
)

// maxSimilarDistance is the largest edit distance still offered as a suggestion
const maxSimilarDistance = 3

// Similar returns up to n declared names close to sym, nearest first.
// Ties are broken alphabetically.
func (h *Header) Similar(sym string, n int) []string {
	type candidate struct {
		name     string
		distance int
	}

	var candidates []candidate
	for _, name := range h.order {
		if d := editDistance(sym, name); d > 0 && d <= maxSimilarDistance {
			candidates = append(candidates, candidate{name, d})
		}
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})

	result := make([]string, 0, n)
	for i := 0; i < len(candidates) && i < n; i++ {
		result = append(result, candidates[i].name)
	}
	return result
}

// editDistance is the Levenshtein distance between a and b
func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
