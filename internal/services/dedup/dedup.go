// Package dedup rejects todo titles that are near-duplicates of titles the user already has.
package dedup

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DefaultThreshold is the similarity at or above which two titles are duplicates
const DefaultThreshold = 0.75

// Similarity returns the normalized Levenshtein similarity of a and b in [0, 1],
// compared case-insensitively over runes. Two empty strings are identical.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return float64(longest-distance) / float64(longest)
}

// IsDuplicate reports whether candidate is at least threshold-similar to any existing title
func IsDuplicate(candidate string, existing []string, threshold float64) bool {
	_, ok := match(candidate, existing, threshold)
	return ok
}

func match(candidate string, existing []string, threshold float64) (string, bool) {
	for _, title := range existing {
		if Similarity(candidate, title) >= threshold {
			return title, true
		}
	}
	return "", false
}

// Pool is the rolling title set for one generation run: persisted titles plus
// titles accepted earlier in the same run. It is not safe for concurrent use.
type Pool struct {
	titles    []string
	threshold float64
}

// NewPool seeds a pool with existing titles. A non-positive threshold uses DefaultThreshold.
func NewPool(existing []string, threshold float64) *Pool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	titles := make([]string, len(existing))
	copy(titles, existing)
	return &Pool{titles: titles, threshold: threshold}
}

// Match returns the first pooled title that candidate duplicates
func (p *Pool) Match(candidate string) (string, bool) {
	return match(candidate, p.titles, p.threshold)
}

// Add appends an accepted title to the pool
func (p *Pool) Add(title string) {
	p.titles = append(p.titles, title)
}

// Len returns the number of pooled titles
func (p *Pool) Len() int {
	return len(p.titles)
}
