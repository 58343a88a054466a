// Package similarity fingerprints post text and scores it against recent
// content so the queue can refuse near-duplicate posts.
package similarity

import (
	"strings"
)

const (
	// DefaultThreshold is the Jaccard score at or above which two texts
	// count as near-duplicates.
	DefaultThreshold = 0.8
	// DefaultShingleSize is the token n-gram length used for fingerprints.
	DefaultShingleSize = 3
)

// Reason tags the outcome of variant selection
type Reason string

const (
	// ReasonSelected means the variant passed the dedup check
	ReasonSelected Reason = "selected"
	// ReasonFallback means every variant was too similar and the first one
	// was returned anyway. Callers must not treat fallback as success.
	ReasonFallback Reason = "fallback"
)

// Normalize lowercases the text, strips URL schemes and non-alphanumeric
// characters, and collapses whitespace.
func Normalize(text string) string {
	lower := strings.ToLower(text)
	lower = strings.ReplaceAll(lower, "https://", " ")
	lower = strings.ReplaceAll(lower, "http://", " ")

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Shingles returns the set of contiguous token n-grams of the normalized
// text. Fewer than size tokens fall back to a single shingle holding the
// whole sequence; no tokens yield an empty set.
func Shingles(text string, size int) map[string]struct{} {
	tokens := strings.Fields(Normalize(text))
	result := make(map[string]struct{})
	if len(tokens) == 0 {
		return result
	}
	for i := 0; i+size <= len(tokens); i++ {
		result[strings.Join(tokens[i:i+size], " ")] = struct{}{}
	}
	if len(result) == 0 {
		result[strings.Join(tokens, " ")] = struct{}{}
	}
	return result
}

// Similarity is the Jaccard index of the two texts' shingle sets:
// intersection size over union size, 0 if the union is empty.
func Similarity(a, b string) float64 {
	setA := Shingles(a, DefaultShingleSize)
	setB := Shingles(b, DefaultShingleSize)

	union := len(setB)
	intersection := 0
	for s := range setA {
		if _, ok := setB[s]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// IsTooSimilar reports whether the candidate scores at or above the
// threshold against any recent text.
func IsTooSimilar(candidate string, recent []string, threshold float64) bool {
	for _, text := range recent {
		if Similarity(candidate, text) >= threshold {
			return true
		}
	}
	return false
}

// ChooseVariant returns the first variant that is not too similar to any
// recent text. If every variant is too similar the first variant is
// returned with ReasonFallback.
func ChooseVariant(variants, recent []string, threshold float64) (string, Reason) {
	for _, variant := range variants {
		if !IsTooSimilar(variant, recent, threshold) {
			return variant, ReasonSelected
		}
	}
	if len(variants) == 0 {
		return "", ReasonFallback
	}
	return variants[0], ReasonFallback
}
