// Package setup implements the GoalPipe setup workflow engine: the guided
// interview that collects a user's emotional associations with a goal and
// assembles the personalized Material for the delivery process.
package setup

import (
	"strings"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// DuplicateThreshold is the word-set similarity score above which a candidate
// statement is treated as a near-duplicate of an existing one.
const DuplicateThreshold = 0.8

// normalizeText lowercases and trims a statement for comparison.
func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SimilarityScore computes the word-set Jaccard similarity of two texts.
// Both texts are normalized and split into whitespace-delimited token sets;
// the score is |intersection| / |union|. Two empty texts score 1.0, exactly
// one empty text scores 0.0. The function is symmetric and side effect-free.
func SimilarityScore(a, b string) float64 {
	setA := tokenSet(normalizeText(a))
	setB := tokenSet(normalizeText(b))

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// IsDuplicate reports whether candidate nearly duplicates any existing entry
// in the same collection. An exact match after normalization is always a
// duplicate; otherwise the Jaccard score must exceed DuplicateThreshold.
func IsDuplicate(candidate string, existing []models.StatementEntry) bool {
	normalized := normalizeText(candidate)
	for _, e := range existing {
		if normalized == normalizeText(e.Text) {
			return true
		}
		if SimilarityScore(candidate, e.Text) > DuplicateThreshold {
			return true
		}
	}
	return false
}

func tokenSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
