// Package suggest ranks candidate completions/suggestions by combining
// several independent similarity signals, adapted from the hybrid
// weighted-combination approach of a command-suggestion fuzzy matcher into
// a ranker for the trie's Suggest operation.
package suggest

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/hbollon/go-edlib"
	"github.com/lithammer/fuzzysearch/fuzzy"
	sahilmfuzzy "github.com/sahilm/fuzzy"
)

// Weights controls how the three independent signals are combined into one
// ranking score. The zero value (all weights 0) falls back to DefaultWeights.
type Weights struct {
	JaroWinkler float64
	Levenshtein float64
	Subsequence float64
}

// DefaultWeights favors the Jaro-Winkler similarity for prefix-shaped
// suggestions, with Levenshtein and subsequence-match as secondary signals.
var DefaultWeights = Weights{JaroWinkler: 0.5, Levenshtein: 0.3, Subsequence: 0.2}

// Ranked is one scored candidate.
type Ranked struct {
	Word  string
	Score float64
}

// Rank orders candidates by similarity to query, descending, truncated to
// limit. It is used by the trie's Suggest operation whenever more raw
// candidates exist than the caller's limit, instead of an arbitrary
// insertion-order tie-break.
func Rank(query string, candidates []string, limit int, weights Weights) []string {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	if len(candidates) == 0 {
		return nil
	}

	subsequenceScore := subsequenceScores(query, candidates)

	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		jw, err := edlib.StringsSimilarity(query, c, edlib.JaroWinkler)
		if err != nil {
			jw = 0
		}

		maxLen := len(query)
		if len(c) > maxLen {
			maxLen = len(c)
		}
		levScore := 0.0
		if maxLen > 0 {
			dist := levenshtein.ComputeDistance(strings.ToLower(query), strings.ToLower(c))
			levScore = 1.0 - float64(dist)/float64(maxLen)
			if levScore < 0 {
				levScore = 0
			}
		}

		score := float64(jw)*weights.JaroWinkler +
			levScore*weights.Levenshtein +
			subsequenceScore[c]*weights.Subsequence

		ranked = append(ranked, Ranked{Word: c, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Word
	}
	return out
}

// subsequenceScores normalizes sahilm/fuzzy's subsequence-match score
// (which rewards contiguous, early, word-boundary matches) into [0,1] per
// candidate, falling back to lithammer/fuzzysearch's boolean subsequence
// test for candidates sahilm/fuzzy does not return a match for.
func subsequenceScores(query string, candidates []string) map[string]float64 {
	scores := make(map[string]float64, len(candidates))

	matches := sahilmfuzzy.Find(query, candidates)
	maxScore := 0
	for _, m := range matches {
		if m.Score > maxScore {
			maxScore = m.Score
		}
	}
	for _, m := range matches {
		if maxScore > 0 {
			scores[m.Str] = float64(m.Score) / float64(maxScore)
		} else {
			scores[m.Str] = 1.0
		}
	}

	for _, c := range candidates {
		if _, ok := scores[c]; !ok && fuzzy.Match(query, c) {
			scores[c] = 0.25
		}
	}

	return scores
}
