package suggest

import "testing"

func TestRankPrefersCloserMatches(t *testing.T) {
	candidates := []string{"javascript", "java", "jvm", "python"}
	ranked := Rank("java", candidates, 4, DefaultWeights)

	if len(ranked) != 4 {
		t.Fatalf("expected 4 ranked candidates, got %d", len(ranked))
	}
	if ranked[0] != "java" {
		t.Fatalf("expected exact match 'java' first, got %v", ranked)
	}
}

func TestRankTruncatesToLimit(t *testing.T) {
	candidates := []string{"cat", "car", "can", "cap", "cab"}
	ranked := Rank("ca", candidates, 2, DefaultWeights)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
}

func TestRankEmptyCandidates(t *testing.T) {
	if got := Rank("x", nil, 5, DefaultWeights); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
