package traversal

import (
	"context"
	"testing"
	"time"

	"lexitrie/internal/trie"
)

func buildTrie(words ...string) *trie.Trie {
	tr := trie.New(trie.DefaultMaxWordLength, false)
	for i, w := range words {
		tr.Insert(w, docID(i), 1000)
	}
	return tr
}

func docID(i int) string {
	return string(rune('a' + i))
}

func TestSelectStrategyComplexPatternUsesDFS(t *testing.T) {
	if !selectStrategy("cat|dog") {
		t.Fatalf("expected complex-char pattern to select DFS")
	}
	if !selectStrategy("aaaaaaaaaaaaaaaaaaaaaaaaa") {
		t.Fatalf("expected long pattern to select DFS")
	}
	if selectStrategy("cat") {
		t.Fatalf("expected simple pattern to select BFS")
	}
}

func TestPreparePatternEscapesLiteral(t *testing.T) {
	re, err := preparePattern("a.b", false, DefaultConfig())
	if err != nil {
		t.Fatalf("preparePattern() error: %v", err)
	}
	if re.MatchString("axb") {
		t.Fatalf("expected literal dot to not match any character")
	}
	if !re.MatchString("a.b") {
		t.Fatalf("expected literal dot pattern to match literal input")
	}
}

func TestPreparePatternInvalidRegexFails(t *testing.T) {
	if _, err := preparePattern("(unclosed", true, DefaultConfig()); err == nil {
		t.Fatalf("expected error for invalid regex source")
	}
}

func TestSearchExactLiteralMatchesSimplePattern(t *testing.T) {
	tr := buildTrie("java", "javascript", "python")
	root := tr.Root()

	results, timeout, err := Search(context.Background(), root, "java", false, 10, DefaultConfig(), 1000, nil)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if timeout != nil {
		t.Fatalf("expected no timeout, got %+v", timeout)
	}
	ids := map[string]bool{}
	for _, r := range results {
		ids[r.ID] = true
	}
	if !ids[docID(0)] {
		t.Fatalf("expected java's doc in results, got %+v", results)
	}
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	tr := buildTrie("cat", "car", "can", "cap")
	root := tr.Root()

	results, _, err := Search(context.Background(), root, "ca.", true, 2, DefaultConfig(), 1000, nil)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) > 2 {
		t.Fatalf("expected at most 2 results, got %d", len(results))
	}
}

func TestSearchInvalidPatternFails(t *testing.T) {
	tr := buildTrie("cat")
	root := tr.Root()

	_, _, err := Search(context.Background(), root, "(unclosed", true, 10, DefaultConfig(), 1000, nil)
	if err == nil {
		t.Fatalf("expected InvalidPattern error")
	}
}

func TestSearchRespectsTimeoutBudget(t *testing.T) {
	tr := buildTrie("cat", "car", "can")
	root := tr.Root()

	cfg := DefaultConfig()
	cfg.TimeoutMs = 1

	// The budget is measured from inside Search, so it is the caller's
	// context that has run out by the time the walk starts.
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)
	_, timeout, err := Search(ctx, root, "c.*", true, 10, cfg, 1000, nil)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if timeout == nil {
		t.Fatalf("expected timeout to have fired")
	}
}

func TestBFSAndDFSAgreeOnSimplePattern(t *testing.T) {
	tr := buildTrie("cat", "car", "can", "dog")
	root := tr.Root()

	bfsResults, _, err := Search(context.Background(), root, "ca", false, 10, DefaultConfig(), 1000, nil)
	if err != nil {
		t.Fatalf("bfs Search() error: %v", err)
	}
	// "(ca)" matches the same words as the literal "ca"; its '(' selects DFS.
	dfsResults, _, err := Search(context.Background(), root, "(ca)", true, 10, DefaultConfig(), 1000, nil)
	if err != nil {
		t.Fatalf("dfs Search() error: %v", err)
	}

	bfsIDs := idSet(bfsResults)
	dfsIDs := idSet(dfsResults)
	if len(bfsIDs) == 0 {
		t.Fatalf("expected bfs to find matches")
	}
	if len(dfsIDs) != len(bfsIDs) {
		t.Fatalf("expected bfs and dfs to agree, got bfs=%v dfs=%v", bfsIDs, dfsIDs)
	}
	for id := range bfsIDs {
		if !dfsIDs[id] {
			t.Fatalf("expected bfs and dfs to agree, got bfs=%v dfs=%v", bfsIDs, dfsIDs)
		}
	}
}

func idSet(results []RegexResult) map[string]bool {
	ids := map[string]bool{}
	for _, r := range results {
		ids[r.ID] = true
	}
	return ids
}
