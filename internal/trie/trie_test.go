package trie

import "testing"

func TestInsertAndExactSearch(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("javascript", "a", 1000)
	tr.Insert("java", "b", 1000)

	matches := tr.ExactSearch("javascript", 2, 1000)
	if len(matches) != 1 || matches[0].DocumentID != "a" {
		t.Fatalf("expected exactly doc a, got %+v", matches)
	}
}

func TestExactSearchMissingWordReturnsEmpty(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("hello", "a", 1000)
	if got := tr.ExactSearch("goodbye", 1, 1000); len(got) != 0 {
		t.Fatalf("expected no matches, got %+v", got)
	}
}

func TestPrefixSearchCollectsDescendants(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("java", "a", 1000)
	tr.Insert("javascript", "b", 1000)
	tr.Insert("javalin", "c", 1000)
	tr.Insert("python", "d", 1000)

	matches := tr.PrefixSearch("java", 4, 1000)
	ids := map[string]bool{}
	for _, m := range matches {
		ids[m.DocumentID] = true
	}
	for _, want := range []string{"a", "b", "c"} {
		if !ids[want] {
			t.Fatalf("expected %s in prefix results, got %+v", want, matches)
		}
	}
	if ids["d"] {
		t.Fatalf("did not expect python's doc in java* prefix results")
	}
}

func TestCaseInsensitiveByDefault(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("JavaScript", "a", 1000)
	if got := tr.ExactSearch("javascript", 1, 1000); len(got) != 1 {
		t.Fatalf("expected case-insensitive match, got %+v", got)
	}
}

func TestFuzzySearchToleratesOneTypo(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("javascript", "a", 1000)

	matches := tr.FuzzySearch("javascrpt", 2, 1, 1000)
	found := false
	for _, m := range matches {
		if m.DocumentID == "a" && m.Distance == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fuzzy match at distance 1, got %+v", matches)
	}
}

func TestFuzzySearchRespectsMaxDistance(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("completely", "a", 1000)
	if got := tr.FuzzySearch("x", 1, 1, 1000); len(got) != 0 {
		t.Fatalf("expected no matches beyond max distance, got %+v", got)
	}
}

func TestExactSubsetOfFuzzy(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("test", "a", 1000)
	tr.Insert("text", "b", 1000)

	exact := tr.ExactSearch("test", 2, 1000)
	fuzzy := tr.FuzzySearch("test", 2, 2, 1000)

	fuzzyIDs := map[string]bool{}
	for _, m := range fuzzy {
		fuzzyIDs[m.DocumentID] = true
	}
	for _, m := range exact {
		if !fuzzyIDs[m.DocumentID] {
			t.Fatalf("expected exact result %s to be subset of fuzzy results", m.DocumentID)
		}
	}
}

func TestRemoveDocumentFullScanRemovesAllReferences(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("hello", "a", 1000)
	tr.Insert("help", "a", 1000)
	tr.Insert("hello", "b", 1000)

	tr.RemoveDocument("a", nil)

	if got := tr.ExactSearch("help", 1, 1000); len(got) != 0 {
		t.Fatalf("expected help to have no references, got %+v", got)
	}
	if got := tr.ExactSearch("hello", 1, 1000); len(got) != 1 || got[0].DocumentID != "b" {
		t.Fatalf("expected hello to keep doc b only, got %+v", got)
	}
}

func TestRemoveDocumentByTokensMatchesFullScan(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("hello", "a", 1000)
	tr.Insert("world", "a", 1000)
	tr.Insert("hello", "b", 1000)

	tr.RemoveDocument("a", []string{"hello", "world"})

	if got := tr.ExactSearch("world", 1, 1000); len(got) != 0 {
		t.Fatalf("expected world to have no references, got %+v", got)
	}
	if got := tr.ExactSearch("hello", 1, 1000); len(got) != 1 || got[0].DocumentID != "b" {
		t.Fatalf("expected hello to keep doc b only, got %+v", got)
	}
}

func TestPruningRemovesDeadBranches(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("zzz", "a", 1000)
	tr.RemoveDocument("a", []string{"zzz"})

	if len(tr.root.Children) != 0 {
		t.Fatalf("expected root to have no children after pruning, got %d", len(tr.root.Children))
	}
}

func TestRemoveUnknownDocumentIsNoOp(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("hello", "a", 1000)
	tr.RemoveDocument("does-not-exist", nil)

	if got := tr.ExactSearch("hello", 1, 1000); len(got) != 1 {
		t.Fatalf("expected hello/a to survive no-op removal, got %+v", got)
	}
}

func TestSuggestReturnsRankedCompletions(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	for _, w := range []string{"java", "javascript", "javalin", "javadoc"} {
		tr.Insert(w, "a", 1000)
	}

	got := tr.Suggest("java", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %+v", got)
	}
}

func TestInsertIgnoresEmptyWordOrDocID(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("", "a", 1000)
	tr.Insert("word", "", 1000)
	if len(tr.root.Children) != 0 {
		t.Fatalf("expected no insertion for empty word/docID")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	tr.Insert("hello", "a", 1000)
	tr.Insert("help", "b", 1000)

	blob, err := tr.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	tr2 := New(DefaultMaxWordLength, false)
	if err := tr2.Deserialize(blob, 2000); err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}

	if got := tr2.ExactSearch("hello", 2, 2000); len(got) != 1 || got[0].DocumentID != "a" {
		t.Fatalf("expected doc a after round-trip, got %+v", got)
	}
	if got := tr2.ExactSearch("help", 2, 2000); len(got) != 1 || got[0].DocumentID != "b" {
		t.Fatalf("expected doc b after round-trip, got %+v", got)
	}
}

func TestDeserializeMalformedBlobFails(t *testing.T) {
	tr := New(DefaultMaxWordLength, false)
	if err := tr.Deserialize([]byte("not json"), 1000); err == nil {
		t.Fatalf("expected error for malformed blob")
	}
}
