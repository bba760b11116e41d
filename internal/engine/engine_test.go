package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"lexitrie/internal/document"
	"lexitrie/internal/engerrors"
	"lexitrie/internal/traversal"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { e.Close(context.Background()) })
	return e
}

func mustAdd(t *testing.T, e *Engine, fields document.Fields) *document.Document {
	t.Helper()
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	doc, err := e.AddDocument(context.Background(), &document.Document{Fields: fields})
	if err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
	return doc
}

func TestInitializeIsIdempotentAndRequiredBeforeMutation(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	_, err := e.AddDocument(ctx, &document.Document{Fields: document.Fields{Title: "x"}})
	if !errors.Is(err, engerrors.ErrEngineNotInitialized) {
		t.Fatalf("expected ErrEngineNotInitialized, got %v", err)
	}

	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize() should be a no-op, got %v", err)
	}
}

func TestCloseRejectsFurtherOperations(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	_, err := e.AddDocument(ctx, &document.Document{Fields: document.Fields{Title: "x"}})
	if !errors.Is(err, engerrors.ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
}

func TestAddDocumentRejectsEmptyFields(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	_, err := e.AddDocument(context.Background(), &document.Document{})
	if !errors.Is(err, engerrors.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

// S1: exact matches outrank prefix-only matches.
func TestSearchExactBeatsPrefixRanking(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	exact := mustAdd(t, e, document.Fields{Title: "Cat", Content: "a cat sat here"})
	mustAdd(t, e, document.Fields{Title: "Category", Content: "category theory basics"})

	results, err := e.Search(ctx, "cat", SearchOptions{PrefixMatch: true, MaxResults: 10, Threshold: 0})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("expected both exact and prefix matches, got %+v", results)
	}
	if results[0].ID != exact.ID {
		t.Fatalf("expected exact match %q to rank first, got %+v", exact.ID, results)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("expected exact match to score strictly higher, got %+v", results)
	}
}

// S2: fuzzy search tolerates a one-character edit distance, scoring lower
// than an exact match of the same term would.
func TestSearchFuzzyTolerance(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	doc := mustAdd(t, e, document.Fields{Title: "Boat", Content: "a boat on the lake"})
	// A second, unrelated document keeps the idf factor above zero.
	mustAdd(t, e, document.Fields{Title: "Train", Content: "a train on rails"})

	exact, err := e.Search(ctx, "boat", SearchOptions{MaxResults: 10, Threshold: 0})
	if err != nil {
		t.Fatalf("exact Search() error: %v", err)
	}
	if len(exact) != 1 || exact[0].ID != doc.ID {
		t.Fatalf("expected exact match for boat, got %+v", exact)
	}

	fuzzy, err := e.Search(ctx, "boot", SearchOptions{Fuzzy: true, MaxDistance: 1, MaxResults: 10, Threshold: 0})
	if err != nil {
		t.Fatalf("fuzzy Search() error: %v", err)
	}
	if len(fuzzy) != 1 || fuzzy[0].ID != doc.ID {
		t.Fatalf("expected fuzzy match for boot~boat, got %+v", fuzzy)
	}
	if fuzzy[0].Score >= exact[0].Score {
		t.Fatalf("expected fuzzy match to score lower than exact match: fuzzy=%v exact=%v", fuzzy[0].Score, exact[0].Score)
	}
}

// S3: stop words are dropped and suffixes normalized before matching, so a
// query built from inflected, stop-word-laden language still finds content
// indexed in its base form.
func TestSearchNormalizesQueryStopWordsAndStemming(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	doc := mustAdd(t, e, document.Fields{Title: "Wildlife", Content: "quick run fox"})

	results, err := e.Search(ctx, "the quickest running foxes", SearchOptions{MaxResults: 10, Threshold: 0})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 || results[0].ID != doc.ID {
		t.Fatalf("expected normalized query to find %q, got %+v", doc.ID, results)
	}
}

// S4: versioning keeps at most MaxVersions prior entries and bumps
// fields.version on every update, including a restore.
func TestVersioningRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VersioningEnabled = true
	cfg.MaxVersions = 3
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	doc := mustAdd(t, e, document.Fields{Title: "Article", Content: "version 0"})

	var updated *document.Document
	for i := 1; i <= 4; i++ {
		var err error
		updated, err = e.UpdateDocument(ctx, &document.Document{
			ID:     doc.ID,
			Fields: document.Fields{Title: "Article", Content: fmt.Sprintf("version %d", i)},
		})
		if err != nil {
			t.Fatalf("UpdateDocument() error on update %d: %v", i, err)
		}
	}

	if len(updated.Versions) != 3 {
		t.Fatalf("expected 3 retained versions, got %d (%+v)", len(updated.Versions), updated.Versions)
	}
	if updated.Fields.Version != 5 {
		t.Fatalf("expected fields.version 5 after 4 updates, got %d", updated.Fields.Version)
	}

	restored, err := e.RestoreVersion(ctx, doc.ID, 2)
	if err != nil {
		t.Fatalf("RestoreVersion() error: %v", err)
	}
	if restored.Fields.Version != 6 {
		t.Fatalf("expected fields.version 6 after restore, got %d", restored.Fields.Version)
	}
	if restored.Fields.Content != "version 1" {
		t.Fatalf("expected restored content from version 2 (\"version 1\"), got %q", restored.Fields.Content)
	}
}

// S5: a regex traversal that exceeds its timeout budget returns partial
// results without erroring.
func TestSearchRegexWithTimeoutReturnsPartialResults(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	const docCount = 10_000
	docs := make([]*document.Document, 0, docCount)
	for i := 0; i < docCount; i++ {
		docs = append(docs, &document.Document{
			Fields: document.Fields{
				Title:   fmt.Sprintf("doc-%d", i),
				Content: fmt.Sprintf("aaaaaaaaaaaaaaaa%d token%d", i, i),
			},
		})
	}
	if _, err := e.AddDocuments(ctx, docs); err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}

	pattern := "a{5,}"
	results, err := e.Search(ctx, "", SearchOptions{
		Regex:       &pattern,
		RegexConfig: traversal.Config{MaxDepth: 50, TimeoutMs: 1},
		MaxResults:  100,
		MinScore:    0,
		Threshold:   0,
	})
	if err != nil {
		t.Fatalf("expected regex search to return without error on timeout, got %v", err)
	}
	_ = results
}

// S6: a mutation invalidates cached search results, so a document added
// after a warmed query is visible on the very next search for that query.
func TestSearchCacheInvalidatedOnMutation(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	mustAdd(t, e, document.Fields{Title: "Foo One", Content: "foo appears here"})

	first, err := e.Search(ctx, "foo", SearchOptions{MaxResults: 10, Threshold: 0})
	if err != nil {
		t.Fatalf("first Search() error: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 result warming the cache, got %+v", first)
	}

	added, err := e.AddDocument(ctx, &document.Document{ID: "x", Fields: document.Fields{Title: "Foo Two", Content: "foo again"}})
	if err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}

	second, err := e.Search(ctx, "foo", SearchOptions{MaxResults: 10, Threshold: 0})
	if err != nil {
		t.Fatalf("second Search() error: %v", err)
	}
	found := false
	for _, r := range second {
		if r.ID == added.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected newly added document %q to appear after cache invalidation, got %+v", added.ID, second)
	}
}

func TestSearchValidatesOptions(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	_, err := e.Search(context.Background(), "anything", SearchOptions{MaxResults: -1})
	if !errors.Is(err, engerrors.ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestRemoveDocumentNotFound(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	err := e.RemoveDocument(ctx, "missing")
	if !errors.Is(err, engerrors.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestRemoveDocumentDropsItFromSearch(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	doc := mustAdd(t, e, document.Fields{Title: "Gone", Content: "soon to vanish"})

	if err := e.RemoveDocument(ctx, doc.ID); err != nil {
		t.Fatalf("RemoveDocument() error: %v", err)
	}

	results, err := e.Search(ctx, "vanish", SearchOptions{MaxResults: 10, Threshold: 0})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected removed document absent from search, got %+v", results)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	mustAdd(t, e, document.Fields{Title: "Export Me", Content: "roundtrip content"})

	blob, err := e.ExportIndex(ctx)
	if err != nil {
		t.Fatalf("ExportIndex() error: %v", err)
	}

	target := newTestEngine(t, DefaultConfig())
	if err := target.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := target.ImportIndex(ctx, blob); err != nil {
		t.Fatalf("ImportIndex() error: %v", err)
	}

	results, err := target.Search(ctx, "roundtrip", SearchOptions{MaxResults: 10, Threshold: 0})
	if err != nil {
		t.Fatalf("Search() error on imported index: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected imported index to be searchable, got %+v", results)
	}

	stats := target.GetStats()
	if stats.DocumentCount != 1 {
		t.Fatalf("expected imported document count 1, got %+v", stats)
	}
}

func TestImportIndexRejectsVersionMismatch(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	err := e.ImportIndex(ctx, []byte(`{"documents":[],"index_state":{"trie":{},"data_map":{},"documents":[]},"config":{"name":"lexitrie","version":"999","fields":[]}}`))
	if !errors.Is(err, engerrors.ErrSerializationMismatch) {
		t.Fatalf("expected ErrSerializationMismatch, got %v", err)
	}
}

func TestClearIndexEmptiesDocumentsAndCache(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	mustAdd(t, e, document.Fields{Title: "Keep", Content: "not for long"})
	if _, err := e.Search(ctx, "long", SearchOptions{MaxResults: 10, Threshold: 0}); err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if e.GetStats().CacheSize == 0 {
		t.Fatalf("expected the search to populate the cache")
	}

	if err := e.ClearIndex(ctx); err != nil {
		t.Fatalf("ClearIndex() error: %v", err)
	}

	stats := e.GetStats()
	if stats.DocumentCount != 0 {
		t.Fatalf("expected 0 documents after clear, got %+v", stats)
	}
	if stats.CacheSize != 0 {
		t.Fatalf("expected an empty cache after clear, got %+v", stats)
	}
}

func TestGetStatsReportsInitializedAndCounts(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	if e.GetStats().Initialized {
		t.Fatalf("expected uninitialized engine to report Initialized=false")
	}

	mustAdd(t, e, document.Fields{Title: "Stats", Content: "one two three"})
	stats := e.GetStats()
	if !stats.Initialized {
		t.Fatalf("expected initialized engine after a mutation")
	}
	if stats.DocumentCount != 1 {
		t.Fatalf("expected document count 1, got %+v", stats)
	}
	if stats.IndexSize == 0 {
		t.Fatalf("expected a non-zero index size, got %+v", stats)
	}
}

func TestFieldScopedSearchExcludesNonMatchingField(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	mustAdd(t, e, document.Fields{Title: "Unrelated", Content: "mentions banana only in content"})

	results, err := e.Search(ctx, "banana", SearchOptions{Fields: []string{"title"}, MaxResults: 10, Threshold: 0})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results when scoping to a field the term never appears in, got %+v", results)
	}
}

func TestBoostRescalesScoreForMatchingField(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	mustAdd(t, e, document.Fields{Title: "Rocket", Content: "a rocket launch"})
	// A second, unrelated document keeps the idf factor above zero.
	mustAdd(t, e, document.Fields{Title: "Garden", Content: "a quiet garden"})

	base, err := e.Search(ctx, "rocket", SearchOptions{MaxResults: 10, Threshold: 0})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	boosted, err := e.Search(ctx, "rocket", SearchOptions{
		Boost:      map[string]float64{"title": 5},
		MaxResults: 10,
		Threshold:  0,
	})
	if err != nil {
		t.Fatalf("boosted Search() error: %v", err)
	}
	if len(base) != 1 || len(boosted) != 1 {
		t.Fatalf("expected 1 result in each search, got base=%+v boosted=%+v", base, boosted)
	}
	if boosted[0].Score <= base[0].Score {
		t.Fatalf("expected boost to raise the score: base=%v boosted=%v", base[0].Score, boosted[0].Score)
	}
}

func TestSearchPaginatesResults(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustAdd(t, e, document.Fields{Title: fmt.Sprintf("Page Doc %d", i), Content: "shared paginated term"})
	}

	page1, err := e.Search(ctx, "paginated", SearchOptions{MaxResults: 10, PageSize: 2, Page: 1, Threshold: 0})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	page2, err := e.Search(ctx, "paginated", SearchOptions{MaxResults: 10, PageSize: 2, Page: 2, Threshold: 0})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page1) != 2 || len(page2) != 2 {
		t.Fatalf("expected 2 results per page, got page1=%d page2=%d", len(page1), len(page2))
	}
	if page1[0].ID == page2[0].ID {
		t.Fatalf("expected distinct pages, got overlapping first entries %q", page1[0].ID)
	}
}
