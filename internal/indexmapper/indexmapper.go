// Package indexmapper turns document fields into trie insertions and
// drives whole-index search and update/removal against the Trie (spec
// §4.2/§4.4). It owns the per-document token multiset needed for the
// Trie's O(tokens) removal fast path.
package indexmapper

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"lexitrie/internal/document"
	"lexitrie/internal/queryproc"
	"lexitrie/internal/scorer"
	"lexitrie/internal/trie"
)

// splitPattern breaks field text into candidate tokens on whitespace and
// common punctuation, matching spec §4.4's field-flattening tokenizer.
var splitPattern = regexp.MustCompile(`[\s,.!?;:'"()\[\]{}/\\]+`)

// Mapper indexes Document fields into a Trie/Postings pair and tracks the
// token multiset each document contributed, so removal can use the fast
// per-document path instead of a full-tree scan.
type Mapper struct {
	mu       sync.RWMutex
	trie     *trie.Trie
	postings *trie.Postings
	tokensOf map[string][]string // docID -> token multiset last indexed
	cfg      Config

	pool *ants.Pool
}

// Config controls bulk-indexing concurrency.
type Config struct {
	MaxWordLength int
	CaseSensitive bool
	// BulkWorkers bounds the worker pool used by IndexBulk; <=0 disables
	// pooling and indexes sequentially.
	BulkWorkers int
}

// New builds a Mapper over a fresh Trie/Postings pair.
func New(cfg Config) (*Mapper, error) {
	m := &Mapper{
		trie:     trie.New(cfg.MaxWordLength, cfg.CaseSensitive),
		postings: trie.NewPostings(),
		tokensOf: make(map[string][]string),
		cfg:      cfg,
	}
	if cfg.BulkWorkers > 0 {
		pool, err := ants.NewPool(cfg.BulkWorkers)
		if err != nil {
			return nil, err
		}
		m.pool = pool
	}
	return m, nil
}

// Close releases the bulk-indexing worker pool, if any.
func (m *Mapper) Close() {
	if m.pool != nil {
		m.pool.Release()
	}
}

// Trie exposes the underlying Trie for the Scorer/Engine to read totals
// from (e.g. total indexed document count is tracked by the docstore, not
// here).
func (m *Mapper) Trie() *trie.Trie { return m.trie }

// Postings exposes the underlying key->doc postings map.
func (m *Mapper) Postings() *trie.Postings { return m.postings }

// flatten renders a field value (string, []string, or map[string]any) into
// a single space-joined string of indexable text, per spec §4.4.
func flatten(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, " ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, flatten(item))
		}
		return strings.Join(parts, " ")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(v))
		for _, k := range keys {
			parts = append(parts, flatten(v[k]))
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// tokenize splits flattened field text into tokens via queryproc's
// sanitizer, then on whitespace/punctuation. Case is preserved; the trie
// and postings map normalize case on insert.
func tokenize(text string) []string {
	sanitized := queryproc.Sanitize(text)
	raw := splitPattern.Split(sanitized, -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if t == "" {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// fieldTokens collects every indexable token across a document's fields:
// title, content, author, tags, and any string/sequence entries under Extra.
func fieldTokens(fields document.Fields) []string {
	var tokens []string
	tokens = append(tokens, tokenize(fields.Title)...)
	tokens = append(tokens, tokenize(fields.Content)...)
	tokens = append(tokens, tokenize(fields.Author)...)
	for _, tag := range fields.Tags {
		tokens = append(tokens, tokenize(tag)...)
	}
	if fields.Extra != nil {
		keys := make([]string, 0, len(fields.Extra))
		for k := range fields.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tokens = append(tokens, tokenize(flatten(fields.Extra[k]))...)
		}
	}
	return tokens
}

// IndexDocument inserts every token of doc's fields into the trie and
// postings map, recording the token multiset for later removal.
func (m *Mapper) IndexDocument(doc *document.Document, nowMs int64) {
	tokens := fieldTokens(doc.Fields)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range tokens {
		m.trie.Insert(tok, doc.ID, nowMs)
		m.postings.MapKey(strings.ToLower(tok), doc.ID)
	}
	m.tokensOf[doc.ID] = tokens
}

// UpdateDocument removes doc.ID's prior token contributions (if any) and
// re-indexes the supplied fields.
func (m *Mapper) UpdateDocument(doc *document.Document, nowMs int64) {
	m.RemoveDocument(doc.ID)
	m.IndexDocument(doc, nowMs)
}

// RemoveDocument drops docID's token contributions from the trie and
// postings map, using the tracked multiset as the O(tokens) fast path.
func (m *Mapper) RemoveDocument(docID string) {
	m.mu.Lock()
	tokens := m.tokensOf[docID]
	delete(m.tokensOf, docID)
	m.mu.Unlock()

	m.trie.RemoveDocument(docID, tokens)
	m.postings.RemoveDocument(docID)
}

// bulkJob pairs a document with the timestamp to index it at.
type bulkJob struct {
	doc   *document.Document
	nowMs int64
}

// IndexBulk indexes many documents, fanning work out across the worker
// pool configured at construction (sequentially if none was configured).
func (m *Mapper) IndexBulk(ctx context.Context, docs []*document.Document, nowMs int64) error {
	if m.pool == nil {
		for _, d := range docs {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.IndexDocument(d, nowMs)
		}
		return nil
	}

	var wg sync.WaitGroup
	jobs := make(chan bulkJob)

	go func() {
		defer close(jobs)
		for _, d := range docs {
			select {
			case <-ctx.Done():
				return
			case jobs <- bulkJob{doc: d, nowMs: nowMs}:
			}
		}
	}()

	errCh := make(chan error, 1)
	for job := range jobs {
		job := job
		wg.Add(1)
		err := m.pool.Submit(func() {
			defer wg.Done()
			m.IndexDocument(job.doc, job.nowMs)
		})
		if err != nil {
			wg.Done()
			select {
			case errCh <- err:
			default:
			}
		}
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

// Search runs an exact-match lookup for term across the trie, scoring
// each result via scorer.Score.
func (m *Mapper) Search(term string, totalDocuments int, nowMs int64) []trie.Match {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trie.ExactSearch(term, totalDocuments, nowMs)
}

// PrefixSearch runs a prefix lookup across the trie.
func (m *Mapper) PrefixSearch(prefix string, totalDocuments int, nowMs int64) []trie.Match {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trie.PrefixSearch(prefix, totalDocuments, nowMs)
}

// FuzzySearch runs a bounded-edit-distance lookup across the trie.
func (m *Mapper) FuzzySearch(term string, maxDistance, totalDocuments int, nowMs int64) []trie.FuzzyMatch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trie.FuzzySearch(term, maxDistance, totalDocuments, nowMs)
}

// Suggest returns ranked completions for prefix.
func (m *Mapper) Suggest(prefix string, limit int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trie.Suggest(prefix, limit)
}

// SetFuzzyPenalty forwards a scorer fuzzy-penalty configuration to the
// underlying trie.
func (m *Mapper) SetFuzzyPenalty(p scorer.FuzzyPenalty) {
	m.trie.SetFuzzyPenalty(p)
}

// Clear empties the trie, postings, and token bookkeeping.
func (m *Mapper) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trie = trie.New(m.cfg.MaxWordLength, m.cfg.CaseSensitive)
	m.postings.Clear()
	m.tokensOf = make(map[string][]string)
}

// ImportState replaces the trie and postings with a previously exported
// snapshot. Because the snapshot carries no per-document token multiset,
// documents restored this way fall back to RemoveDocument's full-tree-scan
// path on later removal, the same path taken when restoring from any
// legacy-format import blob with no token hint.
func (m *Mapper) ImportState(trieBlob []byte, dataMap map[string][]string, nowMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.trie.Deserialize(trieBlob, nowMs); err != nil {
		return err
	}
	m.postings.Clear()
	for key, ids := range dataMap {
		for _, id := range ids {
			m.postings.MapKey(key, id)
		}
	}
	m.tokensOf = make(map[string][]string)
	return nil
}
