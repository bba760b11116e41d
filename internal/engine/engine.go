// Package engine implements the façade that ties the trie, index mapper,
// regex traversal, document store, result cache, and storage backend
// together into one search engine with an explicit lifecycle (spec §4.9).
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/panjf2000/ants/v2"

	"lexitrie/internal/docstore"
	"lexitrie/internal/document"
	"lexitrie/internal/engerrors"
	"lexitrie/internal/events"
	"lexitrie/internal/indexmapper"
	"lexitrie/internal/logger"
	"lexitrie/internal/metrics"
	"lexitrie/internal/queryproc"
	"lexitrie/internal/rcache"
	"lexitrie/internal/scorer"
	"lexitrie/internal/storage"
	"lexitrie/internal/traversal"
	"lexitrie/internal/trie"
)

// State is a position in the engine's lifecycle state machine:
// Uninitialized -> Initialized -> (Initialized | Mutating | Searching)* -> Closed.
type State int

const (
	Uninitialized State = iota
	Initialized
	Mutating
	Searching
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Mutating:
		return "mutating"
	case Searching:
		return "searching"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config controls one Engine's collaborators.
type Config struct {
	IndexName         string
	Version           string
	MaxWordLength     int
	CaseSensitive     bool
	BulkWorkers       int
	VersioningEnabled bool
	MaxVersions       int
	Cache             rcache.Config
	FuzzyPenalty      scorer.FuzzyPenalty
	DefaultFields     []string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		IndexName:     "lexitrie",
		Version:       "1",
		MaxWordLength: trie.DefaultMaxWordLength,
		CaseSensitive: false,
		BulkWorkers:   4,
		MaxVersions:   10,
		Cache:         rcache.DefaultConfig(),
		FuzzyPenalty:  scorer.DefaultFuzzyPenalty,
		DefaultFields: []string{"title", "content", "author", "tags"},
	}
}

// SearchResult is one ranked, scored document.
type SearchResult struct {
	ID      string
	Score   float64
	Matches []string
	Fields  document.Fields
}

// Stats is the result of GetStats.
type Stats struct {
	DocumentCount int
	IndexSize     int
	CacheSize     int
	Initialized   bool
}

// Engine orchestrates document ingest, search, persistence, and lifecycle
// transitions. All public methods are safe for sequential use under the
// single-threaded cooperative model of spec §5; the mutex guards state
// transitions rather than expected contention.
type Engine struct {
	mu    sync.Mutex
	state State
	cfg   Config

	docs    *docstore.Store
	mapper  *indexmapper.Mapper
	cache   *rcache.Cache[[]SearchResult]
	backend storage.Backend
	bus     *events.Bus
	log     *logger.Logger
	metrics *metrics.Metrics
	pool    *ants.Pool // shared regex-traversal fan-out pool
}

// New builds an Engine. backend, bus, log, and met may be nil to fall back
// to an in-memory backend, the package-global logger/metrics, and a fresh
// event bus.
func New(cfg Config, backend storage.Backend, bus *events.Bus, log *logger.Logger, met *metrics.Metrics) (*Engine, error) {
	defaults := DefaultConfig()
	if cfg.IndexName == "" {
		cfg.IndexName = defaults.IndexName
	}
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.MaxVersions <= 0 {
		cfg.MaxVersions = defaults.MaxVersions
	}
	if len(cfg.DefaultFields) == 0 {
		cfg.DefaultFields = defaults.DefaultFields
	}
	if cfg.FuzzyPenalty == 0 {
		cfg.FuzzyPenalty = scorer.DefaultFuzzyPenalty
	}

	mapper, err := indexmapper.New(indexmapper.Config{
		MaxWordLength: cfg.MaxWordLength,
		CaseSensitive: cfg.CaseSensitive,
		BulkWorkers:   cfg.BulkWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: build mapper: %w", err)
	}
	mapper.SetFuzzyPenalty(cfg.FuzzyPenalty)

	var pool *ants.Pool
	if cfg.BulkWorkers > 0 {
		pool, err = ants.NewPool(cfg.BulkWorkers)
		if err != nil {
			return nil, fmt.Errorf("engine: build traversal pool: %w", err)
		}
	}

	if backend == nil {
		backend = storage.NewMemory()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	if log == nil {
		log = logger.Get()
	}
	if met == nil {
		met = metrics.Get()
	}

	return &Engine{
		cfg: cfg,
		docs: docstore.New(docstore.Config{
			IndexName:         cfg.IndexName,
			VersioningEnabled: cfg.VersioningEnabled,
			MaxVersions:       cfg.MaxVersions,
		}),
		mapper:  mapper,
		cache:   rcache.New[[]SearchResult](cfg.Cache),
		backend: backend,
		bus:     bus,
		log:     log.With(cfg.IndexName),
		metrics: met,
		pool:    pool,
	}, nil
}

// Initialize transitions Uninitialized -> Initialized, probing the storage
// backend (the only suspension point this operation crosses, per §5). It is
// idempotent once initialized.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initializeLocked(ctx)
}

func (e *Engine) initializeLocked(ctx context.Context) error {
	if e.state == Closed {
		return engerrors.ErrEngineClosed
	}
	if e.state != Uninitialized {
		return nil
	}
	if err := e.backend.Put(ctx, e.cfg.IndexName+":probe", []byte("1")); err != nil {
		return fmt.Errorf("engine: initialize: %w", engerrors.ErrStorageUnavailable)
	}
	e.state = Initialized
	e.bus.Emit(events.EngineInitialized, map[string]any{"index": e.cfg.IndexName}, nil)
	e.log.Info("engine initialized", "index", e.cfg.IndexName)
	return nil
}

func (e *Engine) ensureMutable() error {
	switch e.state {
	case Closed:
		return engerrors.ErrEngineClosed
	case Uninitialized:
		return engerrors.ErrEngineNotInitialized
	default:
		return nil
	}
}

func validateDocument(doc *document.Document) error {
	if doc == nil {
		return fmt.Errorf("engine: document is nil: %w", engerrors.ErrInvalidDocument)
	}
	if doc.Fields.Title == "" && doc.Fields.Content == "" {
		return fmt.Errorf("engine: document %q has neither title nor content: %w", doc.ID, engerrors.ErrInvalidDocument)
	}
	return nil
}

// AddDocument indexes doc, assigning an id if absent.
func (e *Engine) AddDocument(ctx context.Context, doc *document.Document) (*document.Document, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureMutable(); err != nil {
		return nil, err
	}
	prev := e.state
	e.state = Mutating
	defer func() { e.state = prev }()

	e.bus.Emit(events.IndexStart, map[string]any{"id": doc.ID}, nil)
	nowMs := document.NowMs()
	stored := e.docs.Add(doc, nowMs)
	e.mapper.IndexDocument(stored, nowMs)
	e.cache.Clear()
	e.metrics.RecordIndexed(1)
	e.bus.Emit(events.IndexComplete, map[string]any{"id": stored.ID}, nil)
	e.log.Debug("document indexed", "id", stored.ID)
	return stored, nil
}

// AddDocuments indexes many documents, fanning indexing out across the
// mapper's worker pool.
func (e *Engine) AddDocuments(ctx context.Context, docs []*document.Document) ([]*document.Document, error) {
	for _, d := range docs {
		if err := validateDocument(d); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureMutable(); err != nil {
		return nil, err
	}
	prev := e.state
	e.state = Mutating
	defer func() { e.state = prev }()

	e.bus.Emit(events.IndexStart, map[string]any{"count": len(docs)}, nil)
	nowMs := document.NowMs()
	stored := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		stored = append(stored, e.docs.Add(d, nowMs))
	}
	if err := e.mapper.IndexBulk(ctx, stored, nowMs); err != nil {
		e.bus.Emit(events.IndexError, map[string]any{"count": len(docs)}, err)
		return nil, err
	}
	e.cache.Clear()
	e.metrics.RecordIndexed(len(stored))
	e.bus.Emit(events.IndexComplete, map[string]any{"count": len(stored)}, nil)
	return stored, nil
}

// UpdateDocument replaces doc.ID's fields, versioning the prior content
// when versioning is enabled.
func (e *Engine) UpdateDocument(ctx context.Context, doc *document.Document) (*document.Document, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("engine: update requires an id: %w", engerrors.ErrInvalidDocument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureMutable(); err != nil {
		return nil, err
	}
	prev := e.state
	e.state = Mutating
	defer func() { e.state = prev }()

	e.bus.Emit(events.UpdateStart, map[string]any{"id": doc.ID}, nil)
	nowMs := document.NowMs()
	updated, err := e.docs.Update(doc.ID, doc.Fields, nowMs)
	if err != nil {
		e.bus.Emit(events.UpdateError, map[string]any{"id": doc.ID}, err)
		return nil, err
	}
	e.mapper.UpdateDocument(updated, nowMs)
	e.cache.Clear()
	e.metrics.RecordUpdated()
	e.bus.Emit(events.UpdateComplete, map[string]any{"id": updated.ID}, nil)
	return updated, nil
}

// RestoreVersion re-applies a prior version's content as a new update,
// itself versioning the pre-restore state (spec §4.6).
func (e *Engine) RestoreVersion(ctx context.Context, id string, version int) (*document.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureMutable(); err != nil {
		return nil, err
	}
	prev := e.state
	e.state = Mutating
	defer func() { e.state = prev }()

	e.bus.Emit(events.UpdateStart, map[string]any{"id": id, "restore_version": version}, nil)
	nowMs := document.NowMs()
	restored, err := e.docs.RestoreVersion(id, version, nowMs)
	if err != nil {
		e.bus.Emit(events.UpdateError, map[string]any{"id": id}, err)
		return nil, err
	}
	e.mapper.UpdateDocument(restored, nowMs)
	e.cache.Clear()
	e.metrics.RecordUpdated()
	e.bus.Emit(events.UpdateComplete, map[string]any{"id": restored.ID, "restored_version": version}, nil)
	return restored, nil
}

// RemoveDocument drops id from the store and index.
func (e *Engine) RemoveDocument(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureMutable(); err != nil {
		return err
	}
	prev := e.state
	e.state = Mutating
	defer func() { e.state = prev }()

	e.bus.Emit(events.RemoveStart, map[string]any{"id": id}, nil)
	if !e.docs.Remove(id) {
		err := fmt.Errorf("engine: remove %q: %w", id, engerrors.ErrDocumentNotFound)
		e.bus.Emit(events.RemoveError, map[string]any{"id": id}, err)
		return err
	}
	e.mapper.RemoveDocument(id)
	e.cache.Clear()
	e.metrics.RecordRemoved()
	e.bus.Emit(events.RemoveComplete, map[string]any{"id": id}, nil)
	return nil
}

// BulkUpdate applies Update to each document in docs, stopping at the
// first failure (the prior updates in the batch remain applied; this
// mirrors the single-threaded cooperative model's lack of transactional
// rollback across Storage-free in-memory operations).
func (e *Engine) BulkUpdate(ctx context.Context, docs []*document.Document) ([]*document.Document, error) {
	for _, d := range docs {
		if d == nil || d.ID == "" {
			return nil, fmt.Errorf("engine: bulk update requires ids: %w", engerrors.ErrInvalidDocument)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureMutable(); err != nil {
		return nil, err
	}
	prev := e.state
	e.state = Mutating
	defer func() { e.state = prev }()

	e.bus.Emit(events.BulkUpdateStart, map[string]any{"count": len(docs)}, nil)
	nowMs := document.NowMs()
	updated := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		u, err := e.docs.Update(d.ID, d.Fields, nowMs)
		if err != nil {
			e.bus.Emit(events.BulkUpdateError, map[string]any{"id": d.ID}, err)
			return nil, err
		}
		e.mapper.UpdateDocument(u, nowMs)
		updated = append(updated, u)
	}
	e.cache.Clear()
	e.metrics.RecordBulkUpdate()
	e.bus.Emit(events.BulkUpdateComplete, map[string]any{"count": len(updated)}, nil)
	return updated, nil
}

// ClearIndex wipes storage, the document store, and the in-memory index.
// If the storage clear fails, the in-memory index is left untouched so
// that later operations can still run (spec §7).
func (e *Engine) ClearIndex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureMutable(); err != nil {
		return err
	}
	prev := e.state
	e.state = Mutating
	defer func() { e.state = prev }()

	if err := e.backend.Clear(ctx); err != nil {
		err = fmt.Errorf("engine: clear storage: %w", err)
		e.bus.Emit(events.StorageClearError, nil, err)
		return err
	}
	e.docs.Clear()
	e.mapper.Clear()
	e.cache.Clear()
	e.bus.Emit(events.IndexClear, nil, nil)
	e.bus.Emit(events.StorageClear, nil, nil)
	return nil
}

// docEntry is one {key, value} document entry in the persisted blob.
type docEntry struct {
	Key   string             `json:"key"`
	Value *document.Document `json:"value"`
}

type indexStateBlob struct {
	Trie      json.RawMessage     `json:"trie"`
	DataMap   map[string][]string `json:"data_map"`
	Documents []docEntry          `json:"documents"`
}

type configBlob struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Fields  []string `json:"fields"`
}

type persistedBlob struct {
	Documents  []docEntry     `json:"documents"`
	IndexState indexStateBlob `json:"index_state"`
	Config     configBlob     `json:"config"`
}

func (e *Engine) buildBlobLocked() ([]byte, error) {
	docs := e.docs.All()
	entries := make([]docEntry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, docEntry{Key: d.ID, Value: d})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	trieBlob, err := e.mapper.Trie().Serialize()
	if err != nil {
		return nil, fmt.Errorf("engine: serialize trie: %w", err)
	}

	blob := persistedBlob{
		Documents: entries,
		IndexState: indexStateBlob{
			Trie:      trieBlob,
			DataMap:   e.mapper.Postings().Snapshot(),
			Documents: entries,
		},
		Config: configBlob{
			Name:    e.cfg.IndexName,
			Version: e.cfg.Version,
			Fields:  e.cfg.DefaultFields,
		},
	}
	out, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("engine: marshal index blob: %w", err)
	}
	return out, nil
}

// ExportIndex renders the current document set and index state as a
// versioned blob (spec §6's persisted layout).
func (e *Engine) ExportIndex(ctx context.Context) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureMutable(); err != nil {
		return nil, err
	}

	e.bus.Emit(events.ExportStart, nil, nil)
	blob, err := e.buildBlobLocked()
	if err != nil {
		e.bus.Emit(events.ExportError, nil, err)
		return nil, err
	}
	e.bus.Emit(events.ExportComplete, map[string]any{"bytes": len(blob)}, nil)
	return blob, nil
}

// ImportIndex replaces the document store and index with the contents of
// blob, rejecting it with ErrSerializationMismatch if its config.version
// does not match this engine's.
func (e *Engine) ImportIndex(ctx context.Context, blob []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureMutable(); err != nil {
		return err
	}
	prev := e.state
	e.state = Mutating
	defer func() { e.state = prev }()

	e.bus.Emit(events.ImportStart, nil, nil)

	var parsed persistedBlob
	if err := json.Unmarshal(blob, &parsed); err != nil {
		err = fmt.Errorf("engine: %w: %v", engerrors.ErrSerializationMismatch, err)
		e.bus.Emit(events.ImportError, nil, err)
		return err
	}
	if parsed.Config.Version != e.cfg.Version {
		err := fmt.Errorf("engine: index version %q != engine version %q: %w",
			parsed.Config.Version, e.cfg.Version, engerrors.ErrSerializationMismatch)
		e.bus.Emit(events.ImportError, nil, err)
		return err
	}

	nowMs := document.NowMs()
	e.docs.Clear()
	for _, entry := range parsed.Documents {
		e.docs.Restore(entry.Value)
	}
	if err := e.mapper.ImportState(parsed.IndexState.Trie, parsed.IndexState.DataMap, nowMs); err != nil {
		e.bus.Emit(events.ImportError, nil, err)
		return err
	}
	e.cache.Clear()
	e.bus.Emit(events.ImportComplete, map[string]any{"documents": len(parsed.Documents)}, nil)
	return nil
}

// ReindexAll rebuilds the trie and postings from the documents currently
// in the store, discarding any stale index state.
func (e *Engine) ReindexAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureMutable(); err != nil {
		return err
	}
	prev := e.state
	e.state = Mutating
	defer func() { e.state = prev }()

	e.bus.Emit(events.ReindexStart, nil, nil)
	nowMs := document.NowMs()
	docs := e.docs.All()
	e.mapper.Clear()
	if err := e.mapper.IndexBulk(ctx, docs, nowMs); err != nil {
		return err
	}
	e.cache.Clear()
	e.bus.Emit(events.ReindexComplete, map[string]any{"documents": len(docs)}, nil)
	return nil
}

// OptimizeIndex flushes the result cache and rewrites the full index
// snapshot to storage.
func (e *Engine) OptimizeIndex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureMutable(); err != nil {
		return err
	}
	prev := e.state
	e.state = Mutating
	defer func() { e.state = prev }()

	e.bus.Emit(events.OptimizeStart, nil, nil)
	e.cache.Clear()
	blob, err := e.buildBlobLocked()
	if err != nil {
		return err
	}
	if err := e.backend.Put(ctx, e.cfg.IndexName, blob); err != nil {
		err = fmt.Errorf("engine: optimize: %w", engerrors.ErrStorageError)
		e.bus.Emit(events.StorageError, nil, err)
		return err
	}
	e.bus.Emit(events.OptimizeComplete, map[string]any{"bytes": len(blob)}, nil)
	return nil
}

// Close releases the engine's worker pool and storage backend.
// Transitions any state to Closed; further operations fail with
// ErrEngineClosed.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Closed {
		return nil
	}
	e.mapper.Close()
	if e.pool != nil {
		e.pool.Release()
	}
	if err := e.backend.Close(); err != nil {
		return fmt.Errorf("engine: close storage: %w", err)
	}
	e.state = Closed
	e.bus.Emit(events.EngineClosed, map[string]any{"index": e.cfg.IndexName}, nil)
	e.log.Info("engine closed", "index", e.cfg.IndexName)
	return nil
}

// GetStats reports a point-in-time view of document count, index size
// (distinct indexed tokens), cache size, and whether the engine is usable.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		DocumentCount: e.docs.Count(),
		IndexSize:     e.mapper.Postings().Size(),
		CacheSize:     e.cache.Stats().Size,
		Initialized:   e.state == Initialized || e.state == Mutating || e.state == Searching,
	}
}

// SearchOptions mirrors spec §6's recognized SearchOptions keys.
type SearchOptions struct {
	Fuzzy          bool
	MaxDistance    int
	PrefixMatch    bool
	Fields         []string
	Boost          map[string]float64
	MaxResults     int
	Threshold      float64
	MinScore       float64
	SortBy         string
	SortOrder      string
	Page           int
	PageSize       int
	Regex          *string
	RegexConfig    traversal.Config
	CaseSensitive  bool
	IncludeMatches bool
}

// DefaultSearchOptions returns the spec's documented defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		MaxDistance: 2,
		MaxResults:  10,
		Threshold:   0.5,
		SortBy:      "score",
		SortOrder:   "desc",
		Page:        1,
		PageSize:    10,
		RegexConfig: traversal.DefaultConfig(),
	}
}

// withDefaults fills in zero-valued fields that have no valid zero meaning
// (max_results, page, page_size must be >= 1; sort_by/sort_order are never
// empty strings; max_distance when fuzzy is set). Negative values are left
// for validateSearchOptions to reject. Fields whose zero value is itself
// meaningful (fuzzy, prefix_match, case_sensitive, threshold) are left
// untouched; DefaultSearchOptions carries the 0.5 threshold default.
func (o SearchOptions) withDefaults() SearchOptions {
	d := DefaultSearchOptions()
	if o.MaxResults == 0 {
		o.MaxResults = d.MaxResults
	}
	if o.Fuzzy && o.MaxDistance == 0 {
		o.MaxDistance = d.MaxDistance
	}
	if o.SortBy == "" {
		o.SortBy = d.SortBy
	}
	if o.SortOrder == "" {
		o.SortOrder = d.SortOrder
	}
	if o.Page == 0 {
		o.Page = d.Page
	}
	if o.PageSize == 0 {
		o.PageSize = d.PageSize
	}
	if o.RegexConfig == (traversal.Config{}) {
		o.RegexConfig = d.RegexConfig
	}
	return o
}

func validateSearchOptions(o SearchOptions) error {
	if o.MaxResults < 1 {
		return fmt.Errorf("engine: max_results must be >= 1: %w", engerrors.ErrInvalidOptions)
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("engine: threshold must be in [0,1]: %w", engerrors.ErrInvalidOptions)
	}
	if o.MaxDistance < 0 {
		return fmt.Errorf("engine: max_distance must be >= 0: %w", engerrors.ErrInvalidOptions)
	}
	if o.Page < 1 {
		return fmt.Errorf("engine: page must be >= 1: %w", engerrors.ErrInvalidOptions)
	}
	if o.PageSize < 1 {
		return fmt.Errorf("engine: page_size must be >= 1: %w", engerrors.ErrInvalidOptions)
	}
	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		return fmt.Errorf("engine: sort_order must be asc or desc: %w", engerrors.ErrInvalidOptions)
	}
	return nil
}

// optionsFingerprint renders the option fields that affect result content
// into a stable string for cache-key derivation.
func optionsFingerprint(o SearchOptions) string {
	regex := ""
	if o.Regex != nil {
		regex = *o.Regex
	}
	return fmt.Sprintf("fuzzy=%v;dist=%d;prefix=%v;fields=%v;boost=%v;max=%d;thresh=%g;min=%g;sort=%s-%s;page=%d;size=%d;regex=%s;rcfg=%+v;case=%v",
		o.Fuzzy, o.MaxDistance, o.PrefixMatch, o.Fields, o.Boost, o.MaxResults, o.Threshold,
		o.MinScore, o.SortBy, o.SortOrder, o.Page, o.PageSize, regex, o.RegexConfig, o.CaseSensitive)
}

// Search runs query through the normalization, matching, scoring, and
// pagination pipeline of spec §4.9's search flow.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	opts = opts.withDefaults()
	if err := validateSearchOptions(opts); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if err := e.initializeLocked(ctx); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	prev := e.state
	e.state = Searching
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.state = prev
		e.mu.Unlock()
	}()

	start := time.Now()
	e.bus.Emit(events.SearchStart, map[string]any{"query": query}, nil)

	fingerprint := rcache.Fingerprint(query, optionsFingerprint(opts))
	nowMs := document.NowMs()

	if cached, ok := e.cache.Get(fingerprint, nowMs); ok {
		e.metrics.RecordCacheHit()
		paged := paginate(stripMatchesIfHidden(cached, opts), opts)
		e.metrics.RecordSearch(time.Since(start), nil)
		e.bus.Emit(events.SearchComplete, map[string]any{"query": query, "cached": true, "count": len(paged)}, nil)
		return paged, nil
	}
	e.metrics.RecordCacheMiss()

	var results []SearchResult
	var err error
	partial := false

	if opts.Regex != nil {
		var timedOut bool
		results, timedOut, err = e.searchRegex(ctx, *opts.Regex, opts, nowMs)
		if err != nil {
			e.metrics.RecordSearch(time.Since(start), err)
			e.bus.Emit(events.SearchError, map[string]any{"query": query}, err)
			return nil, err
		}
		results = filterMinScore(results, opts.MinScore)
		partial = timedOut
	} else {
		results, err = e.searchTerms(query, opts, nowMs)
		if err != nil {
			e.metrics.RecordSearch(time.Since(start), err)
			e.bus.Emit(events.SearchError, map[string]any{"query": query}, err)
			return nil, err
		}
		results = e.applyFieldBoost(results, opts)
		results = filterByThreshold(results, opts.Threshold)
	}

	sortResults(results, opts)
	e.cache.Set(fingerprint, results, nowMs)

	paged := paginate(stripMatchesIfHidden(results, opts), opts)
	e.metrics.RecordSearch(time.Since(start), nil)
	e.bus.Emit(events.SearchComplete, map[string]any{"query": query, "count": len(paged), "partial": partial}, nil)
	return paged, nil
}

func (e *Engine) searchRegex(ctx context.Context, pattern string, opts SearchOptions, nowMs int64) ([]SearchResult, bool, error) {
	e.mu.Lock()
	root := e.mapper.Trie().Root()
	pool := e.pool
	e.mu.Unlock()

	resultCap := opts.Page * opts.PageSize
	if resultCap < opts.MaxResults {
		resultCap = opts.MaxResults
	}
	raw, timeoutErr, err := traversal.Search(ctx, root, pattern, true, resultCap, opts.RegexConfig, nowMs, pool)
	if err != nil {
		return nil, false, err
	}

	results := make([]SearchResult, 0, len(raw))
	for _, r := range raw {
		results = append(results, SearchResult{ID: r.ID, Score: r.Score, Matches: r.Matches})
	}
	if timeoutErr != nil {
		e.metrics.RecordRegexTimeout()
		e.log.Warn("regex traversal timed out", "pattern", pattern, "partial", timeoutErr.Partial)
		return results, true, nil
	}
	return results, false, nil
}

// termAccumulator collects every per-term match score for one document
// across the query's terms and phrases, plus which terms matched (used
// both for field-boost lookups and, when requested, the caller-facing
// match list).
type termAccumulator struct {
	scores  []float64
	matched map[string]bool
}

func (e *Engine) searchTerms(query string, opts SearchOptions, nowMs int64) ([]SearchResult, error) {
	sanitized := queryproc.Sanitize(query)
	phrases, residue := queryproc.ExtractPhrases(sanitized)
	tokens := queryproc.Tokenize(residue)
	tokens = queryproc.RemoveStopWords(tokens)
	tokens = queryproc.NormalizeTerms(tokens)

	e.mu.Lock()
	totalDocs := e.docs.Count()
	e.mu.Unlock()

	docAcc := make(map[string]*termAccumulator)
	excluded := make(map[string]bool)
	var requiredSets []map[string]bool

	addTerm := func(term string, negate bool) {
		term = strings.TrimSpace(term)
		if term == "" {
			return
		}

		var matches []trie.Match
		switch {
		case opts.Fuzzy:
			fuzzyMatches := e.mapper.FuzzySearch(term, opts.MaxDistance, totalDocs, nowMs)
			matches = make([]trie.Match, len(fuzzyMatches))
			for i, m := range fuzzyMatches {
				matches[i] = trie.Match{DocumentID: m.DocumentID, Score: m.Score}
			}
		case opts.PrefixMatch:
			matches = e.mapper.PrefixSearch(term, totalDocs, nowMs)
		default:
			matches = e.mapper.Search(term, totalDocs, nowMs)
		}

		matchedIDs := make(map[string]bool, len(matches))
		for _, m := range matches {
			matchedIDs[m.DocumentID] = true
			if negate {
				continue
			}
			acc, ok := docAcc[m.DocumentID]
			if !ok {
				acc = &termAccumulator{matched: make(map[string]bool)}
				docAcc[m.DocumentID] = acc
			}
			acc.scores = append(acc.scores, m.Score)
			acc.matched[term] = true
		}
		if negate {
			for id := range matchedIDs {
				excluded[id] = true
			}
		} else {
			requiredSets = append(requiredSets, matchedIDs)
		}
	}

	for _, phrase := range phrases {
		addTerm(phrase, false)
	}
	for _, tok := range tokens {
		switch tok.Type {
		case queryproc.TokenOperator:
			negate := strings.HasPrefix(tok.Text, "-") || strings.HasPrefix(tok.Text, "!")
			addTerm(strings.TrimLeft(tok.Text, "+-!"), negate)
		case queryproc.TokenModifier:
			value := tok.Text
			if idx := strings.IndexByte(value, ':'); idx >= 0 {
				value = value[idx+1:]
			}
			addTerm(value, false)
		default:
			addTerm(tok.Text, false)
		}
	}

	var candidateIDs map[string]bool
	if len(requiredSets) > 0 {
		candidateIDs = requiredSets[0]
		for _, s := range requiredSets[1:] {
			next := make(map[string]bool, len(candidateIDs))
			for id := range candidateIDs {
				if s[id] {
					next[id] = true
				}
			}
			candidateIDs = next
		}
	} else {
		candidateIDs = make(map[string]bool, len(docAcc))
		for id := range docAcc {
			candidateIDs[id] = true
		}
	}

	results := make([]SearchResult, 0, len(candidateIDs))
	for id := range candidateIDs {
		if excluded[id] {
			continue
		}
		acc, ok := docAcc[id]
		if !ok || len(acc.scores) == 0 {
			continue
		}
		matches := make([]string, 0, len(acc.matched))
		for term := range acc.matched {
			matches = append(matches, term)
		}
		sort.Strings(matches)
		results = append(results, SearchResult{ID: id, Score: scorer.Combine(acc.scores), Matches: matches})
	}
	return results, nil
}

// applyFieldBoost rescales each result's score by the highest boost among
// the requested fields whose flattened text contains a matched term, and
// drops results that match no term within the requested fields when
// opts.Fields explicitly narrows the search. Because the Mapper flattens
// every field into one token stream (§4.4) rather than a field-tagged
// index, field scoping and boosting are applied here by re-inspecting the
// stored Document rather than by a per-field postings lookup.
func (e *Engine) applyFieldBoost(results []SearchResult, opts SearchOptions) []SearchResult {
	fields := opts.Fields
	if len(fields) == 0 {
		fields = e.cfg.DefaultFields
	}

	out := results[:0]
	for _, r := range results {
		doc := e.docs.Get(r.ID)
		if doc == nil {
			continue
		}

		matched := len(r.Matches) == 0
		multiplier := 1.0
		for _, f := range fields {
			text := strings.ToLower(fieldText(doc.Fields, f))
			if text == "" {
				continue
			}
			for _, term := range r.Matches {
				if strings.Contains(text, strings.ToLower(term)) {
					matched = true
					if b, ok := opts.Boost[f]; ok && b > multiplier {
						multiplier = b
					}
				}
			}
		}
		if len(opts.Fields) > 0 && !matched {
			continue
		}

		r.Score *= multiplier
		r.Fields = doc.Fields
		out = append(out, r)
	}
	return out
}

func fieldText(f document.Fields, field string) string {
	switch field {
	case "title":
		return f.Title
	case "content":
		return f.Content
	case "author":
		return f.Author
	case "tags":
		return strings.Join(f.Tags, " ")
	default:
		if f.Extra == nil {
			return ""
		}
		if v, ok := f.Extra[field]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
}

func filterByThreshold(results []SearchResult, threshold float64) []SearchResult {
	out := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	return out
}

func filterMinScore(results []SearchResult, min float64) []SearchResult {
	if min <= 0 {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if r.Score >= min {
			out = append(out, r)
		}
	}
	return out
}

// sortResults orders by score per opts.SortOrder, breaking ties by id so
// that pagination over equally-scored results is deterministic across
// separate calls (the underlying match set is built from map iteration,
// which is not itself stable).
func sortResults(results []SearchResult, opts SearchOptions) {
	asc := opts.SortOrder == "asc"
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			if asc {
				return results[i].Score < results[j].Score
			}
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

// stripMatchesIfHidden drops the Matches field from a copy of results when
// the caller did not request include_matches, without mutating the cached
// slice backing results.
func stripMatchesIfHidden(results []SearchResult, opts SearchOptions) []SearchResult {
	if opts.IncludeMatches {
		return results
	}
	out := make([]SearchResult, len(results))
	for i, r := range results {
		r.Matches = nil
		out[i] = r
	}
	return out
}

func paginate(results []SearchResult, opts SearchOptions) []SearchResult {
	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	start := (opts.Page - 1) * opts.PageSize
	if start >= len(results) {
		return []SearchResult{}
	}
	end := start + opts.PageSize
	if end > len(results) {
		end = len(results)
	}
	return results[start:end]
}
