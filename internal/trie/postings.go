package trie

import (
	"sort"
	"sync"
)

// Postings is the auxiliary Key→Doc mapping from a normalized (lowercased)
// token to the set of document ids containing it (spec §4.2). It is
// redundant with the Trie's own document_refs. Contains offers an O(1)
// membership check; the Scorer does not consult this map. The engine reads
// its Size for the index-size stat and its Snapshot for exported data_map.
type Postings struct {
	mu   sync.RWMutex
	data map[string]map[string]struct{}
}

// NewPostings returns an empty Postings map.
func NewPostings() *Postings {
	return &Postings{data: make(map[string]map[string]struct{})}
}

// MapKey adds docID to the set at key, creating the set if absent.
func (p *Postings) MapKey(key, docID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.data[key]
	if !ok {
		set = make(map[string]struct{})
		p.data[key] = set
	}
	set[docID] = struct{}{}
}

// DocumentsFor returns the set of document ids at key, or an empty set.
func (p *Postings) DocumentsFor(key string) map[string]struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set, ok := p.data[key]
	if !ok {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out
}

// Contains reports whether key maps to docID without a second Trie walk.
func (p *Postings) Contains(key, docID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set, ok := p.data[key]
	if !ok {
		return false
	}
	_, has := set[docID]
	return has
}

// RemoveDocument scans all entries and deletes docID from each. Empty
// entries are not eagerly collected, matching spec §4.2.
func (p *Postings) RemoveDocument(docID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, set := range p.data {
		delete(set, docID)
	}
}

// Clear drops all entries.
func (p *Postings) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = make(map[string]map[string]struct{})
}

// Snapshot renders every key's document set as a sorted id slice, for the
// export blob's data_map.
func (p *Postings) Snapshot() map[string][]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string][]string, len(p.data))
	for key, set := range p.data {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[key] = ids
	}
	return out
}

// Size reports the number of distinct keys, used as the index's size stat.
func (p *Postings) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.data)
}
