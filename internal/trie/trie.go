// Package trie implements the character-indexed inverted index at the
// heart of the search engine: weighted terminal document references,
// bounded-edit-distance fuzzy search, and the auxiliary key→doc postings
// map.
package trie

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/goccy/go-json"

	"lexitrie/internal/engerrors"
	"lexitrie/internal/scorer"
	"lexitrie/pkg/suggest"
)

// DefaultMaxWordLength is the default bound on indexed word length.
const DefaultMaxWordLength = 50

// TrieNode is an internal index entity: one character position in the trie.
type TrieNode struct {
	Children     map[byte]*TrieNode
	IsTerminal   bool
	DocumentRefs map[string]struct{}
	Weight       float64
	Frequency    int
	LastAccessed int64
	PrefixCount  int
	Depth        int
}

func newNode(depth int) *TrieNode {
	return &TrieNode{Children: make(map[byte]*TrieNode), Depth: depth}
}

// isPrunable reports whether a node satisfies the pruning invariant: no
// children, no document refs, zero weight, zero frequency.
func isPrunable(n *TrieNode) bool {
	return len(n.Children) == 0 && len(n.DocumentRefs) == 0 && n.Weight == 0 && n.Frequency == 0
}

// Match is one (document, score) pair returned by exact/prefix search.
type Match struct {
	DocumentID string
	Score      float64
}

// FuzzyMatch additionally carries the edit distance to the query term.
type FuzzyMatch struct {
	DocumentID string
	Score      float64
	Distance   int
}

// Trie is the character-indexed inverted index.
type Trie struct {
	mu            sync.RWMutex
	root          *TrieNode
	maxWordLength int
	caseSensitive bool
	fuzzyPenalty  scorer.FuzzyPenalty
}

// New returns an empty Trie. maxWordLength <= 0 falls back to
// DefaultMaxWordLength.
func New(maxWordLength int, caseSensitive bool) *Trie {
	if maxWordLength <= 0 {
		maxWordLength = DefaultMaxWordLength
	}
	return &Trie{
		root:          newNode(0),
		maxWordLength: maxWordLength,
		caseSensitive: caseSensitive,
		fuzzyPenalty:  scorer.DefaultFuzzyPenalty,
	}
}

// SetFuzzyPenalty overrides the fuzzy-vs-exact rescale factor (SPEC_FULL.md
// §9, decision #2).
func (t *Trie) SetFuzzyPenalty(p scorer.FuzzyPenalty) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fuzzyPenalty = p
}

// Root exposes the trie's root node for regex traversal (internal/traversal),
// which must walk the tree directly rather than through word/prefix lookup.
func (t *Trie) Root() *TrieNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

func (t *Trie) normalize(word string) string {
	if !t.caseSensitive {
		word = strings.ToLower(word)
	}
	return word
}

// Insert adds word → docID to the trie. Empty words and empty doc ids are
// silently ignored, as is any word longer than maxWordLength.
func (t *Trie) Insert(word, docID string, nowMs int64) {
	word = t.normalize(word)
	if word == "" || docID == "" || len(word) > t.maxWordLength {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	node := t.root
	for i := 0; i < len(word); i++ {
		c := word[i]
		child, ok := node.Children[c]
		if !ok {
			child = newNode(node.Depth + 1)
			node.Children[c] = child
		}
		child.PrefixCount++
		node = child
	}

	node.IsTerminal = true
	if node.DocumentRefs == nil {
		node.DocumentRefs = make(map[string]struct{})
	}
	node.DocumentRefs[docID] = struct{}{}
	node.Frequency++
	node.Weight += 1.0
	node.LastAccessed = nowMs
}

// ExactSearch walks the trie for word and, if it names a terminal node,
// returns a scored Match per document reference.
func (t *Trie) ExactSearch(word string, totalDocuments int, nowMs int64) []Match {
	word = t.normalize(word)

	t.mu.RLock()
	defer t.mu.RUnlock()

	node := t.walk(word)
	if node == nil || !node.IsTerminal {
		return nil
	}
	return t.scoreNode(node, word, totalDocuments, nowMs)
}

// PrefixSearch walks to the prefix node and returns a scored Match for
// every terminal descendant.
func (t *Trie) PrefixSearch(prefix string, totalDocuments int, nowMs int64) []Match {
	prefix = t.normalize(prefix)

	t.mu.RLock()
	defer t.mu.RUnlock()

	node := t.walk(prefix)
	if node == nil {
		return nil
	}

	var results []Match
	t.collectTerminals(node, prefix, func(word string, term *TrieNode) {
		results = append(results, t.scoreNode(term, word, totalDocuments, nowMs)...)
	})
	return results
}

// Suggest returns up to limit candidate completions for prefix, ranked by
// the secondary fuzzy-similarity ranker when there are more raw candidates
// than limit.
func (t *Trie) Suggest(prefix string, limit int) []string {
	normalized := t.normalize(prefix)

	t.mu.RLock()
	node := t.walk(normalized)
	if node == nil {
		t.mu.RUnlock()
		return nil
	}

	var candidates []string
	t.collectTerminals(node, normalized, func(word string, term *TrieNode) {
		candidates = append(candidates, word)
	})
	t.mu.RUnlock()

	if limit <= 0 || len(candidates) <= limit {
		sort.Strings(candidates)
		if limit > 0 && len(candidates) > limit {
			candidates = candidates[:limit]
		}
		return candidates
	}
	return suggest.Rank(normalized, candidates, limit, suggest.DefaultWeights)
}

// walk returns the node reached by consuming s one character at a time, or
// nil if any character is missing. Caller must hold t.mu.
func (t *Trie) walk(s string) *TrieNode {
	node := t.root
	for i := 0; i < len(s); i++ {
		child, ok := node.Children[s[i]]
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

// collectTerminals DFS-walks every descendant of node (inclusive),
// invoking fn for each terminal with its full word.
func (t *Trie) collectTerminals(node *TrieNode, prefix string, fn func(word string, term *TrieNode)) {
	if node.IsTerminal {
		fn(prefix, node)
	}
	for c, child := range node.Children {
		t.collectTerminals(child, prefix+string(c), fn)
	}
}

func (t *Trie) scoreNode(node *TrieNode, term string, totalDocuments int, nowMs int64) []Match {
	refCount := len(node.DocumentRefs)
	if refCount == 0 {
		return nil
	}
	score := scorer.Score(scorer.TermParams{
		Term:             term,
		Frequency:        node.Frequency,
		DocumentRefCount: refCount,
		Weight:           node.Weight,
		Depth:            node.Depth,
		LastAccessedMs:   node.LastAccessed,
		NowMs:            nowMs,
		TotalDocuments:   totalDocuments,
	})

	matches := make([]Match, 0, refCount)
	for docID := range node.DocumentRefs {
		matches = append(matches, Match{DocumentID: docID, Score: score})
	}
	return matches
}

// fuzzyCandidate is a terminal node reached during bounded descent.
type fuzzyCandidate struct {
	node     *TrieNode
	word     string
	distance int
}

type visitKey struct {
	node  *TrieNode
	depth int
}

// FuzzySearch performs the bounded Levenshtein recursive descent specified
// in §4.1: substitution, insertion, and deletion edges from the root,
// pruned whenever the running distance exceeds maxDistance, with the exact
// edit distance recomputed at each terminal reached.
func (t *Trie) FuzzySearch(word string, maxDistance int, totalDocuments int, nowMs int64) []FuzzyMatch {
	query := t.normalize(word)

	t.mu.RLock()
	defer t.mu.RUnlock()

	visited := make(map[visitKey]int)
	var candidates []fuzzyCandidate

	var visit func(node *TrieNode, current string, dist, depth int)
	visit = func(node *TrieNode, current string, dist, depth int) {
		if dist > maxDistance {
			return
		}
		key := visitKey{node: node, depth: depth}
		if best, ok := visited[key]; ok && best <= dist {
			return
		}
		visited[key] = dist

		if node.IsTerminal {
			d := levenshtein.ComputeDistance(query, current)
			if d <= maxDistance {
				candidates = append(candidates, fuzzyCandidate{node: node, word: current, distance: d})
			}
		}

		for c, child := range node.Children {
			// Substitution: consumes one query character.
			if depth < len(query) {
				cost := 1
				if query[depth] == c {
					cost = 0
				}
				visit(child, current+string(c), dist+cost, depth+1)
			}
			// Insertion: extra character not present in the query.
			visit(child, current+string(c), dist+1, depth)
		}
		// Deletion: skip a query character without consuming a trie edge.
		if depth < len(query) {
			visit(node, current, dist+1, depth+1)
		}
	}

	visit(t.root, "", 0, 0)

	var results []FuzzyMatch
	for _, cand := range candidates {
		refCount := len(cand.node.DocumentRefs)
		if refCount == 0 {
			continue
		}
		exact := scorer.Score(scorer.TermParams{
			Term:             cand.word,
			Frequency:        cand.node.Frequency,
			DocumentRefCount: refCount,
			Weight:           cand.node.Weight,
			Depth:            cand.node.Depth,
			LastAccessedMs:   cand.node.LastAccessed,
			NowMs:            nowMs,
			TotalDocuments:   totalDocuments,
		})
		fuzzyScore := scorer.ApplyFuzzy(exact, cand.distance, t.fuzzyPenalty)
		for docID := range cand.node.DocumentRefs {
			results = append(results, FuzzyMatch{DocumentID: docID, Score: fuzzyScore, Distance: cand.distance})
		}
	}
	return results
}

// RemoveDocument removes every trie reference to docID. When tokens is
// non-empty it is treated as the multiset of words this document
// contributed (one entry per insert call, duplicates included) and removal
// runs in O(total token length) by walking each token's path directly. When
// tokens is empty, removal falls back to a full-tree scan, per §4.1: the
// trie has no per-document path list of its own, so that path is the
// documented "knows no per-document path list" case (e.g. restoring from a
// legacy-format import blob with no token hint).
func (t *Trie) RemoveDocument(docID string, tokens []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(tokens) > 0 {
		t.removeDocumentByTokens(docID, tokens)
		return
	}
	t.removeDocumentFullScan(docID)
}

func (t *Trie) removeDocumentByTokens(docID string, tokens []string) {
	for _, tok := range tokens {
		word := t.normalize(tok)
		if word == "" {
			continue
		}

		path := make([]*TrieNode, 1, len(word)+1)
		path[0] = t.root
		chars := make([]byte, 0, len(word))

		node := t.root
		ok := true
		for i := 0; i < len(word); i++ {
			c := word[i]
			child, exists := node.Children[c]
			if !exists {
				ok = false
				break
			}
			path = append(path, child)
			chars = append(chars, c)
			node = child
		}
		if !ok {
			continue
		}

		if node.IsTerminal {
			if _, has := node.DocumentRefs[docID]; has {
				delete(node.DocumentRefs, docID)
				decrementCounters(node)
			}
		}

		for i := len(path) - 1; i >= 1; i-- {
			path[i].PrefixCount--
			if path[i].PrefixCount < 0 {
				path[i].PrefixCount = 0
			}
		}
		for i := len(path) - 1; i >= 1; i-- {
			parent := path[i-1]
			child := path[i]
			if !isPrunable(child) {
				break
			}
			delete(parent.Children, chars[i-1])
		}
	}
}

func decrementCounters(node *TrieNode) {
	node.Frequency--
	if node.Frequency < 0 {
		node.Frequency = 0
	}
	node.Weight -= 1.0
	if node.Weight < 0 {
		node.Weight = 0
	}
	if len(node.DocumentRefs) == 0 {
		node.IsTerminal = false
	}
}

func (t *Trie) removeDocumentFullScan(docID string) {
	t.removeSubtree(t.root, docID)
}

// removeSubtree recursively decrements document_refs and prefix_count along
// every path that referenced docID, skipping subtrees whose prefix_count is
// already zero, then opportunistically prunes bottom-up. The root keeps no
// prefix_count of its own and is always descended. Returns the number of
// terminal occurrences removed beneath (and including) node.
func (t *Trie) removeSubtree(node *TrieNode, docID string) int {
	if node != t.root && node.PrefixCount == 0 && !node.IsTerminal {
		return 0
	}

	removed := 0
	if node.IsTerminal {
		if _, has := node.DocumentRefs[docID]; has {
			delete(node.DocumentRefs, docID)
			decrementCounters(node)
			removed++
		}
	}

	for c, child := range node.Children {
		childRemoved := t.removeSubtree(child, docID)
		if childRemoved == 0 {
			continue
		}
		removed += childRemoved
		child.PrefixCount -= childRemoved
		if child.PrefixCount < 0 {
			child.PrefixCount = 0
		}
		if isPrunable(child) {
			delete(node.Children, c)
		}
	}

	return removed
}

// serialNode is the on-wire representation used by Serialize/Deserialize:
// depth-first pre-order emission of {is_terminal, document_refs, weight,
// frequency, children}, keyed by the single-character edge from the parent.
type serialNode struct {
	T bool                   `json:"t"`
	D []string               `json:"d,omitempty"`
	W float64                `json:"w"`
	F int                    `json:"f"`
	C map[string]*serialNode `json:"c,omitempty"`
}

func toSerial(node *TrieNode) *serialNode {
	s := &serialNode{T: node.IsTerminal, W: node.Weight, F: node.Frequency}
	if len(node.DocumentRefs) > 0 {
		s.D = make([]string, 0, len(node.DocumentRefs))
		for id := range node.DocumentRefs {
			s.D = append(s.D, id)
		}
		sort.Strings(s.D)
	}
	if len(node.Children) > 0 {
		s.C = make(map[string]*serialNode, len(node.Children))
		for c, child := range node.Children {
			s.C[string(c)] = toSerial(child)
		}
	}
	return s
}

// Serialize renders the trie as a JSON blob. The blob carries no version
// field of its own.
func (t *Trie) Serialize() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return json.Marshal(toSerial(t.root))
}

// fromSerial reconstructs a node tree from blob, recomputing depth from
// traversal position and prefix_count from the union of descendant
// document refs; last_accessed resets to deserialization time.
func fromSerial(s *serialNode, depth int, nowMs int64) *TrieNode {
	node := newNode(depth)
	node.IsTerminal = s.T
	node.Weight = s.W
	node.Frequency = s.F
	node.LastAccessed = nowMs
	if len(s.D) > 0 {
		node.DocumentRefs = make(map[string]struct{}, len(s.D))
		for _, id := range s.D {
			node.DocumentRefs[id] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	for id := range node.DocumentRefs {
		seen[id] = struct{}{}
	}
	for c, childSerial := range s.C {
		child := fromSerial(childSerial, depth+1, nowMs)
		node.Children[c[0]] = child
		for id := range child.DocumentRefs {
			seen[id] = struct{}{}
		}
		node.PrefixCount += child.PrefixCount
	}
	if len(s.C) > 0 {
		node.PrefixCount = len(seen)
	}
	return node
}

// Deserialize replaces the trie's contents with the tree encoded in blob.
// It fails with an error wrapping a schema-mismatch signal if blob cannot
// be decoded as a serialNode tree.
func (t *Trie) Deserialize(blob []byte, nowMs int64) error {
	var root serialNode
	if err := json.Unmarshal(blob, &root); err != nil {
		return fmt.Errorf("trie: %w: %v", engerrors.ErrSerializationMismatch, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = fromSerial(&root, 0, nowMs)
	return nil
}
