// Package traversal implements BFS and DFS regex walkers over the Trie
// with depth and wall-clock budgets (spec §4.5).
package traversal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"lexitrie/internal/engerrors"
	"lexitrie/internal/scorer"
	"lexitrie/internal/trie"
)

// Config bounds one traversal run.
type Config struct {
	MaxDepth      int
	TimeoutMs     int
	CaseSensitive bool
	WholeWord     bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{MaxDepth: 50, TimeoutMs: 5000, CaseSensitive: false, WholeWord: false}
}

// RegexResult is one document match produced by a traversal.
type RegexResult struct {
	ID        string
	Score     float64
	Matches   []string
	Path      string
	Positions [][2]int
}

// complexPatternChars is the set of regex metacharacters that tip pattern
// selection toward the DFS walker (spec §4.5).
const complexPatternChars = `+*?|([`

// selectStrategy reports whether the DFS walker should be used: the
// pattern is "complex" if it contains any regex metacharacter from
// complexPatternChars or is longer than 20 characters.
func selectStrategy(pattern string) bool {
	if len(pattern) > 20 {
		return true
	}
	return strings.ContainsAny(pattern, complexPatternChars)
}

// preparePattern builds the compiled regex to test matched_so_far against.
// literal patterns are escaped (and whole-word wrapped); pattern sources
// that are already regexes are used as-is modulo the case flag.
func preparePattern(pattern string, isRegexSource bool, cfg Config) (*regexp.Regexp, error) {
	src := pattern
	if !isRegexSource {
		src = regexp.QuoteMeta(pattern)
		if cfg.WholeWord {
			src = `\b` + src + `\b`
		}
	}
	if !cfg.CaseSensitive {
		src = "(?i)" + src
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engerrors.ErrInvalidPattern, err)
	}
	return re, nil
}

// frontierItem is one pending traversal step: the trie node reached after
// consuming matched so far, at the given depth, with path recording the
// character sequence taken to get there.
type frontierItem struct {
	node    *trie.TrieNode
	matched string
	path    string
	depth   int
}

type walkState struct {
	ctx      context.Context
	re       *regexp.Regexp
	cfg      Config
	nowMs    int64
	deadline time.Time

	mu       sync.Mutex
	visited  map[string]bool
	results  []RegexResult
	timedOut bool
}

// visit records a RegexResult for every still-unvisited document ref on
// node, if node is terminal and matched_so_far satisfies the regex.
func (w *walkState) visit(node *trie.TrieNode, matched, path string, depth int) {
	if depth == 0 || !node.IsTerminal || len(node.DocumentRefs) == 0 {
		return
	}
	if !w.re.MatchString(matched) {
		return
	}

	positions := w.re.FindAllStringIndex(matched, -1)
	if len(positions) == 0 {
		return
	}
	totalLen := 0
	pos := make([][2]int, 0, len(positions))
	for _, p := range positions {
		pos = append(pos, [2]int{p[0], p[1]})
		totalLen += p[1] - p[0]
	}
	matchCount := len(positions)

	w.mu.Lock()
	defer w.mu.Unlock()
	for docID := range node.DocumentRefs {
		if w.visited[docID] {
			continue
		}
		w.visited[docID] = true

		base := scorer.NodeScore(node.Weight, node.Frequency, node.LastAccessed, w.nowMs, node.Depth)
		score := base * float64(matchCount) * (float64(totalLen) / float64(len(matched))) / float64(depth)

		w.results = append(w.results, RegexResult{
			ID:        docID,
			Score:     score,
			Matches:   []string{matched},
			Path:      path,
			Positions: pos,
		})
	}
}

func (w *walkState) expired() bool {
	if w.ctx != nil && w.ctx.Err() != nil {
		return true
	}
	return time.Now().After(w.deadline)
}

// walkBFS processes the frontier as a queue, breadth-first.
func walkBFS(root *trie.TrieNode, w *walkState) {
	queue := []frontierItem{{node: root, matched: "", path: "", depth: 0}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if w.expired() {
			w.mu.Lock()
			w.timedOut = true
			w.mu.Unlock()
			return
		}
		if item.depth > w.cfg.MaxDepth {
			continue
		}

		w.visit(item.node, item.matched, item.path, item.depth)

		for ch, child := range item.node.Children {
			queue = append(queue, frontierItem{
				node:    child,
				matched: item.matched + string(ch),
				path:    item.path + string(ch),
				depth:   item.depth + 1,
			})
		}
	}
}

// walkDFS processes the frontier depth-first, fanning the root's immediate
// children out across an ants worker pool when one is supplied.
func walkDFS(root *trie.TrieNode, w *walkState, pool *ants.Pool) {
	var recurse func(item frontierItem)
	recurse = func(item frontierItem) {
		if w.expired() {
			w.mu.Lock()
			w.timedOut = true
			w.mu.Unlock()
			return
		}
		if item.depth > w.cfg.MaxDepth {
			return
		}

		w.visit(item.node, item.matched, item.path, item.depth)

		for ch, child := range item.node.Children {
			recurse(frontierItem{
				node:    child,
				matched: item.matched + string(ch),
				path:    item.path + string(ch),
				depth:   item.depth + 1,
			})
		}
	}

	if pool == nil || len(root.Children) < 2 {
		recurse(frontierItem{node: root, matched: "", path: "", depth: 0})
		return
	}

	w.visit(root, "", "", 0)

	var wg sync.WaitGroup
	for ch, child := range root.Children {
		item := frontierItem{node: child, matched: string(ch), path: string(ch), depth: 1}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			recurse(item)
		})
		if err != nil {
			wg.Done()
			recurse(item)
		}
	}
	wg.Wait()
}

// Search walks root for nodes whose accumulated path matches pattern,
// returning up to maxResults results sorted by score descending. The
// second return value is non-nil if the timeout budget was exhausted
// before traversal completed; the caller still receives the partial
// results collected up to that point. pool may be nil, in which case DFS
// runs unpooled.
func Search(ctx context.Context, root *trie.TrieNode, pattern string, isRegexSource bool, maxResults int, cfg Config, nowMs int64, pool *ants.Pool) ([]RegexResult, *engerrors.TimeoutError, error) {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig().MaxDepth
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = DefaultConfig().TimeoutMs
	}

	re, err := preparePattern(pattern, isRegexSource, cfg)
	if err != nil {
		return nil, nil, err
	}

	w := &walkState{
		ctx:      ctx,
		re:       re,
		cfg:      cfg,
		nowMs:    nowMs,
		deadline: time.Now().Add(time.Duration(cfg.TimeoutMs) * time.Millisecond),
		visited:  make(map[string]bool),
	}

	if selectStrategy(pattern) {
		walkDFS(root, w, pool)
	} else {
		walkBFS(root, w)
	}

	sortResultsByScoreDesc(w.results)
	if maxResults > 0 && len(w.results) > maxResults {
		w.results = w.results[:maxResults]
	}

	var timeoutErr *engerrors.TimeoutError
	if w.timedOut {
		timeoutErr = &engerrors.TimeoutError{
			Pattern:   pattern,
			TimeoutMs: cfg.TimeoutMs,
			Partial:   len(w.results),
		}
	}

	return w.results, timeoutErr, nil
}

func sortResultsByScoreDesc(results []RegexResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
