/*
Package suggest caches auto-suggest results for repeated partial queries.

Editors ask for suggestions on every keystroke and users often retype the
same prefixes, so the server keeps recent answers in a HotCache keyed by the
normalized query. The cache is dropped as a whole whenever the index
changes, because adding or removing a document shifts every BM25 score.
*/
package suggest

import (
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/bastiangx/docserve/pkg/search"
)

// keySep separates the query text from the option signature in cache keys.
const keySep = "\x00"

type entry struct {
	suggestions []search.Suggestion
	accessTime  int64
}

// HotCache is an LRU cache of suggestions stored in a patricia trie, so the
// cached queries under a prefix can be listed.
type HotCache struct {
	trie        *patricia.Trie
	size        int
	accessCount int64
	hits        int
	misses      int
	maxEntries  int
	mu          sync.Mutex
}

// NewHotCache returns a cache holding at most maxEntries queries. A cache
// with maxEntries <= 0 stores nothing.
func NewHotCache(maxEntries int) *HotCache {
	return &HotCache{
		trie:       patricia.NewTrie(),
		maxEntries: maxEntries,
	}
}

// Key builds the cache key for a query under the given option signature.
// Queries are trimmed and lowercased.
func Key(query, signature string) string {
	return strings.ToLower(strings.TrimSpace(query)) + keySep + signature
}

// Get returns the cached suggestions for key.
func (hc *HotCache) Get(key string) ([]search.Suggestion, bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	item := hc.trie.Get(patricia.Prefix(key))
	if item == nil {
		hc.misses++
		return nil, false
	}
	e := item.(*entry)
	e.accessTime = hc.nextAccessTime()
	hc.hits++
	return e.suggestions, true
}

// Put stores suggestions under key, evicting the least recently used entry
// when the cache is full.
func (hc *HotCache) Put(key string, suggestions []search.Suggestion) {
	if hc.maxEntries <= 0 {
		return
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()

	e := &entry{suggestions: suggestions, accessTime: hc.nextAccessTime()}
	if hc.trie.Get(patricia.Prefix(key)) != nil {
		hc.trie.Set(patricia.Prefix(key), e)
		return
	}
	if hc.size >= hc.maxEntries {
		hc.evictLRU()
	}
	hc.trie.Insert(patricia.Prefix(key), e)
	hc.size++
}

// Purge drops every cached entry.
func (hc *HotCache) Purge() {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if hc.size > 0 {
		log.Debugf("Purging %d cached suggestion entries", hc.size)
	}
	hc.trie = patricia.NewTrie()
	hc.size = 0
}

// Queries lists the distinct cached queries starting with prefix, in
// lexicographic order.
func (hc *HotCache) Queries(prefix string) []string {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	var queries []string
	err := hc.trie.VisitSubtree(patricia.Prefix(strings.ToLower(prefix)), func(p patricia.Prefix, _ patricia.Item) error {
		query, _, _ := strings.Cut(string(p), keySep)
		queries = append(queries, query)
		return nil
	})
	if err != nil {
		log.Errorf("Error listing hot cache: %v", err)
	}
	// sibling order in the trie is insertion order for sparse nodes
	slices.Sort(queries)
	return slices.Compact(queries)
}

// Len returns the number of cached entries.
func (hc *HotCache) Len() int {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.size
}

func (hc *HotCache) Stats() map[string]int {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	return map[string]int{
		"hotCacheEntries": hc.size,
		"maxHotEntries":   hc.maxEntries,
		"hotCacheHits":    hc.hits,
		"hotCacheMisses":  hc.misses,
	}
}

func (hc *HotCache) nextAccessTime() int64 {
	hc.accessCount++
	return hc.accessCount
}

func (hc *HotCache) evictLRU() {
	var oldestKey patricia.Prefix
	var oldestTime int64 = math.MaxInt64

	hc.trie.Visit(func(p patricia.Prefix, item patricia.Item) error {
		if e := item.(*entry); e.accessTime < oldestTime {
			oldestTime = e.accessTime
			oldestKey = append(oldestKey[:0], p...)
		}
		return nil
	})

	if oldestKey != nil && hc.trie.Delete(oldestKey) {
		hc.size--
		log.Debugf("Evicted '%s' from hot cache", strings.ReplaceAll(string(oldestKey), keySep, " "))
	}
}
