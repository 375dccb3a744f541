/*
Package trie implements a compressed prefix (radix) tree mapping string keys
to arbitrary values.

Edges are maximally compressed: no two children of a node share a common
prefix, and every node except the root either stores a value or has at least
two children. Children are kept ordered by their first rune, so enumeration
yields keys in lexicographic order.

A Tree returned by AtPrefix is a view over the same storage. Mutations made
through a view are visible from the owner and from every other view, and the
other way around:

	t := trie.New[int]()
	t.Set("motor", 1)
	t.Set("motorcycle", 2)

	v, _ := t.AtPrefix("moto")
	for key, value := range v.All() {
		fmt.Println(key, value) // motor 1, motorcycle 2
	}

Keys handed to a view are full keys, prefix included.

FuzzyGet walks the tree with a single banded Levenshtein matrix and returns
every key within a maximum edit distance of the query.

A Tree is not safe for concurrent mutation.
*/
package trie

import (
	"errors"
	"iter"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrMismatchedPrefix is returned by AtPrefix when the requested prefix does
// not extend the prefix of the view it is called on.
var ErrMismatchedPrefix = errors.New("mismatched prefix")

type edge[V any] struct {
	label string
	child *node[V]
}

type node[V any] struct {
	edges []edge[V]
	value V
	leaf  bool
}

// store is shared by a tree and all of its views.
type store[V any] struct {
	root    *node[V]
	version uint64
}

// Tree is a radix tree, or a view of one restricted to a key prefix.
type Tree[V any] struct {
	s      *store[V]
	prefix string

	size        int
	sizeVersion uint64
	sizeValid   bool
}

// New returns an empty tree.
func New[V any]() *Tree[V] {
	return &Tree[V]{s: &store[V]{root: &node[V]{}}}
}

// Prefix returns the key prefix the tree is restricted to. It is empty for
// the owning tree.
func (t *Tree[V]) Prefix() string {
	return t.prefix
}

// Get returns the value stored at key.
func (t *Tree[V]) Get(key string) (V, bool) {
	var zero V
	if !strings.HasPrefix(key, t.prefix) {
		return zero, false
	}
	n := lookup(t.s.root, key)
	if n == nil || !n.leaf {
		return zero, false
	}
	return n.value, true
}

// Has reports whether a value is stored at key.
func (t *Tree[V]) Has(key string) bool {
	_, ok := t.Get(key)
	return ok
}

// Set stores value at key, replacing any previous value.
func (t *Tree[V]) Set(key string, value V) {
	n := t.createPath(key)
	n.value = value
	n.leaf = true
}

// Update replaces the value at key with fn(old, ok), where ok reports whether
// a value was present.
func (t *Tree[V]) Update(key string, fn func(old V, ok bool) V) {
	n := t.createPath(key)
	n.value = fn(n.value, n.leaf)
	n.leaf = true
}

// Fetch returns the value at key. When the key is absent, the result of
// makeDefault is stored and returned. Only one walk of the tree is made.
func (t *Tree[V]) Fetch(key string, makeDefault func() V) V {
	n := t.createPath(key)
	if !n.leaf {
		n.value = makeDefault()
		n.leaf = true
	}
	return n.value
}

// Delete removes the value at key and reports whether it was present.
func (t *Tree[V]) Delete(key string) bool {
	if !strings.HasPrefix(key, t.prefix) {
		return false
	}

	type step struct {
		parent *node[V]
		idx    int
	}
	var path []step

	n := t.s.root
	rest := key
	for rest != "" {
		i, ok := n.find(rest)
		if !ok || !strings.HasPrefix(rest, n.edges[i].label) {
			return false
		}
		path = append(path, step{parent: n, idx: i})
		rest = rest[len(n.edges[i].label):]
		n = n.edges[i].child
	}
	if !n.leaf {
		return false
	}

	var zero V
	n.value = zero
	n.leaf = false
	t.s.version++

	for len(path) > 0 {
		last := path[len(path)-1]
		e := &last.parent.edges[last.idx]
		current := e.child
		if current.leaf {
			break
		}
		if len(current.edges) == 0 {
			last.parent.removeEdge(last.idx)
			path = path[:len(path)-1]
			continue
		}
		if len(current.edges) == 1 {
			only := current.edges[0]
			e.label += only.label
			e.child = only.child
		}
		break
	}
	return true
}

// Clear removes every entry under the tree's prefix.
func (t *Tree[V]) Clear() {
	keys := make([]string, 0)
	for key := range t.Keys() {
		keys = append(keys, key)
	}
	for _, key := range keys {
		t.Delete(key)
	}
}

// AtPrefix returns a view of the entries whose keys start with prefix. The
// prefix must extend the prefix of t.
func (t *Tree[V]) AtPrefix(prefix string) (*Tree[V], error) {
	if !strings.HasPrefix(prefix, t.prefix) {
		return nil, ErrMismatchedPrefix
	}
	return &Tree[V]{s: t.s, prefix: prefix}, nil
}

// Len returns the number of entries under the tree's prefix. The count is
// cached until the next mutation of the underlying storage.
func (t *Tree[V]) Len() int {
	if t.sizeValid && t.sizeVersion == t.s.version {
		return t.size
	}
	size := 0
	for range t.All() {
		size++
	}
	t.size = size
	t.sizeVersion = t.s.version
	t.sizeValid = true
	return size
}

// All returns a sequence of the entries under the tree's prefix in
// depth-first key order. Each call returns a fresh sequence.
func (t *Tree[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		c := t.cursor()
		for {
			key, value, ok := c.next()
			if !ok || !yield(key, value) {
				return
			}
		}
	}
}

// Keys returns a sequence of the keys under the tree's prefix.
func (t *Tree[V]) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for key := range t.All() {
			if !yield(key) {
				return
			}
		}
	}
}

// Values returns a sequence of the values under the tree's prefix.
func (t *Tree[V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, value := range t.All() {
			if !yield(value) {
				return
			}
		}
	}
}

// createPath walks to the node for key, splitting edges and creating nodes
// as needed.
func (t *Tree[V]) createPath(key string) *node[V] {
	if !strings.HasPrefix(key, t.prefix) {
		panic("trie: key " + key + " is outside of view prefix " + t.prefix)
	}
	t.s.version++

	n := t.s.root
	rest := key
	for rest != "" {
		i, ok := n.find(rest)
		if !ok {
			child := &node[V]{}
			n.insertEdge(i, edge[V]{label: rest, child: child})
			return child
		}
		e := &n.edges[i]
		common := commonPrefixLen(e.label, rest)
		if common < len(e.label) {
			mid := &node[V]{edges: []edge[V]{{label: e.label[common:], child: e.child}}}
			e.label = e.label[:common]
			e.child = mid
		}
		rest = rest[common:]
		n = e.child
	}
	return n
}

// locate resolves the tree's prefix. When the prefix ends inside an edge,
// the returned remainder is the unconsumed part of that edge's label, and
// the node is the edge's child.
func (t *Tree[V]) locate() (*node[V], string) {
	n := t.s.root
	rest := t.prefix
	for rest != "" {
		i, ok := n.find(rest)
		if !ok {
			return nil, ""
		}
		label := n.edges[i].label
		if strings.HasPrefix(rest, label) {
			rest = rest[len(label):]
			n = n.edges[i].child
			continue
		}
		if strings.HasPrefix(label, rest) {
			return n.edges[i].child, label[len(rest):]
		}
		return nil, ""
	}
	return n, ""
}

func lookup[V any](n *node[V], key string) *node[V] {
	for key != "" {
		i, ok := n.find(key)
		if !ok || !strings.HasPrefix(key, n.edges[i].label) {
			return nil
		}
		key = key[len(n.edges[i].label):]
		n = n.edges[i].child
	}
	return n
}

// find returns the index of the edge starting with the first rune of s, or
// the index at which such an edge would be inserted.
func (n *node[V]) find(s string) (int, bool) {
	r := firstRune(s)
	i := sort.Search(len(n.edges), func(i int) bool {
		return firstRune(n.edges[i].label) >= r
	})
	return i, i < len(n.edges) && firstRune(n.edges[i].label) == r
}

// firstRune decodes the leading rune of s. Invalid bytes map to distinct
// negative values so that siblings never collide on utf8.RuneError.
func firstRune(s string) rune {
	r, w := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && w == 1 {
		return -rune(s[0]) - 1
	}
	return r
}

func (n *node[V]) insertEdge(i int, e edge[V]) {
	n.edges = append(n.edges, edge[V]{})
	copy(n.edges[i+1:], n.edges[i:])
	n.edges[i] = e
}

func (n *node[V]) removeEdge(i int) {
	copy(n.edges[i:], n.edges[i+1:])
	n.edges[len(n.edges)-1] = edge[V]{}
	n.edges = n.edges[:len(n.edges)-1]
}

// commonPrefixLen returns the byte length of the longest common prefix of a
// and b that ends on a rune boundary.
func commonPrefixLen(a, b string) int {
	i := 0
	for i < len(a) && i < len(b) {
		ra, wa := utf8.DecodeRuneInString(a[i:])
		rb, wb := utf8.DecodeRuneInString(b[i:])
		if ra != rb || wa != wb || a[i:i+wa] != b[i:i+wb] {
			break
		}
		i += wa
	}
	return i
}
