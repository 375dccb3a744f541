package trie

// frame is one level of a depth-first walk: a node, the full key leading to
// it, and the index of the next edge to descend into. next == -1 means the
// node's own value has not been visited yet.
type frame[V any] struct {
	n    *node[V]
	path string
	next int
}

// cursor walks a tree depth-first using an explicit stack. It holds no state
// beyond that stack, so abandoning it early is safe.
type cursor[V any] struct {
	stack []frame[V]
}

func (t *Tree[V]) cursor() *cursor[V] {
	c := &cursor[V]{}
	n, rest := t.locate()
	if n != nil {
		c.stack = append(c.stack, frame[V]{n: n, path: t.prefix + rest, next: -1})
	}
	return c
}

// next returns the next entry, or ok == false once the walk is exhausted.
func (c *cursor[V]) next() (key string, value V, ok bool) {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		if top.next == -1 {
			top.next = 0
			if top.n.leaf {
				return top.path, top.n.value, true
			}
			continue
		}
		if top.next >= len(top.n.edges) {
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}
		e := top.n.edges[top.next]
		top.next++
		c.stack = append(c.stack, frame[V]{n: e.child, path: top.path + e.label, next: -1})
	}
	var zero V
	return "", zero, false
}
