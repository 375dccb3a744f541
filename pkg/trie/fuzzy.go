package trie

import "unicode/utf8"

// FuzzyMatch is an entry found by FuzzyGet together with its edit distance
// to the query.
type FuzzyMatch[V any] struct {
	Value    V
	Distance int
}

// FuzzyGet returns every entry under the tree's prefix whose key is within
// maxDistance edits (insertions, deletions, substitutions of runes) of query.
//
// A single Levenshtein matrix is allocated per call and shared by the whole
// walk. Each edge extends it by one row per rune, restricted to the band of
// columns that can still lead to a distance <= maxDistance, and subtrees are
// abandoned as soon as a row's minimum exceeds maxDistance.
func (t *Tree[V]) FuzzyGet(query string, maxDistance int) map[string]FuzzyMatch[V] {
	results := make(map[string]FuzzyMatch[V])
	if maxDistance < 0 {
		return results
	}
	n, rest := t.locate()
	if n == nil {
		return results
	}

	w := newFuzzyWalk(query, maxDistance, results)
	lead := t.prefix + rest
	var buf runeBuf
	row, ok := w.feed(lead, 1, &buf)
	if !ok {
		return results
	}
	w.recurse(n, row, buf, lead)
	return results
}

type fuzzyWalk[V any] struct {
	query   []rune
	max     int
	width   int
	rows    int
	matrix  []int
	results map[string]FuzzyMatch[V]
}

func newFuzzyWalk[V any](query string, maxDistance int, results map[string]FuzzyMatch[V]) *fuzzyWalk[V] {
	q := []rune(query)
	width := len(q) + 1
	// Row len(q)+maxDistance+1 always has a minimum above maxDistance, so no
	// walk ever needs more rows than this.
	rows := len(q) + maxDistance + 2

	matrix := make([]int, rows*width)
	for i := range matrix {
		matrix[i] = maxDistance + 1
	}
	for j := 0; j < width; j++ {
		matrix[j] = j
	}
	for i := 1; i < rows; i++ {
		matrix[i*width] = i
	}

	return &fuzzyWalk[V]{
		query:   q,
		max:     maxDistance,
		width:   width,
		rows:    rows,
		matrix:  matrix,
		results: results,
	}
}

func (w *fuzzyWalk[V]) recurse(n *node[V], row int, buf runeBuf, key string) {
	if n.leaf {
		r, ok := row, true
		if buf.n > 0 {
			tail := buf
			r, ok = w.flush(r, &tail)
		}
		if ok {
			distance := w.matrix[(r-1)*w.width+w.width-1]
			if distance <= w.max {
				w.results[key] = FuzzyMatch[V]{Value: n.value, Distance: distance}
			}
		}
	}

	for _, e := range n.edges {
		b := buf
		next, ok := w.feed(e.label, row, &b)
		if !ok {
			continue
		}
		w.recurse(e.child, next, b, key+e.label)
	}
}

// feed extends the matrix with the runes of label starting at row. Bytes of
// a rune that continues into the next edge are left in buf. It returns the
// next free row and false when the walk can be pruned.
func (w *fuzzyWalk[V]) feed(label string, row int, buf *runeBuf) (int, bool) {
	for i := 0; i < len(label); i++ {
		buf.push(label[i])
		for buf.full() {
			if w.row(row, buf.pop()) > w.max {
				return row, false
			}
			row++
		}
	}
	return row, true
}

// flush consumes an incomplete trailing sequence as invalid runes.
func (w *fuzzyWalk[V]) flush(row int, buf *runeBuf) (int, bool) {
	for buf.n > 0 {
		buf.shift(1)
		if w.row(row, utf8.RuneError) > w.max {
			return row, false
		}
		row++
	}
	return row, true
}

// row computes row i of the matrix for key rune r and returns its minimum.
func (w *fuzzyWalk[V]) row(i int, r rune) int {
	if i >= w.rows {
		return w.max + 1
	}
	cur := i * w.width
	prev := cur - w.width
	best := w.matrix[cur]

	jmin := max(0, i-w.max-1)
	jmax := min(w.width-1, i+w.max)
	for j := jmin; j < jmax; j++ {
		cost := 1
		if r == w.query[j] {
			cost = 0
		}
		d := min(
			w.matrix[prev+j]+cost,
			w.matrix[prev+j+1]+1,
			w.matrix[cur+j]+1,
		)
		w.matrix[cur+j+1] = d
		if d < best {
			best = d
		}
	}
	return best
}

// runeBuf accumulates the bytes of a rune split across edge labels.
type runeBuf struct {
	b [utf8.UTFMax]byte
	n int
}

func (b *runeBuf) push(c byte) {
	b.b[b.n] = c
	b.n++
}

func (b *runeBuf) full() bool {
	return b.n > 0 && utf8.FullRune(b.b[:b.n])
}

func (b *runeBuf) pop() rune {
	r, size := utf8.DecodeRune(b.b[:b.n])
	b.shift(size)
	return r
}

func (b *runeBuf) shift(k int) {
	copy(b.b[:], b.b[k:b.n])
	b.n -= k
}

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j-1]+cost, prev[j]+1, cur[j-1]+1)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
