/*
Package search implements an in-memory full-text search index.

Documents are split into terms which are stored in a radix tree together with
their per-field postings. Queries resolve each term by exact, prefix and
fuzzy lookup, score matches with BM25 and combine per-term results with OR,
AND or AND_NOT:

	idx, _ := search.New(search.Options{Fields: []string{"title", "text"}})
	idx.Add(search.Document{"id": 1, "title": "Moby Dick", "text": "Call me Ishmael"})

	results, _ := idx.SearchText("ishmael", search.SearchOptions{Fuzzy: search.FuzzyDefault})

An Index is not safe for concurrent use. Callers serialize access.
*/
package search

import (
	"fmt"
	"math"
	"reflect"
	"runtime"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/docserve/pkg/trie"
)

// postings maps a field id to the term frequency in each document (by short
// id) containing the term in that field.
type postings map[int]map[int]int

// Index is a searchable collection of documents.
type Index struct {
	opts Options

	index    *trie.Tree[postings]
	fieldIDs map[string]int

	documentCount int
	nextID        int
	documentIDs   map[int]any
	idToShortID   map[any]int

	fieldLength    map[int][]int
	avgFieldLength []float64
	storedFields   map[int]map[string]any
}

// New returns an empty index. It fails with ErrConfig when no fields are
// configured.
func New(opts Options) (*Index, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	idx := &Index{opts: opts, fieldIDs: make(map[string]int, len(opts.Fields))}
	for i, field := range opts.Fields {
		idx.fieldIDs[field] = i
	}
	idx.reset()
	return idx, nil
}

func (idx *Index) reset() {
	idx.index = trie.New[postings]()
	idx.documentCount = 0
	idx.nextID = 0
	idx.documentIDs = make(map[int]any)
	idx.idToShortID = make(map[any]int)
	idx.fieldLength = make(map[int][]int)
	idx.avgFieldLength = make([]float64, len(idx.fieldIDs))
	idx.storedFields = make(map[int]map[string]any)
}

// Add indexes a document. The index is left unchanged on error.
func (idx *Index) Add(doc Document) error {
	id, err := idx.documentID(doc)
	if err != nil {
		return err
	}
	if _, ok := idx.idToShortID[id]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateID, id)
	}

	shortID := idx.addDocumentID(id)
	idx.saveStoredFields(shortID, doc)

	for _, field := range idx.opts.Fields {
		tokens, ok := idx.fieldTokens(doc, field)
		if !ok {
			continue
		}
		fieldID := idx.fieldIDs[field]
		idx.addFieldLength(shortID, fieldID, idx.documentCount-1, uniqueCount(tokens))

		for _, token := range tokens {
			for _, term := range idx.opts.ProcessTerm(token, field) {
				if term != "" {
					idx.addTerm(fieldID, shortID, term)
				}
			}
		}
	}
	return nil
}

// AddAll indexes documents in order and stops at the first error. Documents
// added before the failure stay indexed.
func (idx *Index) AddAll(docs []Document) error {
	for _, doc := range docs {
		if err := idx.Add(doc); err != nil {
			return err
		}
	}
	return nil
}

// DefaultChunkSize is the batch size used by AddAllChunked when none is given.
const DefaultChunkSize = 10

// AddAllChunked indexes documents in chunks of chunkSize, calling yield
// between chunks so long imports do not monopolize the caller's goroutine.
// A nil yield defaults to runtime.Gosched. Chunks added before a failure
// stay indexed.
func (idx *Index) AddAllChunked(docs []Document, chunkSize int, yield func()) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if yield == nil {
		yield = runtime.Gosched
	}
	for start := 0; start < len(docs); start += chunkSize {
		if start > 0 {
			yield()
		}
		end := min(start+chunkSize, len(docs))
		if err := idx.AddAll(docs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Remove removes a previously added document. The document must tokenize to
// the same terms it was indexed with. Terms that cannot be found are
// reported through the logger with CodeVersionConflict and skipped.
func (idx *Index) Remove(doc Document) error {
	id, err := idx.documentID(doc)
	if err != nil {
		return err
	}
	shortID, ok := idx.idToShortID[id]
	if !ok {
		return fmt.Errorf("cannot remove document with id %v: %w", id, ErrUnknownDocument)
	}

	for _, field := range idx.opts.Fields {
		tokens, ok := idx.fieldTokens(doc, field)
		if !ok {
			continue
		}
		fieldID := idx.fieldIDs[field]
		idx.removeFieldLength(fieldID, idx.documentCount, uniqueCount(tokens))

		for _, token := range tokens {
			for _, term := range idx.opts.ProcessTerm(token, field) {
				if term != "" {
					idx.removeTerm(fieldID, shortID, term)
				}
			}
		}
	}

	delete(idx.storedFields, shortID)
	delete(idx.documentIDs, shortID)
	delete(idx.idToShortID, id)
	delete(idx.fieldLength, shortID)
	idx.documentCount--
	return nil
}

// RemoveAll removes the given documents, stopping at the first error. Called
// without arguments it resets the index to its empty state.
func (idx *Index) RemoveAll(docs ...Document) error {
	if len(docs) == 0 {
		idx.reset()
		return nil
	}
	for _, doc := range docs {
		if err := idx.Remove(doc); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether a document with the given id is indexed.
func (idx *Index) Has(id any) bool {
	if !hashable(id) {
		return false
	}
	_, ok := idx.idToShortID[normalizeID(id)]
	return ok
}

// StoredFields returns the stored fields of the document with the given id.
func (idx *Index) StoredFields(id any) (map[string]any, bool) {
	if !hashable(id) {
		return nil, false
	}
	shortID, ok := idx.idToShortID[normalizeID(id)]
	if !ok {
		return nil, false
	}
	return idx.storedFields[shortID], true
}

// DocumentCount returns the number of indexed documents.
func (idx *Index) DocumentCount() int {
	return idx.documentCount
}

// TermCount returns the number of distinct terms in the index.
func (idx *Index) TermCount() int {
	return idx.index.Len()
}

// Fields returns the indexed field names.
func (idx *Index) Fields() []string {
	return idx.opts.Fields
}

func (idx *Index) documentID(doc Document) (any, error) {
	id, ok := idx.opts.ExtractField(doc, idx.opts.IDField)
	if !ok || id == nil {
		return nil, fmt.Errorf("%w: missing field %q", ErrMissingID, idx.opts.IDField)
	}
	if !hashable(id) {
		return nil, fmt.Errorf("%w: id of type %T cannot be used as a key", ErrMissingID, id)
	}
	return normalizeID(id), nil
}

func hashable(v any) bool {
	return v != nil && reflect.TypeOf(v).Comparable()
}

// normalizeID maps integral ids of any numeric type to int, so an id decoded
// from JSON (float64) or msgpack (sized integers) keys the same document as
// the id it was added with.
func normalizeID(id any) any {
	switch n := id.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		if int64(int(n)) == n {
			return int(n)
		}
	case uint:
		return normalizeUint(uint64(n), id)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return normalizeUint(uint64(n), id)
	case uint64:
		return normalizeUint(n, id)
	case float32:
		return normalizeFloat(float64(n), id)
	case float64:
		return normalizeFloat(n, id)
	}
	return id
}

func normalizeUint(u uint64, id any) any {
	if u > math.MaxInt64 {
		return id
	}
	return normalizeID(int64(u))
}

func normalizeFloat(f float64, id any) any {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return id
	}
	return normalizeID(int64(f))
}

func (idx *Index) fieldTokens(doc Document, field string) ([]string, bool) {
	value, ok := idx.opts.ExtractField(doc, field)
	if !ok || value == nil {
		return nil, false
	}
	return idx.opts.Tokenize(stringify(value), field), true
}

func stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func uniqueCount(tokens []string) int {
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[t] = struct{}{}
	}
	return len(seen)
}

func (idx *Index) addDocumentID(id any) int {
	shortID := idx.nextID
	idx.idToShortID[id] = shortID
	idx.documentIDs[shortID] = id
	idx.documentCount++
	idx.nextID++
	return shortID
}

func (idx *Index) saveStoredFields(shortID int, doc Document) {
	if len(idx.opts.StoreFields) == 0 {
		return
	}
	stored := idx.storedFields[shortID]
	if stored == nil {
		stored = make(map[string]any, len(idx.opts.StoreFields))
		idx.storedFields[shortID] = stored
	}
	for _, field := range idx.opts.StoreFields {
		if value, ok := idx.opts.ExtractField(doc, field); ok {
			stored[field] = value
		}
	}
}

// addFieldLength records the field length of a document and folds it into
// the running average, count being the number of documents before this one.
func (idx *Index) addFieldLength(shortID, fieldID, count, length int) {
	lengths := idx.fieldLength[shortID]
	if lengths == nil {
		lengths = make([]int, len(idx.fieldIDs))
		idx.fieldLength[shortID] = lengths
	}
	lengths[fieldID] = length

	total := idx.avgFieldLength[fieldID]*float64(count) + float64(length)
	idx.avgFieldLength[fieldID] = total / float64(count+1)
}

// removeFieldLength reverses addFieldLength, count being the number of
// documents before the removal.
func (idx *Index) removeFieldLength(fieldID, count, length int) {
	if count <= 1 {
		idx.avgFieldLength[fieldID] = 0
		return
	}
	total := idx.avgFieldLength[fieldID]*float64(count) - float64(length)
	idx.avgFieldLength[fieldID] = total / float64(count-1)
}

func newPostings() postings {
	return make(postings)
}

func (idx *Index) addTerm(fieldID, shortID int, term string) {
	p := idx.index.Fetch(term, newPostings)
	docs := p[fieldID]
	if docs == nil {
		docs = make(map[int]int)
		p[fieldID] = docs
	}
	docs[shortID]++
}

func (idx *Index) removeTerm(fieldID, shortID int, term string) {
	p, ok := idx.index.Get(term)
	if !ok || p[fieldID][shortID] == 0 {
		idx.warnDocumentChanged(shortID, fieldID, term)
		return
	}

	docs := p[fieldID]
	if docs[shortID] <= 1 {
		delete(docs, shortID)
		if len(docs) == 0 {
			delete(p, fieldID)
		}
	} else {
		docs[shortID]--
	}

	if len(p) == 0 {
		idx.index.Delete(term)
	}
}

func (idx *Index) warnDocumentChanged(shortID, fieldID int, term string) {
	for field, id := range idx.fieldIDs {
		if id != fieldID {
			continue
		}
		idx.opts.Logger(log.WarnLevel, fmt.Sprintf(
			"document with id %v has changed before removal: term %q was not present in field %q; removing a document after it has changed can corrupt the index",
			idx.documentIDs[shortID], term, field), CodeVersionConflict)
		return
	}
}
