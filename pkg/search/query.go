package search

import (
	"sort"
	"unicode/utf8"

	"github.com/bastiangx/docserve/pkg/trie"
)

// Query is either free Text, a Combined tree of sub-queries, or Wildcard.
type Query interface {
	query()
}

// Text is a free-text query. It is tokenized and each term is resolved
// separately before the per-term results are combined.
type Text string

// Combined joins the results of its sub-queries with Options.CombineWith.
// Sub-queries inherit Options on top of the options the Combined query was
// evaluated with.
type Combined struct {
	Queries []Query
	Options SearchOptions
}

type wildcard struct{}

// Wildcard matches every document with a score of 1, scaled by
// BoostDocument when set.
var Wildcard Query = wildcard{}

func (Text) query()     {}
func (Combined) query() {}
func (wildcard) query() {}

// Result is a ranked search match.
type Result struct {
	ID    any
	Score float64

	// Terms are the index terms that matched, QueryTerms the query terms
	// they were derived from.
	Terms      []string
	QueryTerms []string

	// Match lists the fields each matched index term was found in.
	Match map[string][]string

	// Fields holds the document's stored fields.
	Fields map[string]any
}

// termSpec is one resolved query term.
type termSpec struct {
	term   string
	prefix bool
	fuzzy  float64
	boost  float64
}

// SearchText runs a free-text query.
func (idx *Index) SearchText(text string, opts SearchOptions) ([]Result, error) {
	return idx.Search(Text(text), opts)
}

// Search runs q and returns the matching documents sorted by descending
// score. Options inherit from the index SearchOptions.
func (idx *Index) Search(q Query, opts SearchOptions) ([]Result, error) {
	options := idx.opts.SearchOptions.Merge(opts)
	raw, err := idx.executeQuery(q, options)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(raw))
	ids := make([]int, 0, len(raw))
	for shortID, h := range raw {
		quality := max(len(h.terms), 1)
		result := Result{
			ID:         idx.documentIDs[shortID],
			Score:      h.score * float64(quality),
			Terms:      h.derived,
			QueryTerms: h.terms,
			Match:      h.match,
			Fields:     idx.storedFields[shortID],
		}
		if options.Filter != nil && !options.Filter(result) {
			continue
		}
		results = append(results, result)
		ids = append(ids, shortID)
	}
	sort.Sort(byScore{results: results, ids: ids})
	return results, nil
}

// byScore orders results by descending score, then by insertion order.
type byScore struct {
	results []Result
	ids     []int
}

func (s byScore) Len() int { return len(s.results) }

func (s byScore) Less(i, j int) bool {
	if s.results[i].Score != s.results[j].Score {
		return s.results[i].Score > s.results[j].Score
	}
	return s.ids[i] < s.ids[j]
}

func (s byScore) Swap(i, j int) {
	s.results[i], s.results[j] = s.results[j], s.results[i]
	s.ids[i], s.ids[j] = s.ids[j], s.ids[i]
}

func (idx *Index) executeQuery(q Query, options SearchOptions) (hits, error) {
	switch q := q.(type) {
	case Text:
		return idx.executeText(string(q), options)
	case Combined:
		options = options.Merge(q.Options)
		results := make([]hits, 0, len(q.Queries))
		for _, sub := range q.Queries {
			r, err := idx.executeQuery(sub, options)
			if err != nil {
				return nil, err
			}
			results = append(results, r)
		}
		return combine(results, options.CombineWith)
	case wildcard:
		return idx.executeWildcard(options), nil
	}
	return make(hits), nil
}

// queryTerms tokenizes and normalizes a free-text query.
func (idx *Index) queryTerms(text string, options SearchOptions) []string {
	tokenize := options.Tokenize
	if tokenize == nil {
		tokenize = idx.opts.Tokenize
	}
	process := options.ProcessTerm
	if process == nil {
		process = idx.opts.ProcessTerm
	}

	var terms []string
	for _, token := range tokenize(text, "") {
		for _, term := range process(token, "") {
			if term != "" {
				terms = append(terms, term)
			}
		}
	}
	return terms
}

func (idx *Index) executeText(text string, options SearchOptions) (hits, error) {
	terms := idx.queryTerms(text, options)
	results := make([]hits, 0, len(terms))
	for i, term := range terms {
		spec := termSpec{term: term, boost: 1}
		if options.Prefix != nil {
			spec.prefix = options.Prefix(term, i, terms)
		}
		if options.Fuzzy != nil {
			spec.fuzzy = options.Fuzzy(term, i, terms)
		}
		if options.BoostTerm != nil {
			spec.boost = options.BoostTerm(term, i, terms)
		}
		results = append(results, idx.executeTerm(spec, options))
	}
	return combine(results, options.CombineWith)
}

func (idx *Index) executeTerm(spec termSpec, options SearchOptions) hits {
	fields := options.Fields
	if fields == nil {
		fields = idx.opts.Fields
	}
	boosts := make(map[string]float64, len(fields))
	for _, field := range fields {
		boost, ok := options.Boost[field]
		if !ok {
			boost = 1
		}
		boosts[field] = boost
	}
	s := scorer{idx: idx, fields: fields, boosts: boosts, boostDocument: options.BoostDocument, termBoost: spec.boost}

	results := make(hits)
	if p, ok := idx.index.Get(spec.term); ok {
		s.collect(results, spec.term, spec.term, 1, p)
	}

	termLength := utf8.RuneCountInString(spec.term)
	var fuzzy map[string]trie.FuzzyMatch[postings]
	if d := maxDistance(spec.fuzzy, termLength, options.MaxFuzzy); d > 0 {
		fuzzy = idx.index.FuzzyGet(spec.term, d)
	}

	if spec.prefix {
		view, _ := idx.index.AtPrefix(spec.term)
		for term, p := range view.All() {
			length := utf8.RuneCountInString(term)
			distance := length - termLength
			if distance == 0 {
				continue
			}
			delete(fuzzy, term)
			weight := options.Weights.Prefix * float64(length) / (float64(length) + 0.3*float64(distance))
			s.collect(results, spec.term, term, weight, p)
		}
	}

	// Iterate fuzzy matches in key order so that term lists are stable.
	keys := make([]string, 0, len(fuzzy))
	for term := range fuzzy {
		keys = append(keys, term)
	}
	sort.Strings(keys)
	for _, term := range keys {
		m := fuzzy[term]
		if m.Distance == 0 {
			continue
		}
		length := utf8.RuneCountInString(term)
		weight := options.Weights.Fuzzy * float64(length) / float64(length+m.Distance)
		s.collect(results, spec.term, term, weight, m.Value)
	}
	return results
}

// scorer turns the postings of one derived term into weighted BM25 scores.
type scorer struct {
	idx           *Index
	fields        []string
	boosts        map[string]float64
	boostDocument func(id any, term string, stored map[string]any) float64
	termBoost     float64
}

func (s scorer) collect(results hits, source, derived string, weight float64, p postings) {
	idx := s.idx
	for _, field := range s.fields {
		fieldID, ok := idx.fieldIDs[field]
		if !ok || s.boosts[field] == 0 {
			continue
		}
		docs := p[fieldID]
		if len(docs) == 0 {
			continue
		}
		var avg float64
		if fieldID < len(idx.avgFieldLength) {
			avg = idx.avgFieldLength[fieldID]
		}

		// Postings left behind by a removal that failed to match what was
		// indexed point at documents that no longer exist.
		matching := 0
		for shortID := range docs {
			if _, ok := idx.documentIDs[shortID]; ok {
				matching++
			}
		}

		for shortID, freq := range docs {
			if _, ok := idx.documentIDs[shortID]; !ok {
				continue
			}
			docBoost := 1.0
			if s.boostDocument != nil {
				docBoost = s.boostDocument(idx.documentIDs[shortID], derived, idx.storedFields[shortID])
				if docBoost == 0 {
					continue
				}
			}
			var fieldLength int
			if lengths := idx.fieldLength[shortID]; fieldID < len(lengths) {
				fieldLength = lengths[fieldID]
			}
			raw := BM25(freq, matching, idx.documentCount, fieldLength, avg)
			score := weight * s.termBoost * s.boosts[field] * docBoost * raw

			h, ok := results[shortID]
			if !ok {
				h = &hit{match: make(map[string][]string)}
				results[shortID] = h
			}
			h.record(score, source, derived, field)
		}
	}
}

func (idx *Index) executeWildcard(options SearchOptions) hits {
	results := make(hits, len(idx.documentIDs))
	for shortID, id := range idx.documentIDs {
		score := 1.0
		if options.BoostDocument != nil {
			score = options.BoostDocument(id, "", idx.storedFields[shortID])
			if score == 0 {
				continue
			}
		}
		results[shortID] = &hit{score: score, match: make(map[string][]string)}
	}
	return results
}
