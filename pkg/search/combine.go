package search

import (
	"fmt"
	"slices"
	"strings"
)

// hit accumulates the matches of one document while a query is resolved.
type hit struct {
	score float64
	// terms are the query terms that matched, in first-seen order.
	terms []string
	// derived are the index terms that matched, in first-seen order, and
	// match lists the fields each of them matched in.
	derived []string
	match   map[string][]string
}

// hits maps short document ids to their accumulated matches.
type hits map[int]*hit

func (h *hit) clone() *hit {
	c := &hit{
		score:   h.score,
		terms:   slices.Clone(h.terms),
		derived: slices.Clone(h.derived),
		match:   make(map[string][]string, len(h.match)),
	}
	for term, fields := range h.match {
		c.match[term] = slices.Clone(fields)
	}
	return c
}

// record adds a weighted score for a derived term matched in field.
func (h *hit) record(score float64, source, derived, field string) {
	h.score += score
	h.terms = appendUnique(h.terms, source)
	fields, ok := h.match[derived]
	if !ok {
		h.derived = append(h.derived, derived)
	}
	h.match[derived] = appendUnique(fields, field)
}

// merge folds other into h.
func (h *hit) merge(other *hit) {
	h.score += other.score
	for _, t := range other.terms {
		h.terms = appendUnique(h.terms, t)
	}
	for _, d := range other.derived {
		fields, ok := h.match[d]
		if !ok {
			h.derived = append(h.derived, d)
		}
		for _, f := range other.match[d] {
			fields = appendUnique(fields, f)
		}
		h.match[d] = fields
	}
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

func (h hits) clone() hits {
	c := make(hits, len(h))
	for id, v := range h {
		c[id] = v.clone()
	}
	return c
}

// or returns the union of a and b. Scores of documents present in both are
// summed and their terms merged.
func or(a, b hits) hits {
	out := a.clone()
	for id, hb := range b {
		if ha, ok := out[id]; ok {
			ha.merge(hb)
		} else {
			out[id] = hb.clone()
		}
	}
	return out
}

// and returns the documents present in both a and b, merged as in or.
func and(a, b hits) hits {
	out := make(hits)
	for id, hb := range b {
		ha, ok := a[id]
		if !ok {
			continue
		}
		c := ha.clone()
		c.merge(hb)
		out[id] = c
	}
	return out
}

// andNot returns the documents of a that are absent from b, unchanged.
func andNot(a, b hits) hits {
	out := make(hits, len(a))
	for id, ha := range a {
		if _, ok := b[id]; !ok {
			out[id] = ha.clone()
		}
	}
	return out
}

func combinator(op string) (func(a, b hits) hits, error) {
	switch strings.ToUpper(op) {
	case OR:
		return or, nil
	case AND:
		return and, nil
	case AndNot:
		return andNot, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidCombinator, op)
}

// combine folds results left to right with the given operator.
func combine(results []hits, op string) (hits, error) {
	fn, err := combinator(op)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return make(hits), nil
	}
	acc := results[0]
	for _, next := range results[1:] {
		acc = fn(acc, next)
	}
	return acc, nil
}
