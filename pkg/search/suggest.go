package search

import (
	"sort"
	"strings"
)

// Suggestion is a completion of a partial query.
type Suggestion struct {
	Suggestion string
	Terms      []string
	Score      float64
}

// AutoSuggest completes a partial query. By default every term must match
// and only the last term is matched as a prefix. Results are grouped by the
// index terms they matched; each group's score is the average of its
// members' scores.
func (idx *Index) AutoSuggest(text string, opts SearchOptions) ([]Suggestion, error) {
	options := idx.opts.AutoSuggestOptions.Merge(opts)
	results, err := idx.SearchText(text, options)
	if err != nil {
		return nil, err
	}

	type group struct {
		terms []string
		score float64
		count int
	}
	groups := make(map[string]*group)
	var phrases []string
	for _, r := range results {
		phrase := strings.Join(r.Terms, " ")
		g, ok := groups[phrase]
		if !ok {
			g = &group{terms: r.Terms}
			groups[phrase] = g
			phrases = append(phrases, phrase)
		}
		g.score += r.Score
		g.count++
	}

	suggestions := make([]Suggestion, 0, len(phrases))
	for _, phrase := range phrases {
		g := groups[phrase]
		suggestions = append(suggestions, Suggestion{
			Suggestion: phrase,
			Terms:      g.terms,
			Score:      g.score / float64(g.count),
		})
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	return suggestions, nil
}
