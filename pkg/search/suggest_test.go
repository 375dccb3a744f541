package search

import (
	"slices"
	"testing"
)

func suggestIndex(t *testing.T) *Index {
	t.Helper()
	idx := newTestIndex(t, Options{})
	docs := []Document{
		{"id": 1, "text": "zen archery"},
		{"id": 2, "text": "zen archery"},
		{"id": 3, "text": "zen art"},
		{"id": 4, "text": "motorcycle maintenance"},
	}
	if err := idx.AddAll(docs); err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	return idx
}

func TestAutoSuggest(t *testing.T) {
	idx := suggestIndex(t)

	suggestions, err := idx.AutoSuggest("zen ar", SearchOptions{})
	if err != nil {
		t.Fatalf("AutoSuggest failed: %v", err)
	}
	var phrases []string
	for _, s := range suggestions {
		phrases = append(phrases, s.Suggestion)
	}
	if !slices.Equal(phrases, []string{"zen art", "zen archery"}) {
		t.Fatalf("suggestions = %v; want [zen art, zen archery]", phrases)
	}
	if !slices.Equal(suggestions[1].Terms, []string{"zen", "archery"}) {
		t.Errorf("terms = %v", suggestions[1].Terms)
	}

	// Each group scores the average of its documents.
	results, err := idx.SearchText("zen ar", SearchOptions{CombineWith: AND, Prefix: PrefixLast})
	if err != nil {
		t.Fatalf("SearchText failed: %v", err)
	}
	var sum float64
	var n int
	for _, r := range results {
		if slices.Equal(r.Terms, []string{"zen", "archery"}) {
			sum += r.Score
			n++
		}
	}
	if n != 2 || !approx(suggestions[1].Score, sum/2) {
		t.Errorf("group score = %v; want %v over %d docs", suggestions[1].Score, sum/float64(max(n, 1)), n)
	}
}

func TestAutoSuggestDefaults(t *testing.T) {
	idx := suggestIndex(t)

	// Prefix only applies to the last term, so "ze" does not expand.
	suggestions, err := idx.AutoSuggest("ze art", SearchOptions{})
	if err != nil {
		t.Fatalf("AutoSuggest failed: %v", err)
	}
	if len(suggestions) != 0 {
		t.Errorf("expected no suggestions, got %+v", suggestions)
	}

	suggestions, err = idx.AutoSuggest("moto", SearchOptions{})
	if err != nil {
		t.Fatalf("AutoSuggest failed: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].Suggestion != "motorcycle" {
		t.Errorf("suggestions = %+v; want [motorcycle]", suggestions)
	}

	// Per-call options override the defaults.
	suggestions, err = idx.AutoSuggest("zen moto", SearchOptions{CombineWith: OR})
	if err != nil {
		t.Fatalf("AutoSuggest failed: %v", err)
	}
	if len(suggestions) != 2 {
		t.Errorf("expected the groups zen and motorcycle with OR, got %+v", suggestions)
	}
}

func TestAutoSuggestIndexOptions(t *testing.T) {
	idx := newTestIndex(t, Options{AutoSuggestOptions: SearchOptions{Fuzzy: Fuzzy(1)}})
	if err := idx.Add(Document{"id": 1, "text": "ishmael"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	suggestions, err := idx.AutoSuggest("ismael", SearchOptions{})
	if err != nil {
		t.Fatalf("AutoSuggest failed: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].Suggestion != "ishmael" {
		t.Errorf("suggestions = %+v; want [ishmael]", suggestions)
	}
}
