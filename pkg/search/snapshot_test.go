package search

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func snapshotOptions() Options {
	return Options{Fields: []string{"title", "text"}, StoreFields: []string{"title"}}
}

func populatedIndex(t *testing.T) *Index {
	t.Helper()
	idx := newTestIndex(t, snapshotOptions())
	docs := []Document{
		{"id": "moby", "title": "Moby Dick", "text": "Call me Ishmael. Some years ago, never mind how long precisely"},
		{"id": "zen", "title": "Zen and the Art of Motorcycle Maintenance", "text": "Zen and motorcycle maintenance"},
		{"id": "archery", "title": "Zen in the Art of Archery", "text": "Zen and archery, the art of art"},
		{"id": "gone", "title": "Removed", "text": "this one is removed again"},
	}
	if err := idx.AddAll(docs); err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	if err := idx.Remove(docs[3]); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	return idx
}

var roundTripQueries = []struct {
	q    Query
	opts SearchOptions
}{
	{Text("zen"), SearchOptions{}},
	{Text("art"), SearchOptions{Prefix: PrefixAll}},
	{Text("ismael"), SearchOptions{Fuzzy: FuzzyDefault}},
	{Text("zen art"), SearchOptions{CombineWith: AND}},
	{Text("motorcycle archery"), SearchOptions{Boost: map[string]float64{"title": 2}}},
	{Wildcard, SearchOptions{}},
}

func assertSameResults(t *testing.T, want, got *Index) {
	t.Helper()
	if want.DocumentCount() != got.DocumentCount() || want.TermCount() != got.TermCount() {
		t.Fatalf("counts differ: %d/%d docs, %d/%d terms",
			want.DocumentCount(), got.DocumentCount(), want.TermCount(), got.TermCount())
	}
	for _, tt := range roundTripQueries {
		a := mustSearch(t, want, tt.q, tt.opts)
		b := mustSearch(t, got, tt.q, tt.opts)
		if !slices.Equal(ids(a), ids(b)) {
			t.Errorf("%v: ids %v after load; want %v", tt.q, ids(b), ids(a))
			continue
		}
		for i := range a {
			if !approx(b[i].Score, a[i].Score) {
				t.Errorf("%v: score of %v = %v after load; want %v", tt.q, a[i].ID, b[i].Score, a[i].Score)
			}
			if !slices.Equal(a[i].Terms, b[i].Terms) {
				t.Errorf("%v: terms of %v = %v after load; want %v", tt.q, a[i].ID, b[i].Terms, a[i].Terms)
			}
			if a[i].Fields["title"] != b[i].Fields["title"] {
				t.Errorf("%v: stored title of %v differs", tt.q, a[i].ID)
			}
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	idx := populatedIndex(t)
	data, err := json.Marshal(idx)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	loaded, err := LoadJSON(data, snapshotOptions())
	if err != nil {
		t.Fatalf("LoadJSON failed: %v", err)
	}
	assertSameResults(t, idx, loaded)

	// The loaded index keeps working.
	if err := loaded.Remove(Document{"id": "zen", "title": "Zen and the Art of Motorcycle Maintenance", "text": "Zen and motorcycle maintenance"}); err != nil {
		t.Fatalf("Remove on loaded index failed: %v", err)
	}
	if err := loaded.Add(Document{"id": "new", "text": "fresh"}); err != nil {
		t.Fatalf("Add on loaded index failed: %v", err)
	}
	if loaded.nextID != idx.nextID+1 {
		t.Errorf("nextID = %d; want %d", loaded.nextID, idx.nextID+1)
	}
}

func TestMsgpackRoundTrip(t *testing.T) {
	idx := populatedIndex(t)
	data, err := msgpack.Marshal(idx.Snapshot())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	loaded, err := Load(&snap, snapshotOptions())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertSameResults(t, idx, loaded)
}

func TestSnapshotShape(t *testing.T) {
	idx := newTestIndex(t, Options{})
	if err := idx.Add(Document{"id": "a", "text": "zen zen"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	data, err := json.Marshal(idx)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if raw["serializationVersion"] != float64(SerializationVersion) {
		t.Errorf("serializationVersion = %v", raw["serializationVersion"])
	}
	index, _ := raw["index"].([]any)
	if len(index) != 1 {
		t.Fatalf("index = %v", raw["index"])
	}
	entry, _ := index[0].([]any)
	if len(entry) != 2 || entry[0] != "zen" {
		t.Fatalf("entry = %v", index[0])
	}
	postings, _ := entry[1].(map[string]any)
	field, _ := postings["0"].(map[string]any)
	if field["0"] != float64(2) {
		t.Errorf("postings = %v; want {0: {0: 2}}", entry[1])
	}
}

func TestLoadVersion1(t *testing.T) {
	data := []byte(`{
		"serializationVersion": 1,
		"documentCount": 2,
		"nextId": 2,
		"documentIds": {"0": "a", "1": "b"},
		"fieldIds": {"text": 0},
		"fieldLength": {"0": [2], "1": [3]},
		"averageFieldLength": [2.5],
		"storedFields": {},
		"index": [
			["archery", {"0": {"df": 1, "ds": {"1": 1}}}],
			["zen", {"0": {"df": 2, "ds": {"0": 1, "1": 1}}}]
		]
	}`)
	idx, err := LoadJSON(data, Options{Fields: []string{"text"}})
	if err != nil {
		t.Fatalf("LoadJSON failed: %v", err)
	}
	results := mustSearch(t, idx, Text("zen"), SearchOptions{})
	if got := ids(results); !slices.Equal(got, []any{"a", "b"}) {
		t.Errorf("ids = %v; want [a b]", got)
	}
	if !idx.Has("b") || idx.TermCount() != 2 {
		t.Errorf("unexpected loaded state: has b %v, %d terms", idx.Has("b"), idx.TermCount())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"unsupported version", `{"serializationVersion": 3}`, ErrUnsupportedVersion},
		{"missing version", `{}`, ErrConfig},
		{"bad entry", `{"serializationVersion": 2, "index": [["zen"]]}`, ErrConfig},
		{"bad frequency", `{"serializationVersion": 2, "index": [["zen", {"0": {"0": "x"}}]]}`, ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadJSON([]byte(tt.data), Options{Fields: []string{"text"}})
			if !errors.Is(err, tt.want) {
				t.Errorf("LoadJSON returned %v; want %v", err, tt.want)
			}
		})
	}

	if _, err := LoadJSON([]byte(`{"serializationVersion": 2}`), Options{}); !errors.Is(err, ErrConfig) {
		t.Errorf("loading without fields returned %v; want ErrConfig", err)
	}
}

func TestRoundTripIntegerIDs(t *testing.T) {
	opts := Options{Fields: []string{"text"}}
	load := map[string]func(t *testing.T, idx *Index) *Index{
		"json": func(t *testing.T, idx *Index) *Index {
			data, err := json.Marshal(idx)
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			loaded, err := LoadJSON(data, opts)
			if err != nil {
				t.Fatalf("LoadJSON failed: %v", err)
			}
			return loaded
		},
		"msgpack": func(t *testing.T, idx *Index) *Index {
			data, err := msgpack.Marshal(idx.Snapshot())
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			var snap Snapshot
			if err := msgpack.Unmarshal(data, &snap); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			loaded, err := Load(&snap, opts)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			return loaded
		},
	}

	for name, fn := range load {
		t.Run(name, func(t *testing.T) {
			loaded := fn(t, scenarioIndex(t, opts))
			docs := scenarioDocs()

			if !loaded.Has(1) {
				t.Fatal("Has(1) = false after load")
			}
			if got := ids(mustSearch(t, loaded, Text("zen"), SearchOptions{})); !slices.Equal(got, []any{3, 2}) {
				t.Errorf("ids = %v; want [3 2]", got)
			}
			if err := loaded.Add(docs[1]); !errors.Is(err, ErrDuplicateID) {
				t.Errorf("re-adding id 2 returned %v; want ErrDuplicateID", err)
			}
			if err := loaded.Remove(docs[0]); err != nil {
				t.Fatalf("Remove(id 1) failed: %v", err)
			}
			if loaded.Has(1) || loaded.DocumentCount() != 2 {
				t.Errorf("document 1 still indexed, count %d", loaded.DocumentCount())
			}
		})
	}
}

func TestSnapshotCopiesStoredFields(t *testing.T) {
	idx := populatedIndex(t)
	snap := idx.Snapshot()
	for _, stored := range snap.StoredFields {
		stored["title"] = "changed"
	}
	if stored, _ := idx.StoredFields("zen"); stored["title"] == "changed" {
		t.Error("editing the snapshot changed the index")
	}

	loaded, err := Load(snap, snapshotOptions())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, stored := range snap.StoredFields {
		stored["title"] = "edited again"
	}
	if stored, _ := loaded.StoredFields("zen"); stored["title"] != "changed" {
		t.Errorf("loaded title = %v; want changed", stored["title"])
	}
}
