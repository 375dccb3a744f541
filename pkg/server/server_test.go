package server

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/docserve/pkg/config"
	"github.com/bastiangx/docserve/pkg/corpus"
	"github.com/bastiangx/docserve/pkg/search"
)

var testDocs = []map[string]any{
	{"id": "moby", "title": "Moby Dick", "text": "Call me Ishmael. Some years ago"},
	{"id": "zen", "title": "Zen and the Art of Motorcycle Maintenance", "text": "zen motorcycle"},
	{"id": "archery", "title": "Zen in the Art of Archery", "text": "zen archery art"},
}

func newTestServer(t *testing.T, in io.Reader, out io.Writer) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.MaxLimit = 2
	opts, err := cfg.IndexOptions()
	if err != nil {
		t.Fatalf("IndexOptions failed: %v", err)
	}
	idx, err := search.New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return NewServerWithIO(idx, cfg, NewMetrics(), "", in, out)
}

func mustStatus(t *testing.T, resp any) StatusResponse {
	t.Helper()
	status, ok := resp.(StatusResponse)
	if !ok {
		t.Fatalf("expected a StatusResponse, got %#v", resp)
	}
	return status
}

func addDocs(t *testing.T, s *Server, docs ...map[string]any) {
	t.Helper()
	status := mustStatus(t, s.Handle(Request{ID: "add", Op: OpAdd, Docs: docs}))
	if status.Status != "ok" {
		t.Fatalf("add status = %q", status.Status)
	}
}

func TestServerStream(t *testing.T) {
	var in bytes.Buffer
	enc := msgpack.NewEncoder(&in)
	requests := []any{
		Request{ID: "1", Op: OpAdd, Docs: testDocs},
		Request{ID: "2", Op: OpSearch, Query: "ismael", Fuzzy: 0.2},
		"not a request",
		Request{ID: "3", Op: OpSuggest, Query: "zen ar"},
		Request{ID: "4", Op: OpHealth},
	}
	for _, r := range requests {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}

	var out bytes.Buffer
	s := newTestServer(t, &in, &out)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	dec := msgpack.NewDecoder(&out)
	dec.UseLooseInterfaceDecoding(true)
	var responses []map[string]any
	for {
		var resp map[string]any
		if err := dec.Decode(&resp); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("decoding response: %v", err)
		}
		responses = append(responses, resp)
	}
	if len(responses) != len(requests)+1 {
		t.Fatalf("got %d responses; want %d", len(responses), len(requests)+1)
	}

	if responses[0]["status"] != "ready" {
		t.Errorf("first message = %v; want ready", responses[0])
	}
	if responses[1]["status"] != "ok" || responses[1]["docs"] != int64(3) {
		t.Errorf("add response = %v", responses[1])
	}

	results, _ := responses[2]["r"].([]any)
	if responses[2]["id"] != "2" || len(results) != 1 {
		t.Fatalf("search response = %v", responses[2])
	}
	first, _ := results[0].(map[string]any)
	fields, _ := first["f"].(map[string]any)
	if first["id"] != "moby" || fields["title"] != "Moby Dick" {
		t.Errorf("search result = %v", first)
	}

	if responses[3]["c"] != int64(CodeBadRequest) || responses[3]["e"] == "" {
		t.Errorf("malformed request response = %v", responses[3])
	}

	suggestions, _ := responses[4]["s"].([]any)
	if len(suggestions) != 2 {
		t.Errorf("suggest response = %v", responses[4])
	}
	if responses[5]["id"] != "4" || responses[5]["status"] != "ok" {
		t.Errorf("health response = %v", responses[5])
	}
}

func TestHandleSearch(t *testing.T) {
	s := newTestServer(t, nil, io.Discard)
	addDocs(t, s, testDocs...)

	tests := []struct {
		name string
		req  Request
		want []any
	}{
		{"exact", Request{Query: "motorcycle"}, []any{"zen"}},
		{"prefix", Request{Query: "arch", Prefix: true}, []any{"archery"}},
		{"and", Request{Query: "zen art", Combine: "and", Fields: []string{"text"}}, []any{"archery"}},
		{"limit capped", Request{Query: "zen art", Limit: 50}, []any{"archery", "zen"}},
		{"limit", Request{Query: "zen", Limit: 1}, []any{"zen"}},
		{"wildcard", Request{Query: "*"}, []any{"moby", "zen"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.ID, tt.req.Op = tt.name, OpSearch
			resp, ok := s.Handle(tt.req).(SearchResponse)
			if !ok {
				t.Fatalf("expected a SearchResponse, got %#v", s.Handle(tt.req))
			}
			var got []any
			for _, r := range resp.Results {
				got = append(got, r.ID)
			}
			if len(got) != len(tt.want) || resp.Count != len(tt.want) {
				t.Fatalf("ids = %v; want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ids = %v; want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestSuggestCache(t *testing.T) {
	s := newTestServer(t, nil, io.Discard)
	addDocs(t, s, testDocs...)

	suggestReq := Request{ID: "s", Op: OpSuggest, Query: "zen mo"}
	first, ok := s.Handle(suggestReq).(SuggestResponse)
	if !ok || first.Cached || first.Count != 1 || first.Suggestions[0].Phrase != "zen motorcycle" {
		t.Fatalf("first suggest = %#v", first)
	}
	second := s.Handle(Request{ID: "s", Op: OpSuggest, Query: " Zen MO "}).(SuggestResponse)
	if !second.Cached || second.Count != 1 {
		t.Errorf("second suggest not served from cache: %#v", second)
	}
	if got := testutil.ToFloat64(s.metrics.CacheHitsTotal); got != 1 {
		t.Errorf("cache hits = %v; want 1", got)
	}

	stats := mustStatus(t, s.Handle(Request{ID: "st", Op: OpStats, Query: "zen"}))
	if len(stats.Queries) != 1 || stats.Queries[0] != "zen mo" || stats.Cache["hotCacheEntries"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// Adding a document invalidates the cache.
	addDocs(t, s, map[string]any{"id": "moto", "title": "Zen motors", "text": "zen motors"})
	third := s.Handle(suggestReq).(SuggestResponse)
	if third.Cached || third.Count != 2 {
		t.Errorf("suggest after add = %#v", third)
	}
}

func TestHandleErrors(t *testing.T) {
	s := newTestServer(t, nil, io.Discard)
	addDocs(t, s, testDocs[0])

	tests := []struct {
		name string
		req  Request
		code int
	}{
		{"add without docs", Request{Op: OpAdd}, CodeBadRequest},
		{"duplicate id", Request{Op: OpAdd, Docs: testDocs[:1]}, CodeBadRequest},
		{"missing id", Request{Op: OpAdd, Docs: []map[string]any{{"text": "no id"}}}, CodeBadRequest},
		{"remove without docs", Request{Op: OpRemove}, CodeBadRequest},
		{"remove unknown", Request{Op: OpRemove, Docs: testDocs[1:2]}, CodeNotFound},
		{"empty query", Request{Op: OpSearch}, CodeBadRequest},
		{"punctuation query", Request{Op: OpSuggest, Query: "?!"}, CodeBadRequest},
		{"combinator", Request{Op: OpSearch, Query: "moby", Combine: "xor"}, CodeBadRequest},
		{"snapshot without path", Request{Op: OpSnapshot}, CodeBadRequest},
		{"unknown op", Request{Op: "reindex"}, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.ID = tt.name
			resp, ok := s.Handle(tt.req).(ErrorResponse)
			if !ok {
				t.Fatalf("expected an ErrorResponse, got %#v", resp)
			}
			if resp.Code != tt.code || resp.ID != tt.name {
				t.Errorf("response = %+v; want code %d", resp, tt.code)
			}
		})
	}

	if got := testutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues(OpAdd, "error")); got != 3 {
		t.Errorf("failed adds = %v; want 3", got)
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := newTestServer(t, nil, io.Discard)
	addDocs(t, s, testDocs...)

	status := mustStatus(t, s.Handle(Request{ID: "rm", Op: OpRemove, Docs: testDocs[:1]}))
	if status.Docs != 2 {
		t.Errorf("docs after remove = %d; want 2", status.Docs)
	}
	resp := s.Handle(Request{ID: "q", Op: OpSearch, Query: "ishmael"}).(SearchResponse)
	if resp.Count != 0 {
		t.Errorf("removed document still found: %+v", resp.Results)
	}

	status = mustStatus(t, s.Handle(Request{ID: "clear", Op: OpClear}))
	if status.Docs != 0 || status.Terms != 0 {
		t.Errorf("clear left %d docs and %d terms", status.Docs, status.Terms)
	}
	if got := testutil.ToFloat64(s.metrics.DocsRemovedTotal); got != 3 {
		t.Errorf("removed docs = %v; want 3", got)
	}
	if got := testutil.ToFloat64(s.metrics.Documents); got != 0 {
		t.Errorf("documents gauge = %v; want 0", got)
	}
}

func TestSnapshotOp(t *testing.T) {
	s := newTestServer(t, nil, io.Discard)
	addDocs(t, s, testDocs...)

	path := filepath.Join(t.TempDir(), "index.msgpack")
	mustStatus(t, s.Handle(Request{ID: "snap", Op: OpSnapshot, Path: path}))

	opts, err := s.config.IndexOptions()
	if err != nil {
		t.Fatalf("IndexOptions failed: %v", err)
	}
	idx, err := corpus.LoadSnapshot(path, opts)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if idx.DocumentCount() != 3 || !idx.Has("archery") {
		t.Errorf("snapshot holds %d docs", idx.DocumentCount())
	}
}

func TestMetricsHandler(t *testing.T) {
	s := newTestServer(t, nil, io.Discard)
	addDocs(t, s, testDocs...)
	s.Handle(Request{ID: "q", Op: OpSearch, Query: "zen"})

	rec := httptest.NewRecorder()
	s.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`docserve_requests_total{op="search",status="ok"} 1`,
		"docserve_documents 3",
		"docserve_docs_indexed_total 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}

// Documents loaded from a JSON corpus carry float64 ids while ids in msgpack
// requests decode as int64; both must address the same document.
func TestRemoveCorpusDocumentOverStream(t *testing.T) {
	docs, err := corpus.Decode(strings.NewReader(`[
		{"id": 1, "title": "Moby Dick", "text": "Call me Ishmael"},
		{"id": 2, "title": "Zen", "text": "Zen and motorcycle maintenance"}
	]`), corpus.FormatJSON)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	var in bytes.Buffer
	enc := msgpack.NewEncoder(&in)
	requests := []Request{
		{ID: "rm", Op: OpRemove, Docs: []map[string]any{{"id": 1, "title": "Moby Dick", "text": "Call me Ishmael"}}},
		{ID: "dup", Op: OpAdd, Docs: []map[string]any{{"id": 2, "text": "duplicate"}}},
	}
	for _, r := range requests {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}

	var out bytes.Buffer
	s := newTestServer(t, &in, &out)
	if err := s.index.AddAll(docs); err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	dec := msgpack.NewDecoder(&out)
	dec.UseLooseInterfaceDecoding(true)
	var responses []map[string]any
	for {
		var resp map[string]any
		if err := dec.Decode(&resp); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("decoding response: %v", err)
		}
		responses = append(responses, resp)
	}
	if len(responses) != 3 {
		t.Fatalf("got %d responses; want 3", len(responses))
	}
	if responses[1]["status"] != "ok" || responses[1]["docs"] != int64(1) {
		t.Errorf("remove response = %v", responses[1])
	}
	if responses[2]["c"] != int64(CodeBadRequest) {
		t.Errorf("duplicate add response = %v", responses[2])
	}
	if s.index.Has(1) || !s.index.Has(2) {
		t.Errorf("unexpected index state: has 1 %v, has 2 %v", s.index.Has(1), s.index.Has(2))
	}
}
