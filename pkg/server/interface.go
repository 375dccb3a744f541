/*
Package server implements msgpack IPC for document search.

The server reads a stream of msgpack maps from stdin and answers each with
one msgpack map on stdout. Every request carries an ID that is echoed in the
response and an op naming the operation:

	{"id": "r1", "op": "add", "docs": [{"id": 1, "title": "Moby Dick", "text": "Call me Ishmael"}]}
	{"id": "r2", "op": "search", "q": "ismael", "fuzzy": 0.2, "l": 10}
	{"id": "r3", "op": "suggest", "q": "zen ar"}
	{"id": "r4", "op": "remove", "docs": [{"id": 1, "title": "Moby Dick", "text": "Call me Ishmael"}]}
	{"id": "r5", "op": "snapshot", "path": "/tmp/index.msgpack"}

Search responses hold ranked results with their stored fields:

	{"id": "r2", "r": [{"id": 1, "s": 1.32, "t": ["ishmael"], "f": {"title": "Moby Dick"}}], "c": 1, "t": 87}

Suggest responses hold completed phrases:

	{"id": "r3", "s": [{"w": "zen art", "t": ["zen", "art"], "s": 2.1}], "c": 1, "t": 40}

The ops add, remove, clear, stats, snapshot and health answer with a
StatusResponse; failures of any op answer with an ErrorResponse. Times are
in microseconds.

Removing a document needs the document as it was added, since its terms are
recomputed to find the postings to drop. The q value "*" searches every
document.

Suggestions are served from a HotCache that is purged whenever add, remove
or clear changes the index.
*/
package server

// Supported request ops.
const (
	OpAdd      = "add"
	OpRemove   = "remove"
	OpClear    = "clear"
	OpSearch   = "search"
	OpSuggest  = "suggest"
	OpStats    = "stats"
	OpSnapshot = "snapshot"
	OpHealth   = "health"
)

// Error codes of ErrorResponse.
const (
	CodeBadRequest = 400
	CodeNotFound   = 404
	CodeInternal   = 500
)

// WildcardQuery is the q value matching every document.
const WildcardQuery = "*"

// Request is any client message. Fields unused by an op are ignored.
type Request struct {
	ID      string           `msgpack:"id"`
	Op      string           `msgpack:"op"`
	Docs    []map[string]any `msgpack:"docs,omitempty"`
	Query   string           `msgpack:"q,omitempty"`
	Prefix  bool             `msgpack:"prefix,omitempty"`
	Fuzzy   float64          `msgpack:"fuzzy,omitempty"`
	Combine string           `msgpack:"combine,omitempty"`
	Fields  []string         `msgpack:"fields,omitempty"`
	Limit   int              `msgpack:"l,omitempty"`
	Path    string           `msgpack:"path,omitempty"`
}

// SearchResult is one ranked document.
type SearchResult struct {
	ID     any            `msgpack:"id"`
	Score  float64        `msgpack:"s"`
	Terms  []string       `msgpack:"t"`
	Fields map[string]any `msgpack:"f,omitempty"`
}

// SearchResponse answers a search request.
type SearchResponse struct {
	ID        string         `msgpack:"id"`
	Results   []SearchResult `msgpack:"r"`
	Count     int            `msgpack:"c"`
	TimeTaken int64          `msgpack:"t"`
}

// SuggestEntry is one suggested phrase.
type SuggestEntry struct {
	Phrase string   `msgpack:"w"`
	Terms  []string `msgpack:"t"`
	Score  float64  `msgpack:"s"`
}

// SuggestResponse answers a suggest request.
type SuggestResponse struct {
	ID          string         `msgpack:"id"`
	Suggestions []SuggestEntry `msgpack:"s"`
	Count       int            `msgpack:"c"`
	TimeTaken   int64          `msgpack:"t"`
	Cached      bool           `msgpack:"cached,omitempty"`
}

// StatusResponse answers every op that does not return results.
type StatusResponse struct {
	ID      string         `msgpack:"id"`
	Status  string         `msgpack:"status"`
	Docs    int            `msgpack:"docs"`
	Terms   int            `msgpack:"terms"`
	Cache   map[string]int `msgpack:"cache,omitempty"`
	Queries []string       `msgpack:"queries,omitempty"`
}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}
