package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/config"
	"github.com/bastiangx/docserve/pkg/corpus"
	"github.com/bastiangx/docserve/pkg/search"
	"github.com/bastiangx/docserve/pkg/suggest"
)

// defaultLimit applies to search and suggest requests without a limit.
const defaultLimit = 10

// Server handles the IPC for one index.
type Server struct {
	index        *search.Index
	config       *config.Config
	cache        *suggest.HotCache
	metrics      *Metrics
	snapshotPath string

	reader io.Reader
	writer io.Writer
}

// NewServer creates a server for idx using stdin/stdout for IPC.
// snapshotPath is where snapshot requests without a path are written; it
// may be empty.
func NewServer(idx *search.Index, cfg *config.Config, metrics *Metrics, snapshotPath string) *Server {
	return NewServerWithIO(idx, cfg, metrics, snapshotPath, os.Stdin, os.Stdout)
}

// NewServerWithIO is NewServer over arbitrary streams.
func NewServerWithIO(idx *search.Index, cfg *config.Config, metrics *Metrics, snapshotPath string, r io.Reader, w io.Writer) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	metrics.setIndexSize(idx.DocumentCount(), idx.TermCount())
	return &Server{
		index:        idx,
		config:       cfg,
		cache:        suggest.NewHotCache(cfg.Server.CacheSize),
		metrics:      metrics,
		snapshotPath: snapshotPath,
		reader:       bufio.NewReader(r),
		writer:       w,
	}
}

// Start announces readiness and serves requests until the input ends.
func (s *Server) Start() error {
	log.Debug("Starting Server.")
	enc := msgpack.NewEncoder(s.writer)
	dec := msgpack.NewDecoder(s.reader)

	if err := enc.Encode(s.status("", "ready")); err != nil {
		return err
	}

	for {
		var raw msgpack.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Errorf("Reading request: %v", err)
			return err
		}

		response := s.handleMessage(raw)
		if err := enc.Encode(response); err != nil {
			log.Errorf("Encoding response: %v", err)
			return err
		}
	}
}

// handleMessage decodes one request and handles it. Malformed requests get
// an error response without stopping the stream.
func (s *Server) handleMessage(raw []byte) any {
	var req Request
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&req); err != nil {
		log.Debugf("Invalid request: %v", err)
		s.metrics.observe("invalid", "error", 0)
		return ErrorResponse{Error: "invalid msgpack request", Code: CodeBadRequest}
	}
	return s.Handle(req)
}

// Handle runs a single request and returns its response.
func (s *Server) Handle(req Request) any {
	start := time.Now()
	op := strings.ToLower(req.Op)

	var response any
	switch op {
	case OpAdd:
		response = s.handleAdd(req)
	case OpRemove:
		response = s.handleRemove(req)
	case OpClear:
		response = s.handleClear(req)
	case OpSearch:
		response = s.handleSearch(req, start)
	case OpSuggest:
		response = s.handleSuggest(req, start)
	case OpStats:
		response = s.handleStats(req)
	case OpSnapshot:
		response = s.handleSnapshot(req)
	case OpHealth:
		response = s.status(req.ID, "ok")
	default:
		response = s.fail(req.ID, fmt.Sprintf("unknown op: %q", req.Op), CodeNotFound)
		op = "unknown"
	}

	status := "ok"
	if _, failed := response.(ErrorResponse); failed {
		status = "error"
	}
	s.metrics.observe(op, status, time.Since(start))
	return response
}

func (s *Server) handleAdd(req Request) any {
	if len(req.Docs) == 0 {
		return s.fail(req.ID, "missing 'docs'", CodeBadRequest)
	}
	before := s.index.DocumentCount()
	err := s.index.AddAllChunked(req.Docs, s.config.Server.ChunkSize, nil)
	// chunks added before a failure stay indexed
	s.indexChanged()
	s.metrics.DocsIndexedTotal.Add(float64(s.index.DocumentCount() - before))
	if err != nil {
		return s.failErr(req.ID, err)
	}
	log.Debugf("Added %d documents", len(req.Docs))
	return s.status(req.ID, "ok")
}

func (s *Server) handleRemove(req Request) any {
	if len(req.Docs) == 0 {
		return s.fail(req.ID, "missing 'docs'", CodeBadRequest)
	}
	before := s.index.DocumentCount()
	err := s.index.RemoveAll(req.Docs...)
	s.indexChanged()
	s.metrics.DocsRemovedTotal.Add(float64(before - s.index.DocumentCount()))
	if err != nil {
		return s.failErr(req.ID, err)
	}
	return s.status(req.ID, "ok")
}

func (s *Server) handleClear(req Request) any {
	removed := s.index.DocumentCount()
	if err := s.index.RemoveAll(); err != nil {
		return s.failErr(req.ID, err)
	}
	s.indexChanged()
	s.metrics.DocsRemovedTotal.Add(float64(removed))
	return s.status(req.ID, "ok")
}

func (s *Server) handleSearch(req Request, start time.Time) any {
	var q search.Query = search.Wildcard
	if strings.TrimSpace(req.Query) != WildcardQuery {
		if !utils.IsValidQuery(req.Query, s.config.Server.MaxQueryLen) {
			return s.fail(req.ID, "missing or invalid 'q'", CodeBadRequest)
		}
		q = search.Text(req.Query)
	}

	results, err := s.index.Search(q, searchOptions(req))
	if err != nil {
		return s.failErr(req.ID, err)
	}
	results = results[:min(len(results), s.limit(req))]
	s.metrics.ResultsCount.WithLabelValues(OpSearch).Observe(float64(len(results)))

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{ID: r.ID, Score: r.Score, Terms: r.Terms, Fields: r.Fields}
	}
	return SearchResponse{
		ID:        req.ID,
		Results:   out,
		Count:     len(out),
		TimeTaken: time.Since(start).Microseconds(),
	}
}

func (s *Server) handleSuggest(req Request, start time.Time) any {
	if !utils.IsValidQuery(req.Query, s.config.Server.MaxQueryLen) {
		return s.fail(req.ID, "missing or invalid 'q'", CodeBadRequest)
	}

	key := suggest.Key(req.Query, signature(req))
	suggestions, cached := s.cache.Get(key)
	if cached {
		s.metrics.CacheHitsTotal.Inc()
	} else {
		s.metrics.CacheMissesTotal.Inc()
		var err error
		suggestions, err = s.index.AutoSuggest(req.Query, searchOptions(req))
		if err != nil {
			return s.failErr(req.ID, err)
		}
		s.cache.Put(key, suggestions)
	}

	suggestions = suggestions[:min(len(suggestions), s.limit(req))]
	s.metrics.ResultsCount.WithLabelValues(OpSuggest).Observe(float64(len(suggestions)))

	out := make([]SuggestEntry, len(suggestions))
	for i, sg := range suggestions {
		out[i] = SuggestEntry{Phrase: sg.Suggestion, Terms: sg.Terms, Score: sg.Score}
	}
	return SuggestResponse{
		ID:          req.ID,
		Suggestions: out,
		Count:       len(out),
		TimeTaken:   time.Since(start).Microseconds(),
		Cached:      cached,
	}
}

func (s *Server) handleStats(req Request) any {
	resp := s.status(req.ID, "ok")
	resp.Cache = s.cache.Stats()
	resp.Queries = s.cache.Queries(req.Query)
	return resp
}

func (s *Server) handleSnapshot(req Request) any {
	path := req.Path
	if path == "" {
		path = s.snapshotPath
	}
	if path == "" {
		return s.fail(req.ID, "missing 'path' and no default snapshot path configured", CodeBadRequest)
	}
	if err := corpus.SaveSnapshot(path, s.index); err != nil {
		return s.failErr(req.ID, err)
	}
	log.Infof("Snapshot written to %s", path)
	return s.status(req.ID, "ok")
}

// indexChanged drops cached suggestions and refreshes the size gauges.
func (s *Server) indexChanged() {
	s.cache.Purge()
	s.metrics.setIndexSize(s.index.DocumentCount(), s.index.TermCount())
}

func (s *Server) limit(req Request) int {
	limit := req.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	if maxLimit := s.config.Server.MaxLimit; maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

func (s *Server) status(id, status string) StatusResponse {
	return StatusResponse{
		ID:     id,
		Status: status,
		Docs:   s.index.DocumentCount(),
		Terms:  s.index.TermCount(),
	}
}

func (s *Server) fail(id, message string, code int) ErrorResponse {
	log.Debugf("Request %s failed: %s", id, message)
	return ErrorResponse{ID: id, Error: message, Code: code}
}

// failErr maps index errors onto error codes.
func (s *Server) failErr(id string, err error) ErrorResponse {
	code := CodeInternal
	switch {
	case errors.Is(err, search.ErrMissingID),
		errors.Is(err, search.ErrDuplicateID),
		errors.Is(err, search.ErrInvalidCombinator),
		errors.Is(err, search.ErrConfig):
		code = CodeBadRequest
	case errors.Is(err, search.ErrUnknownDocument):
		code = CodeNotFound
	}
	return s.fail(id, err.Error(), code)
}

// searchOptions maps the per-request knobs onto search options. Unset knobs
// inherit the index defaults.
func searchOptions(req Request) search.SearchOptions {
	var opts search.SearchOptions
	if req.Prefix {
		opts.Prefix = search.PrefixAll
	}
	if req.Fuzzy > 0 {
		opts.Fuzzy = search.Fuzzy(req.Fuzzy)
	}
	opts.CombineWith = req.Combine
	opts.Fields = req.Fields
	return opts
}

// signature identifies the options of a suggest request in cache keys.
func signature(req Request) string {
	return strings.Join([]string{
		strconv.FormatBool(req.Prefix),
		strconv.FormatFloat(req.Fuzzy, 'g', -1, 64),
		strings.ToUpper(req.Combine),
		strings.Join(req.Fields, ","),
	}, "|")
}
