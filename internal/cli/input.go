// Package cli handles cmd line input for querying an index interactively, for DBG and testing search options.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/search"
)

// InputHandler reads queries from stdin and prints ranked results.
//
// Lines are searched as free text. A few commands change what happens:
//
//	:s <text>     auto-suggest completions for text
//	:prefix       toggle prefix matching for every term
//	:fuzzy <f>    set fuzziness, 0 disables
//	:and / :or    set how terms are combined
//	:stats        print index size
type InputHandler struct {
	index        *search.Index
	suggestLimit int
	noFilter     bool
	options      search.SearchOptions

	reader io.Reader
	out    *log.Logger
}

// NewInputHandler handles initialization of the InputHandler with basic parameters
func NewInputHandler(idx *search.Index, limit int, noFilter bool) *InputHandler {
	out := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	return NewInputHandlerWithIO(idx, limit, noFilter, os.Stdin, out)
}

// NewInputHandlerWithIO is NewInputHandler reading from r and printing to out.
func NewInputHandlerWithIO(idx *search.Index, limit int, noFilter bool, r io.Reader, out *log.Logger) *InputHandler {
	return &InputHandler{
		index:        idx,
		suggestLimit: limit,
		noFilter:     noFilter,
		reader:       r,
		out:          out,
	}
}

// Start begins the interface loop. It returns nil once input ends.
func (h *InputHandler) Start() error {
	h.out.Print("docserve CLI [BETA]")
	h.out.Printf("%d documents, %d terms. type a query and press Enter (Ctrl+C to exit):",
		h.index.DocumentCount(), h.index.TermCount())

	scanner := bufio.NewScanner(h.reader)
	for {
		h.out.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		h.handleInput(line)
	}
}

func (h *InputHandler) handleInput(line string) {
	if !strings.HasPrefix(line, ":") {
		h.search(line)
		return
	}
	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "s":
		h.suggest(arg)
	case "prefix":
		if h.options.Prefix == nil {
			h.options.Prefix = search.PrefixAll
			h.out.Print("prefix matching: on")
		} else {
			h.options.Prefix = nil
			h.out.Print("prefix matching: index default")
		}
	case "fuzzy":
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil || f < 0 {
			h.out.Errorf("Invalid fuzziness: %q", arg)
			return
		}
		h.options.Fuzzy = search.Fuzzy(f)
		h.out.Printf("fuzziness: %g", f)
	case "and", "or":
		h.options.CombineWith = strings.ToUpper(cmd)
		h.out.Printf("combine with: %s", h.options.CombineWith)
	case "stats":
		h.out.Printf("documents: %d, terms: %d, fields: %v",
			h.index.DocumentCount(), h.index.TermCount(), h.index.Fields())
	default:
		h.out.Errorf("Unknown command: %s", cmd)
	}
}

func (h *InputHandler) accept(query string) bool {
	if h.noFilter {
		log.Debug("Input filtering disabled")
		return true
	}
	if !utils.IsValidQuery(query, 0) {
		h.out.Warnf("Nothing to search for in '%s'", query)
		return false
	}
	return true
}

func (h *InputHandler) search(query string) {
	if !h.accept(query) {
		return
	}
	start := time.Now()
	results, err := h.index.SearchText(query, h.options)
	if err != nil {
		h.out.Errorf("Search failed: %v", err)
		return
	}
	log.Debugf("Took [ %v ] for query '%s'", time.Since(start), query)

	if len(results) == 0 {
		h.out.Warnf("No results found for '%s'", query)
		return
	}
	h.out.Printf("Found %d results for '%s':", len(results), query)
	for i, r := range results[:min(len(results), h.suggestLimit)] {
		id := fmt.Sprintf("\033[38;5;75m%v\033[0m", r.ID)
		h.out.Printf("%2d. %-24s %8.4f  %v %v", i+1, id, r.Score, r.Terms, r.Fields)
	}
}

func (h *InputHandler) suggest(query string) {
	if !h.accept(query) {
		return
	}
	suggestions, err := h.index.AutoSuggest(query, h.options)
	if err != nil {
		h.out.Errorf("Suggest failed: %v", err)
		return
	}
	if len(suggestions) == 0 {
		h.out.Warnf("No suggestions found for '%s'", query)
		return
	}
	for i, s := range suggestions[:min(len(suggestions), h.suggestLimit)] {
		phrase := fmt.Sprintf("\033[38;5;75m%s\033[0m", s.Suggestion)
		h.out.Printf("%2d. %-40s (score: %.4f)", i+1, phrase, s.Score)
	}
}
