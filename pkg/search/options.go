package search

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/docserve/pkg/textproc"
)

// Document is a record handed to the index. Nested maps are reachable from
// the default field extractor with dotted paths such as "author.name".
type Document = map[string]any

// Combine operators accepted in SearchOptions.CombineWith. Matching is
// case-insensitive.
const (
	OR     = "OR"
	AND    = "AND"
	AndNot = "AND_NOT"
)

// PrefixFunc decides whether the i-th query term is also matched as a prefix.
type PrefixFunc func(term string, i int, terms []string) bool

// FuzzyFunc returns the fuzziness of the i-th query term. Zero disables fuzzy
// matching, a value below 1 is a fraction of the term length and anything
// else is an absolute edit distance.
type FuzzyFunc func(term string, i int, terms []string) float64

// PrefixAll enables prefix matching for every term.
func PrefixAll(string, int, []string) bool { return true }

// PrefixLast enables prefix matching for the last term only, which is what
// search-as-you-type wants.
func PrefixLast(_ string, i int, terms []string) bool { return i == len(terms)-1 }

// PrefixNone disables prefix matching. It overrides an inherited PrefixFunc.
func PrefixNone(string, int, []string) bool { return false }

// Fuzzy returns a FuzzyFunc applying the same fuzziness to every term.
func Fuzzy(f float64) FuzzyFunc {
	return func(string, int, []string) float64 { return f }
}

// FuzzyDefault is the fuzziness used when fuzzy matching is simply switched on.
var FuzzyDefault = Fuzzy(0.2)

// FuzzyNone disables fuzzy matching. It overrides an inherited FuzzyFunc.
var FuzzyNone = Fuzzy(0)

// Weights scale the contribution of approximate matches relative to exact
// ones.
type Weights struct {
	Fuzzy  float64
	Prefix float64
}

// SearchOptions tune a single search. Zero values inherit from the index
// defaults, which in turn inherit from the package defaults.
type SearchOptions struct {
	// Fields restricts the search to these fields. Defaults to every indexed
	// field.
	Fields []string

	// Boost multiplies the score of matches in the given fields. Fields
	// missing from the map keep a multiplier of 1; a multiplier of 0 stops
	// the field from matching.
	Boost map[string]float64

	// BoostDocument multiplies the score of a document for a matched term.
	// Returning 0 excludes the document from that term's results.
	BoostDocument func(id any, term string, stored map[string]any) float64

	// BoostTerm multiplies the score contributed by the i-th query term.
	BoostTerm func(term string, i int, terms []string) float64

	CombineWith string
	Prefix      PrefixFunc
	Fuzzy       FuzzyFunc
	MaxFuzzy    int
	Weights     Weights

	// Tokenize and ProcessTerm override the index functions for queries.
	// ProcessTerm receives an empty field name.
	Tokenize    func(text, field string) []string
	ProcessTerm func(term, field string) []string

	// Filter drops results after scoring.
	Filter func(Result) bool
}

// Merge returns o with every non-zero field of over applied on top of it.
func (o SearchOptions) Merge(over SearchOptions) SearchOptions {
	if over.Fields != nil {
		o.Fields = over.Fields
	}
	if over.Boost != nil {
		o.Boost = over.Boost
	}
	if over.BoostDocument != nil {
		o.BoostDocument = over.BoostDocument
	}
	if over.BoostTerm != nil {
		o.BoostTerm = over.BoostTerm
	}
	if over.CombineWith != "" {
		o.CombineWith = over.CombineWith
	}
	if over.Prefix != nil {
		o.Prefix = over.Prefix
	}
	if over.Fuzzy != nil {
		o.Fuzzy = over.Fuzzy
	}
	if over.MaxFuzzy != 0 {
		o.MaxFuzzy = over.MaxFuzzy
	}
	if over.Weights.Fuzzy != 0 {
		o.Weights.Fuzzy = over.Weights.Fuzzy
	}
	if over.Weights.Prefix != 0 {
		o.Weights.Prefix = over.Weights.Prefix
	}
	if over.Tokenize != nil {
		o.Tokenize = over.Tokenize
	}
	if over.ProcessTerm != nil {
		o.ProcessTerm = over.ProcessTerm
	}
	if over.Filter != nil {
		o.Filter = over.Filter
	}
	return o
}

// Options configure an Index. Only Fields is required.
type Options struct {
	// Fields lists the document fields to index.
	Fields []string

	// IDField names the field holding the document id. Defaults to "id".
	IDField string

	// StoreFields lists fields copied into results.
	StoreFields []string

	// ExtractField reads a field from a document. The default follows dotted
	// paths through nested maps.
	ExtractField func(doc Document, field string) (any, bool)

	// Tokenize splits field text into tokens. Defaults to textproc.Tokenize.
	Tokenize func(text, field string) []string

	// ProcessTerm turns a token into zero or more index terms. Defaults to
	// textproc.Lower.
	ProcessTerm func(term, field string) []string

	SearchOptions      SearchOptions
	AutoSuggestOptions SearchOptions

	// Logger receives non-fatal diagnostics.
	Logger func(level log.Level, message, code string)
}

var defaultSearchOptions = SearchOptions{
	CombineWith: OR,
	MaxFuzzy:    6,
	Weights:     Weights{Fuzzy: 0.45, Prefix: 0.375},
}

var defaultAutoSuggestOptions = SearchOptions{
	CombineWith: AND,
	Prefix:      PrefixLast,
}

// ExtractPath is the default field extractor. It resolves dotted paths
// through nested maps and treats nil values as absent.
func ExtractPath(doc Document, field string) (any, bool) {
	var cur any = doc
	for _, key := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// DefaultLogger writes diagnostics through the global charmbracelet logger.
func DefaultLogger(level log.Level, message, code string) {
	if code == "" {
		log.Log(level, message)
		return
	}
	log.Log(level, message, "code", code)
}

func (o Options) withDefaults() (Options, error) {
	if len(o.Fields) == 0 {
		return o, fmt.Errorf("%w: option fields must be provided", ErrConfig)
	}
	if o.IDField == "" {
		o.IDField = "id"
	}
	if o.ExtractField == nil {
		o.ExtractField = ExtractPath
	}
	if o.Tokenize == nil {
		o.Tokenize = textproc.Tokenize
	}
	if o.ProcessTerm == nil {
		o.ProcessTerm = textproc.Lower
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger
	}
	o.SearchOptions = defaultSearchOptions.Merge(o.SearchOptions)
	o.AutoSuggestOptions = defaultAutoSuggestOptions.Merge(o.AutoSuggestOptions)
	return o, nil
}

// DefaultOption returns the default value of the named construction option.
func DefaultOption(name string) (any, error) {
	switch name {
	case "idField":
		return "id", nil
	case "extractField":
		return ExtractPath, nil
	case "tokenize":
		return textproc.Tokenize, nil
	case "processTerm":
		return textproc.Lower, nil
	case "fields":
		return []string(nil), nil
	case "storeFields":
		return []string{}, nil
	case "searchOptions":
		return defaultSearchOptions, nil
	case "autoSuggestOptions":
		return defaultAutoSuggestOptions, nil
	case "logger":
		return DefaultLogger, nil
	}
	return nil, fmt.Errorf("%w: unknown option %q", ErrConfig, name)
}

// maxDistance resolves a fuzziness value for a term of the given length.
func maxDistance(fuzzy float64, termLength, maxFuzzy int) int {
	if fuzzy <= 0 {
		return 0
	}
	if fuzzy < 1 {
		return min(maxFuzzy, int(math.Round(float64(termLength)*fuzzy)))
	}
	return int(fuzzy)
}
