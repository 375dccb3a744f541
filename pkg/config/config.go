/*
Package config manages TOML config for docserve.

The file has one section per concern:

	[index]
	fields = ["title", "text"]
	store_fields = ["title"]
	id_field = "id"
	tokenizer = "default"
	term_processor = "lower"

	[search]
	prefix = false
	fuzzy = 0.0
	max_fuzzy = 6
	combine_with = "OR"
	fuzzy_weight = 0.45
	prefix_weight = 0.375

	[suggest]
	fuzzy = 0.0
	combine_with = "AND"

	[server]
	max_limit = 64
	max_query_len = 256
	cache_size = 512
	chunk_size = 500
	metrics_addr = ""

	[cli]
	default_limit = 10

A file that fails to decode into the typed config is re-read as a generic
map and every key that still has the right type is kept.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/search"
	"github.com/bastiangx/docserve/pkg/textproc"
)

// Config holds the entire config structure
type Config struct {
	Index   IndexConfig   `toml:"index"`
	Search  SearchConfig  `toml:"search"`
	Suggest SuggestConfig `toml:"suggest"`
	Server  ServerConfig  `toml:"server"`
	CLI     CliConfig     `toml:"cli"`
}

// IndexConfig selects the indexed fields and the text pipeline.
type IndexConfig struct {
	Fields        []string `toml:"fields"`
	StoreFields   []string `toml:"store_fields"`
	IDField       string   `toml:"id_field"`
	Tokenizer     string   `toml:"tokenizer"`
	TermProcessor string   `toml:"term_processor"`
}

// SearchConfig holds the index-wide search defaults.
type SearchConfig struct {
	Prefix       bool    `toml:"prefix"`
	Fuzzy        float64 `toml:"fuzzy"`
	MaxFuzzy     int     `toml:"max_fuzzy"`
	CombineWith  string  `toml:"combine_with"`
	FuzzyWeight  float64 `toml:"fuzzy_weight"`
	PrefixWeight float64 `toml:"prefix_weight"`
}

// SuggestConfig holds the auto-suggest defaults.
type SuggestConfig struct {
	Fuzzy       float64 `toml:"fuzzy"`
	CombineWith string  `toml:"combine_with"`
}

// ServerConfig has server related options.
type ServerConfig struct {
	MaxLimit    int    `toml:"max_limit"`
	MaxQueryLen int    `toml:"max_query_len"`
	CacheSize   int    `toml:"cache_size"`
	ChunkSize   int    `toml:"chunk_size"`
	MetricsAddr string `toml:"metrics_addr"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	DefaultLimit int `toml:"default_limit"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Fields:        []string{"title", "text"},
			StoreFields:   []string{"title"},
			IDField:       "id",
			Tokenizer:     "default",
			TermProcessor: "lower",
		},
		Search: SearchConfig{
			MaxFuzzy:     6,
			CombineWith:  search.OR,
			FuzzyWeight:  0.45,
			PrefixWeight: 0.375,
		},
		Suggest: SuggestConfig{
			CombineWith: search.AND,
		},
		Server: ServerConfig{
			MaxLimit:    64,
			MaxQueryLen: 256,
			CacheSize:   512,
			ChunkSize:   500,
		},
		CLI: CliConfig{
			DefaultLimit: 10,
		},
	}
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/docserve
// 2. ~/Library/Application Support/docserve (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	primaryPath := filepath.Join(homeDir, ".config", utils.AppDir)
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", utils.AppDir)
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/docserve/config.toml
// 3. Builtin defaults
//
// It returns the path the config was read from, or "" for builtin defaults.
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err == nil {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
			log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)
	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}
	return LoadConfig(configPath)
}

// LoadConfig loads from a TOML file. Values missing from the file keep their
// defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

// tryPartialParse keeps every well-typed value of a file that failed to decode.
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "index"); ok {
		extractIndexConfig(section, &config.Index)
	}
	if section, ok := utils.ExtractSection(tempConfig, "search"); ok {
		extractSearchConfig(section, &config.Search)
	}
	if section, ok := utils.ExtractSection(tempConfig, "suggest"); ok {
		extractSuggestConfig(section, &config.Suggest)
	}
	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		extractCliConfig(section, &config.CLI)
	}
	return config, nil
}

func extractIndexConfig(data map[string]any, index *IndexConfig) {
	if val, ok := utils.ExtractStrings(data, "fields"); ok {
		index.Fields = val
	}
	if val, ok := utils.ExtractStrings(data, "store_fields"); ok {
		index.StoreFields = val
	}
	if val, ok := utils.ExtractString(data, "id_field"); ok {
		index.IDField = val
	}
	if val, ok := utils.ExtractString(data, "tokenizer"); ok {
		index.Tokenizer = val
	}
	if val, ok := utils.ExtractString(data, "term_processor"); ok {
		index.TermProcessor = val
	}
}

func extractSearchConfig(data map[string]any, s *SearchConfig) {
	if val, ok := utils.ExtractBool(data, "prefix"); ok {
		s.Prefix = val
	}
	if val, ok := utils.ExtractFloat(data, "fuzzy"); ok {
		s.Fuzzy = val
	}
	if val, ok := utils.ExtractInt64(data, "max_fuzzy"); ok {
		s.MaxFuzzy = val
	}
	if val, ok := utils.ExtractString(data, "combine_with"); ok {
		s.CombineWith = val
	}
	if val, ok := utils.ExtractFloat(data, "fuzzy_weight"); ok {
		s.FuzzyWeight = val
	}
	if val, ok := utils.ExtractFloat(data, "prefix_weight"); ok {
		s.PrefixWeight = val
	}
}

func extractSuggestConfig(data map[string]any, s *SuggestConfig) {
	if val, ok := utils.ExtractFloat(data, "fuzzy"); ok {
		s.Fuzzy = val
	}
	if val, ok := utils.ExtractString(data, "combine_with"); ok {
		s.CombineWith = val
	}
}

// extractServerConfig extracts server configuration from a map
func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt64(data, "max_limit"); ok {
		server.MaxLimit = val
	}
	if val, ok := utils.ExtractInt64(data, "max_query_len"); ok {
		server.MaxQueryLen = val
	}
	if val, ok := utils.ExtractInt64(data, "cache_size"); ok {
		server.CacheSize = val
	}
	if val, ok := utils.ExtractInt64(data, "chunk_size"); ok {
		server.ChunkSize = val
	}
	if val, ok := utils.ExtractString(data, "metrics_addr"); ok {
		server.MetricsAddr = val
	}
}

func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractInt64(data, "default_limit"); ok {
		cli.DefaultLimit = val
	}
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		return "builtin defaults"
	}
	return utils.GetAbsolutePath(configPath)
}

// IndexOptions maps the config onto index construction options. Unknown
// tokenizer or term processor names and invalid combinators fail with
// search.ErrConfig.
func (c *Config) IndexOptions() (search.Options, error) {
	tokenize, ok := textproc.Tokenizers[c.Index.Tokenizer]
	if !ok {
		return search.Options{}, fmt.Errorf("%w: unknown tokenizer %q", search.ErrConfig, c.Index.Tokenizer)
	}
	process, ok := textproc.Processors[c.Index.TermProcessor]
	if !ok {
		return search.Options{}, fmt.Errorf("%w: unknown term processor %q", search.ErrConfig, c.Index.TermProcessor)
	}
	for _, op := range []string{c.Search.CombineWith, c.Suggest.CombineWith} {
		if err := checkCombinator(op); err != nil {
			return search.Options{}, err
		}
	}

	searchOpts := search.SearchOptions{
		CombineWith: c.Search.CombineWith,
		MaxFuzzy:    c.Search.MaxFuzzy,
		Weights:     search.Weights{Fuzzy: c.Search.FuzzyWeight, Prefix: c.Search.PrefixWeight},
		Prefix:      search.PrefixNone,
		Fuzzy:       fuzzyFunc(c.Search.Fuzzy),
	}
	if c.Search.Prefix {
		searchOpts.Prefix = search.PrefixAll
	}

	return search.Options{
		Fields:        c.Index.Fields,
		StoreFields:   c.Index.StoreFields,
		IDField:       c.Index.IDField,
		Tokenize:      tokenize,
		ProcessTerm:   process,
		SearchOptions: searchOpts,
		AutoSuggestOptions: search.SearchOptions{
			CombineWith: c.Suggest.CombineWith,
			Fuzzy:       fuzzyFunc(c.Suggest.Fuzzy),
		},
	}, nil
}

func fuzzyFunc(f float64) search.FuzzyFunc {
	if f <= 0 {
		return search.FuzzyNone
	}
	return search.Fuzzy(f)
}

func checkCombinator(op string) error {
	switch strings.ToUpper(op) {
	case "", search.OR, search.AND, search.AndNot:
		return nil
	}
	return fmt.Errorf("%w: %q", search.ErrInvalidCombinator, op)
}
