// Copyright 2025 The WordServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the docserve search server and CLI [DBG] application.

Note: This is a BETA release. APIs and functionality may rapidly change.

docserve keeps a full-text index of documents in memory and answers ranked
searches and search-as-you-type suggestions. Terms live in a radix tree so
prefix and fuzzy lookups stay cheap, and matches are ranked with BM25.
It can operate as a MessagePack IPC server for integration with editors and
other tools, or as a CLI application for testing and debugging.

# Usage

Index a directory of JSON, JSONL or YAML documents and serve it:

	docserve -docs ./corpus

Restore a saved index, serve it, and write it back when the input closes:

	docserve -snapshot index.msgpack -save index.msgpack

Run in CLI mode for interactive testing:

	docserve -c -docs ./corpus -limit 5

# Configuration

The TOML config selects the indexed fields and the search defaults:

	[index]
	fields = ["title", "text"]
	store_fields = ["title"]

	[search]
	fuzzy = 0.2
	combine_with = "OR"

	[server]
	max_limit = 64
	metrics_addr = ":9464"

The config file is created with defaults if it doesn't exist. See package
config for every key.

# IPC Protocol

The server communicates via MessagePack over stdin/stdout. Every request
names an op and gets exactly one response:

	{"id": "r1", "op": "search", "q": "ismael", "fuzzy": 0.2}
	{"id": "r1", "r": [{"id": 1, "s": 1.32, "t": ["ishmael"], "f": {"title": "Moby Dick"}}], "c": 1, "t": 87}

See package server for the full list of ops.

# Command Line Flags

	-config string
	    Path to a config file (default [UserConfigDir]/docserve/config.toml)
	-docs string
	    Comma separated document files or directories to index
	-snapshot string
	    Snapshot to restore the index from
	-save string
	    Snapshot path for the snapshot op and for saving on exit
	-metrics string
	    Address for the Prometheus /metrics endpoint (overrides the config)
	-workers int
	    Document files decoded in parallel
	-d  Enable debug mode with detailed logging
	-c  Run in CLI mode instead of server mode
	-limit int
	    Number of results to print in CLI mode
	-no-filter
	    Disable query filtering in CLI mode
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/bastiangx/docserve/internal/cli"
	"github.com/bastiangx/docserve/internal/logger"
	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/config"
	"github.com/bastiangx/docserve/pkg/corpus"
	"github.com/bastiangx/docserve/pkg/search"
	"github.com/bastiangx/docserve/pkg/server"
)

const (
	Version = "0.1.0-beta"
	AppName = "docserve"
	gh      = "https://github.com/bastiangx/docserve"
)

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

// main wires config, index and the chosen front end together.
// It does not implement logic for them and only manages the flow.
func main() {
	sigHandler()
	defaultConfig := config.DefaultConfig()

	showVersion := flag.Bool("version", false, "Show current version")
	configPath := flag.String("config", "", "Path to the config file")
	docPaths := flag.String("docs", "", "Comma separated document files or directories to index")
	snapshotPath := flag.String("snapshot", "", "Snapshot to restore the index from")
	savePath := flag.String("save", "", "Snapshot path for the snapshot op and for saving on exit")
	metricsAddr := flag.String("metrics", "", "Address for the Prometheus /metrics endpoint")
	workers := flag.Int("workers", runtime.GOMAXPROCS(0), "Document files decoded in parallel")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	limit := flag.Int("limit", defaultConfig.CLI.DefaultLimit, "Number of results to print in CLI mode")
	noFilter := flag.Bool("no-filter", false, "Disable query filtering (DBG only)")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger.Setup(*debugMode)

	appConfig, activePath, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Debugf("Using config: %s", config.GetActiveConfigPath(activePath))
	if *limit == defaultConfig.CLI.DefaultLimit {
		*limit = appConfig.CLI.DefaultLimit
	}
	if *metricsAddr != "" {
		appConfig.Server.MetricsAddr = *metricsAddr
	}

	opts, err := appConfig.IndexOptions()
	if err != nil {
		log.Fatalf("Invalid index config: %v", err)
	}
	indexLog := logger.New("index")
	if *debugMode {
		indexLog = logger.NewWithConfig("index", log.DebugLevel, true, true, log.TextFormatter)
	}
	opts.Logger = logger.IndexSink(indexLog)

	resolver, err := utils.NewPathResolver()
	if err != nil {
		log.Warnf("Path resolution limited to the working dir: %v", err)
	}

	idx, err := openIndex(resolver, *snapshotPath, opts)
	if err != nil {
		log.Fatalf("Failed to open index: %v", err)
	}
	if *docPaths != "" {
		if err := indexDocuments(resolver, idx, *docPaths, *workers, appConfig.Server.ChunkSize); err != nil {
			log.Fatalf("Failed to index documents: %v", err)
		}
	}
	log.Debug("Index ready", "docs", idx.DocumentCount(), "terms", idx.TermCount())

	// CLI would be mainly used for testing and dbg purposes.
	if *cliMode {
		inputHandler := cli.NewInputHandler(idx, *limit, *noFilter)
		if err := inputHandler.Start(); err != nil {
			log.Fatalf("CLI error: %v", err)
		}
		return
	}

	log.Debug("spawning IPC")
	metrics := server.NewMetrics()
	if appConfig.Server.MetricsAddr != "" {
		metricsServer := metrics.Serve(appConfig.Server.MetricsAddr)
		defer metricsServer.Close()
	}
	srv := server.NewServer(idx, appConfig, metrics, *savePath)

	showStartupInfo(idx, activePath)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
	if *savePath != "" {
		if err := corpus.SaveSnapshot(*savePath, idx); err != nil {
			log.Fatalf("Failed to save snapshot: %v", err)
		}
	}
}

// openIndex restores the snapshot at path, or returns an empty index when
// path is empty.
func openIndex(resolver *utils.PathResolver, path string, opts search.Options) (*search.Index, error) {
	if path == "" {
		return search.New(opts)
	}
	resolved, found := resolve(resolver, path)
	if !found {
		return nil, fmt.Errorf("snapshot %s: %w", resolved, os.ErrNotExist)
	}
	return corpus.LoadSnapshot(resolved, opts)
}

func indexDocuments(resolver *utils.PathResolver, idx *search.Index, paths string, workers, chunkSize int) error {
	var resolved []string
	for _, p := range strings.Split(paths, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		r, found := resolve(resolver, p)
		if !found {
			return fmt.Errorf("%s: %w", r, os.ErrNotExist)
		}
		resolved = append(resolved, r)
	}
	if len(resolved) == 0 {
		return errors.New("no document paths given")
	}

	files, err := corpus.Expand(resolved)
	if err != nil {
		return err
	}
	docs, err := corpus.LoadFiles(context.Background(), files, workers)
	if err != nil {
		return err
	}
	log.Debugf("Indexing %d documents from %d files", len(docs), len(files))
	return idx.AddAllChunked(docs, chunkSize, nil)
}

func resolve(resolver *utils.PathResolver, path string) (string, bool) {
	if resolver == nil {
		return path, utils.FileExists(path)
	}
	return resolver.Resolve(path)
}

func printVersion() {
	banner := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	banner.SetStyles(styles)

	banner.Print("")
	banner.Print("[ docserve ] In-memory full-text search with fuzzy and prefix matching")
	banner.Print("", "version", Version)
	banner.Print("")
	banner.Print("use -h or --help to see available options")
	banner.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(idx *search.Index, configPath string) {
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)
	defer log.SetLevel(currentLevel)

	fmt.Fprintln(os.Stderr, "===========")
	fmt.Fprintln(os.Stderr, " docserve ")
	fmt.Fprintln(os.Stderr, "===========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", os.Getpid())
	log.Infof("config: ( %s )", config.GetActiveConfigPath(configPath))
	log.Infof("index: %d docs, %d terms", idx.DocumentCount(), idx.TermCount())
	log.Info("status: ready")
	fmt.Fprintln(os.Stderr, "===========")
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to exit")
}
