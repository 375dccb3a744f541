/*
Package corpus reads documents from files and persists index snapshots.

Document files are picked by extension:

	.json          an array of objects, or a single object
	.jsonl .ndjson one object per line
	.yaml .yml     a sequence of mappings, or one mapping per YAML document

Snapshots ending in .msgpack or .mpk are written with msgpack, anything else
as JSON.
*/
package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/search"
)

// Format is the encoding of a document file.
type Format int

const (
	FormatJSON Format = iota
	FormatJSONL
	FormatYAML
)

// ErrUnsupportedFormat is returned for files whose extension names no known format.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ErrInvalidDocument is returned when a decoded record is not an object.
var ErrInvalidDocument = errors.New("document is not an object")

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 << 20

// FormatOf returns the format implied by the file extension of path.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Decode reads every document from r.
func Decode(r io.Reader, format Format) ([]search.Document, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(r)
	case FormatJSONL:
		return decodeJSONL(r)
	case FormatYAML:
		return decodeYAML(r)
	}
	return nil, ErrUnsupportedFormat
}

func decodeJSON(r io.Reader) ([]search.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '{' {
		var doc search.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return []search.Document{doc}, nil
	}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return asDocuments(raw)
}

func decodeJSONL(r io.Reader) ([]search.Document, error) {
	var docs []search.Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; scanner.Scan(); line++ {
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var doc search.Document
		if err := json.Unmarshal(text, &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if doc == nil {
			return nil, fmt.Errorf("line %d: %w", line, ErrInvalidDocument)
		}
		docs = append(docs, doc)
	}
	return docs, scanner.Err()
}

func decodeYAML(r io.Reader) ([]search.Document, error) {
	var docs []search.Document
	dec := yaml.NewDecoder(r)
	for {
		var raw any
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		switch v := raw.(type) {
		case nil:
		case []any:
			batch, err := asDocuments(v)
			if err != nil {
				return nil, err
			}
			docs = append(docs, batch...)
		case map[string]any:
			docs = append(docs, v)
		default:
			return nil, fmt.Errorf("%w: %T", ErrInvalidDocument, raw)
		}
	}
}

func asDocuments(raw []any) ([]search.Document, error) {
	docs := make([]search.Document, 0, len(raw))
	for i, v := range raw {
		doc, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d: %w", i, ErrInvalidDocument)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadFile reads the documents of a single file.
func LoadFile(path string) ([]search.Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	docs, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("Read %d documents from %s", len(docs), path)
	return docs, nil
}

// Expand replaces every directory in paths with the supported document
// files directly inside it, sorted by name. Plain files are kept as given.
func Expand(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, err := FormatOf(e.Name()); err == nil {
				found = append(found, filepath.Join(path, e.Name()))
			}
		}
		slices.Sort(found)
		files = append(files, found...)
	}
	return files, nil
}

// LoadFiles decodes the files concurrently with at most workers files in
// flight (no limit when workers <= 0). Documents are returned in file order
// and, within a file, in the order they appear.
func LoadFiles(ctx context.Context, paths []string, workers int) ([]search.Document, error) {
	batches := make([][]search.Document, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs, err := LoadFile(path)
			if err != nil {
				return err
			}
			batches[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, b := range batches {
		total += len(b)
	}
	docs := make([]search.Document, 0, total)
	for _, b := range batches {
		docs = append(docs, b...)
	}
	return docs, nil
}

func isMsgpack(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		return true
	}
	return false
}

// SaveSnapshot writes the index snapshot to path, replacing any previous file.
func SaveSnapshot(path string, idx *search.Index) error {
	snap := idx.Snapshot()
	err := utils.WriteFileAtomic(path, func(f *os.File) error {
		w := bufio.NewWriter(f)
		var err error
		if isMsgpack(path) {
			err = msgpack.NewEncoder(w).Encode(snap)
		} else {
			err = json.NewEncoder(w).Encode(snap)
		}
		if err != nil {
			return err
		}
		return w.Flush()
	})
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", path, err)
	}
	log.Debugf("Saved snapshot of %d documents to %s", idx.DocumentCount(), path)
	return nil
}

// LoadSnapshot restores an index saved with SaveSnapshot. opts must match
// the options the index was built with, except for fields which are taken
// from the snapshot.
func LoadSnapshot(path string, opts search.Options) (*search.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var snap search.Snapshot
	r := bufio.NewReader(f)
	if isMsgpack(path) {
		dec := msgpack.NewDecoder(r)
		dec.UseLooseInterfaceDecoding(true)
		err = dec.Decode(&snap)
	} else {
		err = json.NewDecoder(r).Decode(&snap)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}

	idx, err := search.Load(&snap, opts)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", path, err)
	}
	log.Debugf("Loaded snapshot of %d documents from %s", idx.DocumentCount(), path)
	return idx, nil
}
