package utils

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestIsValidQuery(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   bool
	}{
		{"zen", 0, true},
		{"zen ar", 6, true},
		{"zen art", 6, false},
		{"42", 0, true},
		{"日本", 0, true},
		{"", 0, false},
		{"?! -", 0, false},
	}
	for _, tt := range tests {
		if got := IsValidQuery(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("IsValidQuery(%q, %d) = %v; want %v", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestExtract(t *testing.T) {
	data := map[string]any{
		"limit":  int64(5),
		"weight": 0.5,
		"whole":  int64(2),
		"name":   "uax29",
		"fields": []any{"title", "text"},
		"mixed":  []any{"title", int64(1)},
		"flag":   true,
	}

	if v, ok := ExtractInt64(data, "limit"); !ok || v != 5 {
		t.Errorf("ExtractInt64 = %v, %v", v, ok)
	}
	if _, ok := ExtractInt64(data, "weight"); ok {
		t.Error("ExtractInt64 accepted a float")
	}
	if v, ok := ExtractFloat(data, "weight"); !ok || v != 0.5 {
		t.Errorf("ExtractFloat = %v, %v", v, ok)
	}
	if v, ok := ExtractFloat(data, "whole"); !ok || v != 2 {
		t.Errorf("ExtractFloat(int) = %v, %v", v, ok)
	}
	if v, ok := ExtractString(data, "name"); !ok || v != "uax29" {
		t.Errorf("ExtractString = %v, %v", v, ok)
	}
	if v, ok := ExtractStrings(data, "fields"); !ok || !slices.Equal(v, []string{"title", "text"}) {
		t.Errorf("ExtractStrings = %v, %v", v, ok)
	}
	if _, ok := ExtractStrings(data, "mixed"); ok {
		t.Error("ExtractStrings accepted a mixed array")
	}
	if v, ok := ExtractBool(data, "flag"); !ok || !v {
		t.Errorf("ExtractBool = %v, %v", v, ok)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.txt")
	write := func(content string) error {
		return WriteFileAtomic(path, func(f *os.File) error {
			_, err := f.WriteString(content)
			return err
		})
	}
	if err := write("first"); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	// A failing writer leaves the previous content in place.
	boom := errors.New("boom")
	err := WriteFileAtomic(path, func(f *os.File) error {
		f.WriteString("partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WriteFileAtomic returned %v; want boom", err)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "first" {
		t.Errorf("file content = %q, %v; want first", data, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestPathResolver(t *testing.T) {
	pr, err := NewPathResolver()
	if err != nil {
		t.Fatalf("NewPathResolver failed: %v", err)
	}

	dir := t.TempDir()
	abs := filepath.Join(dir, "docs.json")
	if err := os.WriteFile(abs, []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}
	if got, ok := pr.Resolve(abs); !ok || got != abs {
		t.Errorf("Resolve(%q) = %q, %v", abs, got, ok)
	}

	// utils_test.go exists relative to the package dir tests run in.
	got, ok := pr.Resolve("utils_test.go")
	if !ok || !filepath.IsAbs(got) {
		t.Errorf("Resolve(utils_test.go) = %q, %v", got, ok)
	}

	missing := "no-such-file.json"
	got, ok = pr.Resolve(missing)
	cwd, _ := os.Getwd()
	if ok || got != filepath.Join(cwd, missing) {
		t.Errorf("Resolve(%q) = %q, %v", missing, got, ok)
	}
}
