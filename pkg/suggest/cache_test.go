package suggest

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/bastiangx/docserve/pkg/search"
)

func suggestions(phrases ...string) []search.Suggestion {
	out := make([]search.Suggestion, len(phrases))
	for i, p := range phrases {
		out[i] = search.Suggestion{Suggestion: p, Terms: []string{p}, Score: float64(len(phrases) - i)}
	}
	return out
}

func TestHotCacheGetPut(t *testing.T) {
	hc := NewHotCache(4)
	key := Key("  Zen AR ", "and")

	if _, ok := hc.Get(key); ok {
		t.Fatal("empty cache reported a hit")
	}
	hc.Put(key, suggestions("zen art", "zen archery"))

	got, ok := hc.Get(Key("zen ar", "and"))
	if !ok {
		t.Fatal("expected a hit for the normalized query")
	}
	if len(got) != 2 || got[0].Suggestion != "zen art" {
		t.Errorf("cached suggestions = %+v", got)
	}
	if _, ok := hc.Get(Key("zen ar", "or")); ok {
		t.Error("different option signatures must not share entries")
	}

	hc.Put(key, suggestions("zen"))
	got, _ = hc.Get(key)
	if len(got) != 1 || hc.Len() != 1 {
		t.Errorf("overwrite kept %d entries with %+v", hc.Len(), got)
	}

	stats := hc.Stats()
	if stats["hotCacheHits"] != 2 || stats["hotCacheMisses"] != 2 {
		t.Errorf("stats = %v", stats)
	}
}

func TestHotCacheEvictsLeastRecentlyUsed(t *testing.T) {
	hc := NewHotCache(2)
	hc.Put(Key("a", ""), suggestions("a"))
	hc.Put(Key("b", ""), suggestions("b"))

	// Touch "a" so "b" becomes the oldest entry.
	if _, ok := hc.Get(Key("a", "")); !ok {
		t.Fatal("expected a hit for a")
	}
	hc.Put(Key("c", ""), suggestions("c"))

	if hc.Len() != 2 {
		t.Fatalf("Len = %d; want 2", hc.Len())
	}
	if _, ok := hc.Get(Key("b", "")); ok {
		t.Error("b should have been evicted")
	}
	for _, q := range []string{"a", "c"} {
		if _, ok := hc.Get(Key(q, "")); !ok {
			t.Errorf("%s should still be cached", q)
		}
	}
}

func TestHotCacheDisabled(t *testing.T) {
	hc := NewHotCache(0)
	hc.Put(Key("zen", ""), suggestions("zen"))
	if _, ok := hc.Get(Key("zen", "")); ok || hc.Len() != 0 {
		t.Error("a zero-sized cache must not store entries")
	}
}

func TestHotCachePurge(t *testing.T) {
	hc := NewHotCache(8)
	for _, q := range []string{"zen", "zen a", "moto"} {
		hc.Put(Key(q, ""), suggestions(q))
	}
	hc.Purge()
	if hc.Len() != 0 || len(hc.Queries("")) != 0 {
		t.Errorf("purge left %d entries: %v", hc.Len(), hc.Queries(""))
	}
	hc.Put(Key("zen", ""), suggestions("zen"))
	if hc.Len() != 1 {
		t.Error("cache unusable after purge")
	}
}

func TestHotCacheQueries(t *testing.T) {
	hc := NewHotCache(8)
	hc.Put(Key("zen ar", "and"), nil)
	hc.Put(Key("zen ar", "or"), nil)
	hc.Put(Key("zen", "and"), nil)
	hc.Put(Key("moto", "and"), nil)

	tests := []struct {
		prefix string
		want   []string
	}{
		{"", []string{"moto", "zen", "zen ar"}},
		{"ZEN", []string{"zen", "zen ar"}},
		{"zen a", []string{"zen ar"}},
		{"x", nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("prefix %q", tt.prefix), func(t *testing.T) {
			if got := hc.Queries(tt.prefix); !slices.Equal(got, tt.want) {
				t.Errorf("Queries(%q) = %v; want %v", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestHotCacheConcurrentAccess(t *testing.T) {
	hc := NewHotCache(16)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := Key(fmt.Sprintf("q%d", (g*i)%32), "")
				if _, ok := hc.Get(key); !ok {
					hc.Put(key, suggestions("x"))
				}
				if i%50 == 0 {
					hc.Purge()
				}
			}
		}()
	}
	wg.Wait()
	if hc.Len() > 16 {
		t.Errorf("Len = %d exceeds the limit", hc.Len())
	}
}
