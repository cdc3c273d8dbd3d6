package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nomark/sigil/internal/pkg/clock"
)

func TestKeyChangesWithContent(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "main.py")
	if err := os.WriteFile(file, []byte("aaaa"), 0o600); err != nil {
		t.Fatal(err)
	}

	first, err := Key(root)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Key(root)
	if err != nil {
		t.Fatal(err)
	}
	if first != again {
		t.Error("key of an unchanged tree must be stable")
	}

	// Change size and mtime.
	if err := os.WriteFile(file, []byte("aaaaaa"), 0o600); err != nil {
		t.Fatal(err)
	}
	changed, err := Key(root)
	if err != nil {
		t.Fatal(err)
	}
	if changed == first {
		t.Error("key should change when the tree changes")
	}
}

func TestPutGetClear(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	c := New(filepath.Join(t.TempDir(), "scan_cache.json"), fake)

	if _, ok := c.Get("k1"); ok {
		t.Error("empty cache reported a hit")
	}
	if err := c.Put(Entry{Key: "k1", Item: "item1", Score: 12, Verdict: "MEDIUM"}); err != nil {
		t.Fatal(err)
	}
	entry, ok := c.Get("k1")
	if !ok {
		t.Fatal("cache miss after Put")
	}
	if entry.Score != 12 || entry.Verdict != "MEDIUM" {
		t.Errorf("entry = %+v", entry)
	}

	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("k1"); ok {
		t.Error("hit after Clear")
	}
	// Clearing twice is not an error.
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
}

func TestEvictsOldestPastBound(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	c := New(filepath.Join(t.TempDir(), "scan_cache.json"), fake)

	for i := 0; i < maxEntries+5; i++ {
		fake.Advance(time.Second)
		if err := c.Put(Entry{Key: fmt.Sprintf("k%d", i), Item: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := c.Len(); got != maxEntries {
		t.Errorf("cache holds %d entries, want %d", got, maxEntries)
	}
	if _, ok := c.Get("k0"); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok := c.Get(fmt.Sprintf("k%d", maxEntries+4)); !ok {
		t.Error("newest entry missing")
	}
}

func TestPutSameKeyReplaces(t *testing.T) {
	fake := clock.NewFake(time.Now())
	c := New(filepath.Join(t.TempDir(), "scan_cache.json"), fake)

	c.Put(Entry{Key: "k1", Score: 5})
	c.Put(Entry{Key: "k1", Score: 7})
	entry, ok := c.Get("k1")
	if !ok || entry.Score != 7 {
		t.Errorf("entry = %+v, ok = %v", entry, ok)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}
