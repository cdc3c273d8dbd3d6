// Package cache memoizes scan results keyed by a content hash of the
// scanned tree, so re-scanning an unchanged quarantine item is
// instant. The key covers file paths, sizes, and modification times.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nomark/sigil/internal/pkg/clock"
)

// maxEntries bounds the cache file size; the oldest entries are
// evicted first.
const maxEntries = 100

// Entry is one cached scan outcome.
type Entry struct {
	Key      string    `json:"key"`
	Item     string    `json:"item"`
	Score    int       `json:"score"`
	Verdict  string    `json:"verdict"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache is a single-file JSON store of scan outcomes.
type Cache struct {
	path string
	clk  clock.Clock
}

// New creates a cache backed by the given file path.
func New(path string, clk clock.Clock) *Cache {
	return &Cache{path: path, clk: clk}
}

// Key hashes the tree's (path, size, mtime) triples. Any change to
// the tree produces a different key.
func Key(root string) (string, error) {
	type stamp struct {
		rel   string
		size  int64
		mtime int64
	}
	var stamps []stamp
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		stamps = append(stamps, stamp{rel: filepath.ToSlash(rel), size: info.Size(), mtime: info.ModTime().UnixNano()})
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].rel < stamps[j].rel })

	h := sha256.New()
	for _, s := range stamps {
		fmt.Fprintf(h, "%s\x00%d\x00%d\x00", s.rel, s.size, s.mtime)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the cached entry for key, if present.
func (c *Cache) Get(key string) (*Entry, bool) {
	entries := c.load()
	for i := range entries {
		if entries[i].Key == key {
			return &entries[i], true
		}
	}
	return nil, false
}

// Put records an entry, evicting the oldest entries past the size
// bound.
func (c *Cache) Put(entry Entry) error {
	entry.CachedAt = c.clk.Now().UTC()
	entries := c.load()

	kept := entries[:0]
	for _, e := range entries {
		if e.Key != entry.Key {
			kept = append(kept, e)
		}
	}
	kept = append(kept, entry)

	if len(kept) > maxEntries {
		sort.Slice(kept, func(i, j int) bool { return kept[i].CachedAt.Before(kept[j].CachedAt) })
		kept = kept[len(kept)-maxEntries:]
	}
	return c.save(kept)
}

// Clear removes the cache file.
func (c *Cache) Clear() error {
	err := os.Remove(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	return len(c.load())
}

func (c *Cache) load() []Entry {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

func (c *Cache) save(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}
