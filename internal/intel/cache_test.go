package intel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nomark/sigil/internal/pkg/clock"
)

func TestSignatureCacheTTL(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	cache := NewSignatureCache(filepath.Join(t.TempDir(), "signatures.json"), 24*time.Hour, fake)

	if _, ok := cache.Load(); ok {
		t.Error("empty cache reported a hit")
	}

	sigs := []Signature{{ID: "001", Pattern: `curl.+\|\s*sh`, Description: "pipe to shell", Severity: "high", Weight: 5}}
	if err := cache.Save(sigs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fake.Advance(23 * time.Hour)
	got, ok := cache.Load()
	if !ok {
		t.Fatal("cache expired before 24h")
	}
	if len(got) != 1 || got[0].ID != "001" {
		t.Errorf("Load = %+v", got)
	}

	fake.Advance(time.Hour)
	if _, ok := cache.Load(); ok {
		t.Error("cache still fresh at 24h")
	}
}

func TestSignatureCacheCorruptFileIsMiss(t *testing.T) {
	fake := clock.NewFake(time.Now())
	path := filepath.Join(t.TempDir(), "signatures.json")
	cache := NewSignatureCache(path, 24*time.Hour, fake)

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Load(); ok {
		t.Error("corrupt cache reported a hit")
	}
}
