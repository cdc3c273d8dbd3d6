package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nomark/sigil/internal/pkg/clock"
	"github.com/nomark/sigil/internal/pkg/logger"
	"github.com/nomark/sigil/internal/quarantine"
)

func newTestFetcher(t *testing.T) (*Fetcher, *quarantine.Store) {
	t.Helper()
	base := t.TempDir()
	store, err := quarantine.NewStore(
		filepath.Join(base, "quarantine"),
		filepath.Join(base, "approved"),
		clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		logger.Nop(),
	)
	if err != nil {
		t.Fatal(err)
	}
	return NewFetcher(store, time.Minute, logger.Nop()), store
}

func TestFetcherRejectsMalformedInput(t *testing.T) {
	f, store := newTestFetcher(t)
	ctx := context.Background()

	if _, err := f.CloneRepo(ctx, "not a url"); err == nil {
		t.Error("CloneRepo accepted a malformed url")
	}
	if _, err := f.CloneRepo(ctx, "file:///etc/passwd"); err == nil {
		t.Error("CloneRepo accepted a non-http url")
	}
	if _, err := f.FetchPip(ctx, "bad name!"); err == nil {
		t.Error("FetchPip accepted a malformed package name")
	}
	if _, err := f.FetchNpm(ctx, "-starts-with-dash"); err == nil {
		t.Error("FetchNpm accepted a malformed package name")
	}

	// Validation happens before any filesystem side effect.
	items, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("rejected inputs created quarantine items: %+v", items)
	}
}

func TestFetcherAcceptsWellFormedNames(t *testing.T) {
	f, _ := newTestFetcher(t)

	for _, name := range []string{"left-pad", "requests", "@scope/pkg", "zope.interface"} {
		if err := f.validate.Struct(packageRequest{Name: name}); err != nil {
			t.Errorf("package name %q rejected: %v", name, err)
		}
	}
}
