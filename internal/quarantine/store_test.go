package quarantine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nomark/sigil/internal/pkg/clock"
	apperrors "github.com/nomark/sigil/internal/pkg/errors"
	"github.com/nomark/sigil/internal/pkg/logger"
)

func newTestStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()
	base := t.TempDir()
	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store, err := NewStore(filepath.Join(base, "quarantine"), filepath.Join(base, "approved"), fake, logger.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, fake
}

func TestCreateAndList(t *testing.T) {
	store, _ := newTestStore(t)

	id, dir, err := store.Create("https://github.com/acme/widget")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !idPattern.MatchString(id) {
		t.Errorf("id %q does not match the id pattern", id)
	}
	if err := os.WriteFile(filepath.Join(dir, "setup.py"), []byte("print('hi')\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	items, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	item := items[0]
	if item.ID != id {
		t.Errorf("item id = %q, want %q", item.ID, id)
	}
	if item.Status != StatusQuarantined {
		t.Errorf("status = %s, want quarantined", item.Status)
	}
	if item.Source != "https://github.com/acme/widget" {
		t.Errorf("source = %q", item.Source)
	}
	if item.SizeBytes == 0 {
		t.Error("size should reflect directory contents")
	}
}

func TestCreateCollisionDisambiguates(t *testing.T) {
	store, _ := newTestStore(t)

	// Fake clock never advances, so both creations derive the same
	// timestamp-based id.
	first, _, err := store.Create("left-pad")
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, _, err := store.Create("left-pad")
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if first == second {
		t.Fatalf("colliding creations produced the same id %q", first)
	}
	if !idPattern.MatchString(second) {
		t.Errorf("disambiguated id %q does not match the id pattern", second)
	}
}

func TestApproveMovesItem(t *testing.T) {
	store, _ := newTestStore(t)

	id, dir, err := store.Create("pkg")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := store.Approve(id); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("quarantine path still exists after approve")
	}

	items, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Status != StatusApproved {
		t.Fatalf("items after approve = %+v", items)
	}

	// The second approve must fail cleanly.
	if err := store.Approve(id); err == nil {
		t.Error("second Approve succeeded, want error")
	}
}

func TestRejectDeletesItem(t *testing.T) {
	store, _ := newTestStore(t)

	id, dir, err := store.Create("pkg")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := store.Reject(id); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("quarantine path still exists after reject")
	}
	items, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("items after reject = %+v", items)
	}

	if err := store.Reject(id); !apperrors.IsNotFound(err) {
		t.Errorf("second Reject error = %v, want not found", err)
	}
}

func TestTraversalIDsRejected(t *testing.T) {
	store, _ := newTestStore(t)

	for _, id := range []string{"../escape", "..", "a/b", "/etc", "a..b/../c", "id with space"} {
		if err := store.Approve(id); err == nil {
			t.Errorf("Approve(%q) succeeded, want rejection", id)
		}
		if err := store.Reject(id); err == nil {
			t.Errorf("Reject(%q) succeeded, want rejection", id)
		}
	}
}

func TestUnknownIDNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Approve("20250601T120000_missing"); !apperrors.IsNotFound(err) {
		t.Errorf("Approve error = %v, want not found", err)
	}
	if _, err := store.Path("20250601T120000_missing"); !apperrors.IsNotFound(err) {
		t.Errorf("Path error = %v, want not found", err)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://github.com/acme/widget", "https_github_com_acme_widget"},
		{"left-pad", "left_pad"},
		{"Requests==2.31.0", "requests_2_31_0"},
		{"!!!", "item"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
