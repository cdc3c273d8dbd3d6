package report

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nomark/sigil/internal/pkg/clock"
	"github.com/nomark/sigil/internal/scan"
	"github.com/nomark/sigil/internal/scoring"
)

func sampleResult() *scan.Result {
	return &scan.Result{
		Findings: []scan.Finding{
			{Phase: scan.PhaseInstallHooks, Rule: "INSTALL-003", File: "package.json", Line: 4, Weight: 10},
			{Phase: scan.PhaseCredentials, Rule: "CRED-004", File: "deploy.sh", Line: 12, Weight: 2},
		},
		Skipped:      []scan.SkipNote{{Subject: "semgrep", Reason: "not installed"}},
		FilesScanned: 9,
		StartedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Duration:     41,
	}
}

func TestWritePersistsReport(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC))
	writer, err := NewWriter(t.TempDir(), clk)
	if err != nil {
		t.Fatal(err)
	}

	rep := New("20250601T120000_pkg", "pkg", sampleResult(), []string{"gitleaks"}, "skipped, unauthenticated", 12, scoring.VerdictMedium)
	path, err := writer.Write(rep)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasSuffix(path, "20250601T120000_pkg_20250601T120001.json") {
		t.Errorf("report path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got Report
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Score != 12 || got.Verdict != scoring.VerdictMedium {
		t.Errorf("persisted report = %+v", got)
	}
	if got.PhaseCounts["install_hooks"] != 1 || got.PhaseCounts["credentials"] != 1 {
		t.Errorf("phase counts = %+v", got.PhaseCounts)
	}
	if len(got.ScannersUsed) != 1 || got.ScannersUsed[0] != "gitleaks" {
		t.Errorf("scanners used = %+v", got.ScannersUsed)
	}
	if got.CloudStatus != "skipped, unauthenticated" {
		t.Errorf("cloud status = %q", got.CloudStatus)
	}
}

func TestWriteNeverOverwrites(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	writer, err := NewWriter(t.TempDir(), clk)
	if err != nil {
		t.Fatal(err)
	}

	rep := New("item", "", sampleResult(), nil, "", 12, scoring.VerdictMedium)
	first, err := writer.Write(rep)
	if err != nil {
		t.Fatal(err)
	}
	// Same item, same second: the second report must land in a new
	// file.
	second, err := writer.Write(rep)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("second write reused %s", first)
	}
	for _, path := range []string{first, second} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("report %s missing: %v", path, err)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	rep := New("item", "left-pad", sampleResult(), []string{"gitleaks", "osv-scanner"}, "skipped, unauthenticated", 12, scoring.VerdictMedium)

	var buf bytes.Buffer
	Render(&buf, rep)
	out := buf.String()

	for _, want := range []string{
		"scan report for item",
		"source: left-pad",
		"files scanned: 9",
		"scanners used: gitleaks, osv-scanner",
		"cloud: skipped, unauthenticated",
		"Install Hooks",
		"semgrep: not installed",
		"score: 12",
		"verdict: MEDIUM",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered report missing %q:\n%s", want, out)
		}
	}
}
