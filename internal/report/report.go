// Package report persists scan reports and renders the human-readable
// summary. Reports are append-only history: a new scan of the same
// item never overwrites a prior report.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nomark/sigil/internal/pkg/clock"
	apperrors "github.com/nomark/sigil/internal/pkg/errors"
	"github.com/nomark/sigil/internal/scan"
	"github.com/nomark/sigil/internal/scoring"
)

// Report is the persisted result of one scan.
type Report struct {
	Item         string          `json:"item"`
	Source       string          `json:"source,omitempty"`
	Score        int             `json:"score"`
	Verdict      scoring.Verdict `json:"verdict"`
	PhaseCounts  map[string]int  `json:"phase_counts"`
	Findings     []scan.Finding  `json:"findings"`
	Skipped      []scan.SkipNote `json:"skipped,omitempty"`
	ScannersUsed []string        `json:"scanners_used"`
	CloudStatus  string          `json:"cloud_status"`
	FilesScanned int             `json:"files_scanned"`
	StartedAt    time.Time       `json:"started_at"`
	DurationMS   int64           `json:"duration_ms"`
}

// New assembles a report from scan output. scannersUsed names the
// external tools that actually completed; cloudStatus records whether
// the cloud pass enriched, degraded, or was skipped.
func New(item, source string, result *scan.Result, scannersUsed []string, cloudStatus string, score int, verdict scoring.Verdict) *Report {
	counts := make(map[string]int)
	for _, f := range result.Findings {
		counts[string(f.Phase)]++
	}
	return &Report{
		Item:         item,
		Source:       source,
		Score:        score,
		Verdict:      verdict,
		PhaseCounts:  counts,
		Findings:     result.Findings,
		Skipped:      result.Skipped,
		ScannersUsed: scannersUsed,
		CloudStatus:  cloudStatus,
		FilesScanned: result.FilesScanned,
		StartedAt:    result.StartedAt.UTC(),
		DurationMS:   result.Duration,
	}
}

// Writer persists reports under a directory.
type Writer struct {
	dir string
	clk clock.Clock
}

// NewWriter creates a report writer, creating the directory if
// needed.
func NewWriter(dir string, clk clock.Clock) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperrors.Internal("creating report directory", err)
	}
	return &Writer{dir: dir, clk: clk}, nil
}

// Write persists the report as <item>_<timestamp>.json and returns
// the path. An existing file is never truncated; collisions get a
// numeric suffix.
func (w *Writer) Write(rep *Report) (string, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", apperrors.Internal("encoding report", err)
	}

	stamp := w.clk.Now().UTC().Format("20060102T150405")
	base := fmt.Sprintf("%s_%s", rep.Item, stamp)
	for attempt := 0; ; attempt++ {
		name := base + ".json"
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d.json", base, attempt)
		}
		path := filepath.Join(w.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", apperrors.Internal("writing report", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", apperrors.Internal("writing report", err)
		}
		if err := f.Close(); err != nil {
			return "", apperrors.Internal("writing report", err)
		}
		return path, nil
	}
}

// Render writes the human-readable summary: per-phase counts, the
// total score and verdict, and which collaborators ran versus were
// skipped.
func Render(out io.Writer, rep *Report) {
	fmt.Fprintf(out, "scan report for %s\n", rep.Item)
	if rep.Source != "" {
		fmt.Fprintf(out, "source: %s\n", rep.Source)
	}
	fmt.Fprintf(out, "files scanned: %d\n", rep.FilesScanned)
	if len(rep.ScannersUsed) > 0 {
		fmt.Fprintf(out, "scanners used: %s\n", strings.Join(rep.ScannersUsed, ", "))
	} else {
		fmt.Fprintln(out, "scanners used: none")
	}
	if rep.CloudStatus != "" {
		fmt.Fprintf(out, "cloud: %s\n", rep.CloudStatus)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PHASE\tFINDINGS")
	phases := make([]string, 0, len(rep.PhaseCounts))
	for phase := range rep.PhaseCounts {
		phases = append(phases, phase)
	}
	sort.Strings(phases)
	for _, phase := range phases {
		fmt.Fprintf(tw, "%s\t%d\n", scan.Phase(phase).Display(), rep.PhaseCounts[phase])
	}
	tw.Flush()

	if len(rep.Skipped) > 0 {
		fmt.Fprintln(out, "\nskipped:")
		for _, skip := range rep.Skipped {
			fmt.Fprintf(out, "  %s: %s\n", skip.Subject, skip.Reason)
		}
	}

	fmt.Fprintf(out, "\nscore: %d\nverdict: %s\n", rep.Score, rep.Verdict)
}
