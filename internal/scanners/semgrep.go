package scanners

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nomark/sigil/internal/pkg/logger"
	"github.com/nomark/sigil/internal/scan"
)

// Semgrep wraps the semgrep static analysis tool.
type Semgrep struct {
	log  *logger.Logger
	path string
}

// NewSemgrep creates a semgrep adapter using the binary from PATH.
func NewSemgrep(log *logger.Logger) *Semgrep {
	return &Semgrep{log: log, path: "semgrep"}
}

func (s *Semgrep) Name() string { return "semgrep" }

func (s *Semgrep) Available() bool {
	_, err := exec.LookPath(s.path)
	return err == nil
}

// semgrepOutput is the subset of semgrep's JSON output we consume.
type semgrepOutput struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		Extra struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
		} `json:"extra"`
	} `json:"results"`
}

// Run executes semgrep with the auto config. Semgrep exits non-zero
// when invoked with --error and findings exist; treat any exit status
// accompanied by parseable JSON as success.
func (s *Semgrep) Run(ctx context.Context, root string) ([]scan.Finding, error) {
	args := []string{"scan", "--config", "auto", "--json", "--quiet", root}
	cmd := exec.CommandContext(ctx, s.path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.log.Debugf("executing %s %s", s.path, strings.Join(args, " "))

	runErr := cmd.Run()

	var out semgrepOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("semgrep failed: %w: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("failed to parse semgrep output: %w", err)
	}

	var findings []scan.Finding
	for _, r := range out.Results {
		rel, err := filepath.Rel(root, r.Path)
		if err != nil {
			rel = r.Path
		}
		findings = append(findings, scan.Finding{
			Phase:    scan.PhaseScanner,
			Rule:     r.CheckID,
			Severity: semgrepSeverity(r.Extra.Severity),
			File:     filepath.ToSlash(rel),
			Line:     r.Start.Line,
			Snippet:  r.Extra.Message,
			Weight:   scan.WeightScannerPattern,
			Scanner:  s.Name(),
		})
	}
	return findings, nil
}

func semgrepSeverity(s string) scan.Severity {
	switch strings.ToUpper(s) {
	case "ERROR":
		return scan.SeverityHigh
	case "WARNING":
		return scan.SeverityMedium
	default:
		return scan.SeverityLow
	}
}
