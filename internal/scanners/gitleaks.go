package scanners

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nomark/sigil/internal/pkg/logger"
	"github.com/nomark/sigil/internal/scan"
)

// Gitleaks wraps the gitleaks secret scanner.
type Gitleaks struct {
	log  *logger.Logger
	path string
}

// NewGitleaks creates a gitleaks adapter using the binary from PATH.
func NewGitleaks(log *logger.Logger) *Gitleaks {
	return &Gitleaks{log: log, path: "gitleaks"}
}

func (g *Gitleaks) Name() string { return "gitleaks" }

func (g *Gitleaks) Available() bool {
	_, err := exec.LookPath(g.path)
	return err == nil
}

// gitleaksFinding is one entry of the gitleaks JSON report.
type gitleaksFinding struct {
	RuleID      string `json:"RuleID"`
	Description string `json:"Description"`
	File        string `json:"File"`
	StartLine   int    `json:"StartLine"`
	Secret      string `json:"Secret"`
}

// Run executes gitleaks in no-git mode against the tree. Gitleaks
// exits 1 to signal "leaks found", which is a successful scan, not a
// failure.
func (g *Gitleaks) Run(ctx context.Context, root string) ([]scan.Finding, error) {
	// Each invocation gets its own report file: concurrent runs in one
	// process must never read or delete each other's output.
	tmp, err := os.CreateTemp("", "gitleaks_*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create gitleaks report file: %w", err)
	}
	report := tmp.Name()
	tmp.Close()
	defer os.Remove(report)

	args := []string{"detect", "--no-git", "--source", root, "--report-format", "json", "--report-path", report, "--exit-code", "1"}
	cmd := exec.CommandContext(ctx, g.path, args...)

	g.log.Debugf("executing %s %s", g.path, strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return nil, fmt.Errorf("gitleaks failed: %w", err)
		}
	}

	data, err := os.ReadFile(report)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read gitleaks report: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var leaks []gitleaksFinding
	if err := json.Unmarshal(data, &leaks); err != nil {
		return nil, fmt.Errorf("failed to parse gitleaks report: %w", err)
	}

	var findings []scan.Finding
	for _, leak := range leaks {
		rel, err := filepath.Rel(root, leak.File)
		if err != nil {
			rel = leak.File
		}
		findings = append(findings, scan.Finding{
			Phase:    scan.PhaseScanner,
			Rule:     leak.RuleID,
			Severity: scan.SeverityHigh,
			File:     filepath.ToSlash(rel),
			Line:     leak.StartLine,
			Snippet:  leak.Description,
			Weight:   scan.WeightScannerSecret,
			Scanner:  g.Name(),
		})
	}
	return findings, nil
}
