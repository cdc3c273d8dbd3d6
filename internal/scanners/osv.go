package scanners

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nomark/sigil/internal/pkg/logger"
	"github.com/nomark/sigil/internal/scan"
)

// OSV wraps osv-scanner, which checks manifests and lockfiles against
// the OSV vulnerability database.
type OSV struct {
	log  *logger.Logger
	path string
}

// NewOSV creates an osv-scanner adapter using the binary from PATH.
func NewOSV(log *logger.Logger) *OSV {
	return &OSV{log: log, path: "osv-scanner"}
}

func (o *OSV) Name() string { return "osv-scanner" }

func (o *OSV) Available() bool {
	_, err := exec.LookPath(o.path)
	return err == nil
}

// osvOutput is the subset of osv-scanner's JSON output we consume.
type osvOutput struct {
	Results []struct {
		Source struct {
			Path string `json:"path"`
		} `json:"source"`
		Packages []struct {
			Package struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"package"`
			Vulnerabilities []struct {
				ID      string `json:"id"`
				Summary string `json:"summary"`
			} `json:"vulnerabilities"`
		} `json:"packages"`
	} `json:"results"`
}

// Run executes osv-scanner recursively over the tree. The tool exits
// 1 when vulnerabilities are found; only other exit codes indicate an
// execution failure.
func (o *OSV) Run(ctx context.Context, root string) ([]scan.Finding, error) {
	args := []string{"--format", "json", "--recursive", root}
	cmd := exec.CommandContext(ctx, o.path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	o.log.Debugf("executing %s %s", o.path, strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return nil, fmt.Errorf("osv-scanner failed: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
	}

	var out osvOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("failed to parse osv-scanner output: %w", err)
	}

	var findings []scan.Finding
	for _, result := range out.Results {
		rel, err := filepath.Rel(root, result.Source.Path)
		if err != nil {
			rel = result.Source.Path
		}
		for _, pkg := range result.Packages {
			for _, vuln := range pkg.Vulnerabilities {
				findings = append(findings, scan.Finding{
					Phase:    scan.PhaseScanner,
					Rule:     vuln.ID,
					Severity: scan.SeverityHigh,
					File:     filepath.ToSlash(rel),
					Snippet:  fmt.Sprintf("%s %s: %s", pkg.Package.Name, pkg.Package.Version, vuln.Summary),
					Weight:   scan.WeightScannerCVE,
					Scanner:  o.Name(),
				})
			}
		}
	}
	return findings, nil
}
