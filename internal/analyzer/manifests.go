// Package analyzer inspects dependency manifests and privilege
// surfaces: unpinned versions, elevated containers, CI secret
// exposure, and overly broad agent tool grants.
package analyzer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nomark/sigil/internal/pkg/logger"
	"github.com/nomark/sigil/internal/scan"
)

// Analyzer walks a quarantined tree for manifest and permission
// findings.
type Analyzer struct {
	log *logger.Logger
}

// New creates an analyzer.
func New(log *logger.Logger) *Analyzer {
	return &Analyzer{log: log}
}

// Analyze runs both the manifest and permission passes.
func (a *Analyzer) Analyze(root string) ([]scan.Finding, error) {
	var findings []scan.Finding

	manifest, err := a.analyzeManifests(root)
	if err != nil {
		return nil, err
	}
	findings = append(findings, manifest...)

	perms, err := a.analyzePermissions(root)
	if err != nil {
		return nil, err
	}
	findings = append(findings, perms...)

	scan.SortFindings(findings)
	return findings, nil
}

func (a *Analyzer) analyzeManifests(root string) ([]scan.Finding, error) {
	var findings []scan.Finding

	err := walkTree(root, func(rel, abs string) {
		base := filepath.Base(rel)
		switch {
		case base == "requirements.txt" || strings.HasPrefix(base, "requirements-") && strings.HasSuffix(base, ".txt"):
			findings = append(findings, analyzeRequirements(rel, abs)...)
		case base == "package.json":
			findings = append(findings, analyzePackageJSON(rel, abs)...)
		case base == "Pipfile":
			findings = append(findings, analyzePipfile(rel, abs)...)
		}
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}

// analyzeRequirements flags pip specifiers that are not pinned to an
// exact version.
func analyzeRequirements(rel, abs string) []scan.Finding {
	file, err := os.Open(abs)
	if err != nil {
		return nil
	}
	defer file.Close()

	var findings []scan.Finding
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if !strings.Contains(line, "==") {
			findings = append(findings, unpinnedFinding(rel, lineNo, line))
		}
	}
	return findings
}

// analyzePackageJSON flags npm ranges (^, ~, *, >=, latest) in
// dependencies and devDependencies.
func analyzePackageJSON(rel, abs string) []scan.Finding {
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil
	}
	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil
	}

	// Map iteration order is random; walk names sorted so repeated
	// scans order identically.
	var findings []scan.Finding
	for _, deps := range []map[string]string{manifest.Dependencies, manifest.DevDependencies} {
		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if npmRangeUnpinned(deps[name]) {
				findings = append(findings, unpinnedFinding(rel, 0, name+"@"+deps[name]))
			}
		}
	}
	return findings
}

func npmRangeUnpinned(version string) bool {
	v := strings.TrimSpace(version)
	if v == "" || v == "*" || v == "latest" {
		return true
	}
	return strings.ContainsAny(string(v[0]), "^~><")
}

// analyzePipfile flags "*" and range constraints in [packages] and
// [dev-packages].
func analyzePipfile(rel, abs string) []scan.Finding {
	file, err := os.Open(abs)
	if err != nil {
		return nil
	}
	defer file.Close()

	var findings []scan.Finding
	scanner := bufio.NewScanner(file)
	inPackages := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inPackages = line == "[packages]" || line == "[dev-packages]"
			continue
		}
		if !inPackages || line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, constraint, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		constraint = strings.Trim(strings.TrimSpace(constraint), `"`)
		if constraint == "*" || strings.HasPrefix(constraint, "^") || strings.HasPrefix(constraint, "~") || strings.HasPrefix(constraint, ">") {
			findings = append(findings, unpinnedFinding(rel, lineNo, strings.TrimSpace(name)+" = "+constraint))
		}
	}
	return findings
}

func unpinnedFinding(rel string, line int, spec string) scan.Finding {
	return scan.Finding{
		Phase:    scan.PhaseDependency,
		Rule:     "DEP-UNPINNED",
		Severity: scan.SeverityLow,
		File:     rel,
		Line:     line,
		Snippet:  fmt.Sprintf("unpinned version specifier: %s", spec),
		Weight:   scan.WeightDependency,
	}
}

// walkTree visits regular files under root with slash-separated
// relative paths, skipping dependency directories.
func walkTree(root string, visit func(rel, abs string)) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "node_modules", "vendor", "__pycache__", ".venv", "venv":
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		visit(filepath.ToSlash(rel), path)
		return nil
	})
}
