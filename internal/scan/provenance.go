package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provenance rules inspect filesystem and VCS metadata rather than file
// content, and carry individual weights between 1 and 3.

var binaryExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".bin": true, ".dat": true, ".o": true, ".a": true,
	".pyc": true, ".pyo": true, ".class": true, ".jar": true,
	".war": true, ".wasm": true, ".node": true,
}

var allowedDotfiles = map[string]bool{
	".gitignore": true, ".gitkeep": true, ".gitattributes": true,
	".editorconfig": true, ".sigilignore": true,
}

var suspiciousNameParts = []string{
	"backdoor", "exploit", "payload", "reverse_shell",
	"keylogger", "stealer", "trojan", "rootkit", "c2_", "c2-",
}

var expectedBinaryDirs = []string{"bin/", "dist/", "build/", "node_modules/", "target/", "__pycache__/"}

const largeFileBytes = 5_000_000

func scanProvenance(root string, entries []fileEntry) []Finding {
	var findings []Finding

	prov := func(rule string, severity Severity, file, desc string, weight int) {
		findings = append(findings, Finding{
			Phase:    PhaseProvenance,
			Rule:     rule,
			Severity: severity,
			File:     file,
			Snippet:  desc,
			Weight:   weight,
		})
	}

	for _, entry := range entries {
		base := filepath.Base(entry.rel)

		if strings.HasPrefix(base, ".") && !allowedDotfiles[base] {
			prov("PROV-001", SeverityLow, entry.rel, "hidden file: "+base, 1)
		}

		ext := strings.ToLower(filepath.Ext(base))
		if binaryExtensions[ext] && !inExpectedBinaryDir(entry.rel) {
			prov("PROV-002", SeverityMedium, entry.rel, "binary file in unexpected location: "+base, 2)
		}

		if isSuspiciousName(base) {
			prov("PROV-003", SeverityHigh, entry.rel, "suspicious filename: "+base, 3)
		}

		if entry.size > largeFileBytes {
			prov("PROV-004", SeverityLow, entry.rel, fmt.Sprintf("large file: %d bytes", entry.size), 1)
		}

		if strings.HasSuffix(base, ".min.js") || strings.HasSuffix(base, ".min.css") {
			prov("PROV-007", SeverityLow, entry.rel, "minified file, harder to audit", 1)
		}
	}

	gitDir := filepath.Join(root, ".git")
	if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
		if _, err := os.Stat(filepath.Join(gitDir, "shallow")); err == nil {
			prov("PROV-005", SeverityLow, ".git/shallow", "shallow clone, limited git history available", 1)
		}
	} else if hasManifest(root) {
		prov("PROV-006", SeverityMedium, ".", "no .git directory, provenance cannot be verified via git history", 2)
	}

	return findings
}

func inExpectedBinaryDir(rel string) bool {
	for _, dir := range expectedBinaryDirs {
		if strings.HasPrefix(rel, dir) {
			return true
		}
	}
	return false
}

func isSuspiciousName(base string) bool {
	lower := strings.ToLower(base)
	for _, part := range suspiciousNameParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func hasManifest(root string) bool {
	for _, m := range []string{"package.json", "setup.py", "pyproject.toml", "go.mod", "Cargo.toml"} {
		if _, err := os.Stat(filepath.Join(root, m)); err == nil {
			return true
		}
	}
	return false
}
