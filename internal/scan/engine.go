package scan

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nomark/sigil/internal/pkg/logger"
)

// Extension allow-list for content scanning: source, script, and
// config file types. Files outside the list (and files over the size
// cap) are silently excluded from the content phases but still feed
// the provenance pass. Extensionless files below the cap are scanned
// too (scripts, Dockerfile, Makefile).
var scannableExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".mjs": true, ".cjs": true, ".rb": true, ".go": true, ".rs": true,
	".java": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true,
	".cs": true, ".php": true, ".pl": true, ".lua": true, ".swift": true,
	".kt": true, ".r": true,
	".sh": true, ".bash": true, ".zsh": true, ".ps1": true,
	".json": true, ".yml": true, ".yaml": true, ".toml": true,
	".cfg": true, ".ini": true, ".conf": true, ".env": true,
	".xml": true, ".html": true, ".css": true, ".md": true, ".rst": true,
	".txt": true, ".csv": true, ".lock": true, ".gradle": true,
	".cmake": true, ".mk": true,
}

// Directories never descended into.
var excludedDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true,
	".venv": true, "venv": true, ".tox": true, ".mypy_cache": true,
	"vendor": true, "dist": true, "build": true, "target": true,
	".idea": true, ".vscode": true,
}

// Path segments excluded by default as test/example/documentation
// content. An ignore file entry of the form "!segment" re-includes one.
var excludedSegments = map[string]bool{
	"test": true, "tests": true, "testdata": true,
	"example": true, "examples": true,
	"doc": true, "docs": true,
}

// fileEntry is one enumerated file, used by both the content phases
// and the provenance pass.
type fileEntry struct {
	rel  string
	abs  string
	size int64
}

// Engine walks a quarantined tree and applies the pattern table.
type Engine struct {
	log            *logger.Logger
	maxFileSize    int64
	ignoreFileName string
}

// NewEngine creates a phase detector engine.
func NewEngine(log *logger.Logger, maxFileSize int64, ignoreFileName string) *Engine {
	if maxFileSize <= 0 {
		maxFileSize = 5_000_000
	}
	if ignoreFileName == "" {
		ignoreFileName = ".sigilignore"
	}
	return &Engine{log: log, maxFileSize: maxFileSize, ignoreFileName: ignoreFileName}
}

// Scan runs all six phases over root. extraRules are applied with the
// same mechanics as the built-in table; the cloud client uses this to
// inject cached remote signatures. Findings come back sorted by
// (file, line, rule) so repeated scans of an unchanged tree produce
// byte-identical output.
func (e *Engine) Scan(root string, extraRules []Rule) (*Result, error) {
	start := time.Now()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	ignore := e.loadIgnore(root)

	result := &Result{StartedAt: start}

	entries, err := e.enumerate(root, ignore, result)
	if err != nil {
		return nil, err
	}

	rules := ContentRules
	if len(extraRules) > 0 {
		rules = append(append([]Rule{}, ContentRules...), extraRules...)
	}

	for _, entry := range entries {
		if !e.contentEligible(entry) {
			continue
		}
		findings, skip := scanFile(entry, rules)
		if skip != nil {
			result.Skipped = append(result.Skipped, *skip)
			continue
		}
		result.FilesScanned++
		result.Findings = append(result.Findings, findings...)
	}

	result.Findings = append(result.Findings, scanProvenance(root, entries)...)

	SortFindings(result.Findings)
	result.Duration = time.Since(start).Milliseconds()

	e.log.WithFields(map[string]interface{}{
		"root":     root,
		"files":    result.FilesScanned,
		"findings": len(result.Findings),
		"skipped":  len(result.Skipped),
	}).Debug("phase detection complete")

	return result, nil
}

// ScanSignatures applies only the given rules over root, with the
// same enumeration and matching mechanics as Scan but without the
// built-in table or the provenance pass. The cloud pass uses this to
// run cached remote signatures independently of local detection.
func (e *Engine) ScanSignatures(root string, rules []Rule) (*Result, error) {
	start := time.Now()

	ignore := e.loadIgnore(root)
	result := &Result{StartedAt: start}

	entries, err := e.enumerate(root, ignore, result)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !e.contentEligible(entry) {
			continue
		}
		findings, skip := scanFile(entry, rules)
		if skip != nil {
			result.Skipped = append(result.Skipped, *skip)
			continue
		}
		result.FilesScanned++
		result.Findings = append(result.Findings, findings...)
	}

	SortFindings(result.Findings)
	result.Duration = time.Since(start).Milliseconds()
	return result, nil
}

// SortFindings orders findings by file path, then line, then rule id.
// Report stability depends on this ordering.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		if findings[i].Line != findings[j].Line {
			return findings[i].Line < findings[j].Line
		}
		return findings[i].Rule < findings[j].Rule
	})
}

func (e *Engine) enumerate(root string, ignore *ignoreRules, result *Result) ([]fileEntry, error) {
	var entries []fileEntry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			rel, _ := filepath.Rel(root, path)
			result.Skipped = append(result.Skipped, SkipNote{Subject: rel, Reason: "unreadable"})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if ignore.excludesDir(d.Name(), rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ignore.excludesFile(rel) {
			return nil
		}

		fi, infoErr := d.Info()
		if infoErr != nil {
			result.Skipped = append(result.Skipped, SkipNote{Subject: rel, Reason: "unreadable"})
			return nil
		}
		entries = append(entries, fileEntry{rel: rel, abs: path, size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })
	return entries, nil
}

func (e *Engine) contentEligible(entry fileEntry) bool {
	if entry.size > e.maxFileSize {
		return false
	}
	ext := strings.ToLower(filepath.Ext(entry.rel))
	if scannableExtensions[ext] {
		return true
	}
	// Extensionless files are usually scripts or build files.
	return ext == ""
}

// scanFile applies every matching rule to every line of one file. A
// nil skip return means the file was scanned; otherwise the note says
// why it was not.
func scanFile(entry fileEntry, rules []Rule) ([]Finding, *SkipNote) {
	data, err := os.ReadFile(entry.abs)
	if err != nil {
		return nil, &SkipNote{Subject: entry.rel, Reason: "unreadable"}
	}
	if bytes.IndexByte(data, 0) != -1 {
		return nil, &SkipNote{Subject: entry.rel, Reason: "binary content"}
	}

	base := filepath.Base(entry.rel)
	var applicable []Rule
	for _, r := range rules {
		if r.appliesTo(base) {
			applicable = append(applicable, r)
		}
	}
	if len(applicable) == 0 {
		return nil, nil
	}

	var findings []Finding
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, rule := range applicable {
			if rule.Pattern.MatchString(line) {
				findings = append(findings, Finding{
					Phase:    rule.Phase,
					Rule:     rule.ID,
					Severity: rule.Severity,
					File:     entry.rel,
					Line:     lineNo,
					Snippet:  snippet(rule.Description, line),
					Weight:   rule.weight(),
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &SkipNote{Subject: entry.rel, Reason: "unparseable content"}
	}

	return findings, nil
}

func snippet(description, line string) string {
	line = strings.TrimSpace(line)
	if len(line) > 200 {
		line = line[:200] + " ..."
	}
	return description + ": " + line
}
