package scan

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ignoreRules holds the merged exclusion set for one scan: the built-in
// defaults plus the user-supplied ignore file at the scanned root.
// Plain lines add exclusion globs; "!name" re-includes a default
// test/example/doc segment.
type ignoreRules struct {
	patterns  []string
	reinclude map[string]bool
}

func (e *Engine) loadIgnore(root string) *ignoreRules {
	ig := &ignoreRules{reinclude: map[string]bool{}}

	f, err := os.Open(filepath.Join(root, e.ignoreFileName))
	if err != nil {
		return ig
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if name, ok := strings.CutPrefix(line, "!"); ok {
			ig.reinclude[strings.TrimSpace(name)] = true
			continue
		}
		ig.patterns = append(ig.patterns, filepath.ToSlash(line))
	}
	return ig
}

func (ig *ignoreRules) excludesDir(name, rel string) bool {
	if excludedDirs[name] {
		return true
	}
	if excludedSegments[name] && !ig.reinclude[name] {
		return true
	}
	return ig.matches(rel) || ig.matches(name)
}

func (ig *ignoreRules) excludesFile(rel string) bool {
	return ig.matches(rel) || ig.matches(filepath.Base(rel))
}

func (ig *ignoreRules) matches(candidate string) bool {
	for _, p := range ig.patterns {
		if ok, err := filepath.Match(p, candidate); err == nil && ok {
			return true
		}
	}
	return false
}
