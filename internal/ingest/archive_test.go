package ingest

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func buildZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkg.zip")
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func buildTarGz(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkg.tar.gz")
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	gz.Close()
	out.Close()
	return path
}

func TestExtractZip(t *testing.T) {
	src := buildZip(t, map[string]string{
		"pkg/setup.py":      "from setuptools import setup\n",
		"pkg/src/main.py":   "print('ok')\n",
		"pkg/README.md":     "hello\n",
	})
	dest := t.TempDir()

	if err := extractZip(src, dest); err != nil {
		t.Fatalf("extractZip: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "pkg", "src", "main.py"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "print('ok')\n" {
		t.Errorf("extracted content = %q", data)
	}
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	src := buildZip(t, map[string]string{
		"../outside.txt": "escape\n",
	})
	base := t.TempDir()
	dest := filepath.Join(base, "dest")
	if err := os.Mkdir(dest, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := extractZip(src, dest); err == nil {
		t.Fatal("traversal entry extracted without error")
	}
	if _, err := os.Stat(filepath.Join(base, "outside.txt")); !os.IsNotExist(err) {
		t.Error("traversal entry escaped the extraction root")
	}
}

func TestExtractTarGz(t *testing.T) {
	src := buildTarGz(t, map[string]string{
		"package/package.json": `{"name": "x"}`,
		"package/index.js":     "module.exports = 1\n",
	})
	dest := t.TempDir()

	if err := extractTarGz(src, dest); err != nil {
		t.Fatalf("extractTarGz: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "package", "index.js")); err != nil {
		t.Errorf("extracted file missing: %v", err)
	}
}

func TestExtractTarGzRejectsTraversalAndAbsolute(t *testing.T) {
	for _, name := range []string{"../../evil.sh", "/etc/evil.sh"} {
		src := buildTarGz(t, map[string]string{name: "evil\n"})
		dest := t.TempDir()
		if err := extractTarGz(src, dest); err == nil {
			t.Errorf("entry %q extracted without error", name)
		}
	}
}

func TestSafeJoin(t *testing.T) {
	dest := filepath.Join(string(filepath.Separator), "quarantine", "item")
	if _, err := safeJoin(dest, "sub/file.txt"); err != nil {
		t.Errorf("safeJoin rejected a normal entry: %v", err)
	}
	for _, name := range []string{"../up", "a/../../up", "/abs"} {
		if _, err := safeJoin(dest, name); err == nil {
			t.Errorf("safeJoin(%q) succeeded, want error", name)
		}
	}
	if _, err := safeJoin(dest, "a/../b"); err != nil {
		t.Errorf("safeJoin rejected an entry that normalizes inside the root: %v", err)
	}
}
