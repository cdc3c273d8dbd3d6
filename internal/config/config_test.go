package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scan.Workers < 1 {
		t.Errorf("workers = %d, want >= 1", cfg.Scan.Workers)
	}
	if cfg.Scan.MaxFileSize != 5_000_000 {
		t.Errorf("max file size = %d", cfg.Scan.MaxFileSize)
	}
	if cfg.Cloud.TokenTTL != 60*time.Minute {
		t.Errorf("token ttl = %s", cfg.Cloud.TokenTTL)
	}
	if cfg.Cloud.SignatureTTL != 24*time.Hour {
		t.Errorf("signature ttl = %s", cfg.Cloud.SignatureTTL)
	}
	if cfg.Scan.IgnoreFileName != ".sigilignore" {
		t.Errorf("ignore file = %s", cfg.Scan.IgnoreFileName)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SIGIL_HOME", home)
	t.Setenv("SIGIL_WORKERS", "3")
	t.Setenv("SIGIL_TOKEN_TTL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.QuarantineRoot != filepath.Join(home, "quarantine") {
		t.Errorf("quarantine root = %s", cfg.Paths.QuarantineRoot)
	}
	if cfg.Paths.TokenFile != filepath.Join(home, "token.json") {
		t.Errorf("token file = %s", cfg.Paths.TokenFile)
	}
	if cfg.Scan.Workers != 3 {
		t.Errorf("workers = %d, want 3", cfg.Scan.Workers)
	}
	if cfg.Cloud.TokenTTL != 30*time.Minute {
		t.Errorf("token ttl = %s", cfg.Cloud.TokenTTL)
	}
}

func TestValidateRejectsSharedRoots(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SIGIL_QUARANTINE_DIR", dir)
	t.Setenv("SIGIL_APPROVED_DIR", dir)

	if _, err := Load(); err == nil {
		t.Error("Load accepted identical quarantine and approved roots")
	}
}

func TestBadEnvValuesFallBack(t *testing.T) {
	t.Setenv("SIGIL_WORKERS", "not-a-number")
	t.Setenv("SIGIL_HTTP_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scan.Workers < 1 {
		t.Errorf("workers = %d", cfg.Scan.Workers)
	}
	if cfg.Cloud.HTTPTimeout != 30*time.Second {
		t.Errorf("http timeout = %s", cfg.Cloud.HTTPTimeout)
	}
}
