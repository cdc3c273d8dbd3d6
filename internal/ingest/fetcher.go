// Package ingest pulls untrusted code into quarantine: git clones,
// pip source distributions, and npm tarballs. Fetched content is only
// ever written, never executed.
package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/nomark/sigil/internal/pkg/errors"
	"github.com/nomark/sigil/internal/pkg/logger"
	"github.com/nomark/sigil/internal/quarantine"
)

// packageNamePattern admits pip and npm names, including npm scopes.
var packageNamePattern = regexp.MustCompile(`^@?[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// Fetcher downloads sources into the quarantine store.
type Fetcher struct {
	store    *quarantine.Store
	log      *logger.Logger
	timeout  time.Duration
	validate *validator.Validate
}

// NewFetcher creates a fetcher over the given store.
func NewFetcher(store *quarantine.Store, timeout time.Duration, log *logger.Logger) *Fetcher {
	v := validator.New()
	v.RegisterValidation("pkgname", func(fl validator.FieldLevel) bool {
		return packageNamePattern.MatchString(fl.Field().String())
	})
	return &Fetcher{store: store, log: log, timeout: timeout, validate: v}
}

type cloneRequest struct {
	URL string `validate:"required,url,startswith=http"`
}

type packageRequest struct {
	Name string `validate:"required,max=214,pkgname"`
}

// CloneRepo shallow-clones a git repository into a new quarantine
// item and returns its id.
func (f *Fetcher) CloneRepo(ctx context.Context, url string) (string, error) {
	if err := f.validate.Struct(cloneRequest{URL: url}); err != nil {
		return "", apperrors.Validation(fmt.Sprintf("invalid repository url %q", url))
	}

	id, dir, err := f.store.Create(url)
	if err != nil {
		return "", err
	}
	if err := f.run(ctx, "", "git", "clone", "--depth", "1", url, dir); err != nil {
		f.discard(id)
		return "", apperrors.Internal("git clone failed", err)
	}
	f.log.Infof("cloned %s into %s", url, id)
	return id, nil
}

// FetchPip downloads a PyPI source distribution into a new quarantine
// item and returns its id.
func (f *Fetcher) FetchPip(ctx context.Context, name string) (string, error) {
	if err := f.validate.Struct(packageRequest{Name: name}); err != nil {
		return "", apperrors.Validation(fmt.Sprintf("invalid package name %q", name))
	}

	id, dir, err := f.store.Create(name)
	if err != nil {
		return "", err
	}
	staging, err := os.MkdirTemp("", "sigil_pip_*")
	if err != nil {
		f.discard(id)
		return "", apperrors.Internal("creating staging directory", err)
	}
	defer os.RemoveAll(staging)

	if err := f.run(ctx, "", "pip", "download", "--no-deps", "--no-binary", ":all:", "--dest", staging, name); err != nil {
		f.discard(id)
		return "", apperrors.Internal("pip download failed", err)
	}
	if err := extractStaged(staging, dir); err != nil {
		f.discard(id)
		return "", err
	}
	f.log.Infof("fetched pip package %s into %s", name, id)
	return id, nil
}

// FetchNpm downloads an npm tarball into a new quarantine item and
// returns its id.
func (f *Fetcher) FetchNpm(ctx context.Context, name string) (string, error) {
	if err := f.validate.Struct(packageRequest{Name: name}); err != nil {
		return "", apperrors.Validation(fmt.Sprintf("invalid package name %q", name))
	}

	id, dir, err := f.store.Create(name)
	if err != nil {
		return "", err
	}
	staging, err := os.MkdirTemp("", "sigil_npm_*")
	if err != nil {
		f.discard(id)
		return "", apperrors.Internal("creating staging directory", err)
	}
	defer os.RemoveAll(staging)

	if err := f.run(ctx, staging, "npm", "pack", "--ignore-scripts", name); err != nil {
		f.discard(id)
		return "", apperrors.Internal("npm pack failed", err)
	}
	if err := extractStaged(staging, dir); err != nil {
		f.discard(id)
		return "", err
	}
	f.log.Infof("fetched npm package %s into %s", name, id)
	return id, nil
}

// run executes a fetch subprocess bounded by the fetcher timeout.
func (f *Fetcher) run(ctx context.Context, workDir, name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", name, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = workDir
	f.log.Debugf("executing %s %s", name, strings.Join(args, " "))

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// extractStaged unpacks every downloaded archive into the quarantine
// item directory.
func extractStaged(staging, dir string) error {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return apperrors.Internal("reading staging directory", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(staging, entry.Name())
		name := strings.ToLower(entry.Name())
		switch {
		case strings.HasSuffix(name, ".zip") || strings.HasSuffix(name, ".whl"):
			err = extractZip(src, dir)
		case strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz"):
			err = extractTarGz(src, dir)
		default:
			err = copyFile(src, filepath.Join(dir, entry.Name()))
		}
		if err != nil {
			return apperrors.Internal(fmt.Sprintf("extracting %s", entry.Name()), err)
		}
	}
	return nil
}

// discard cleans up a quarantine item after a failed fetch.
func (f *Fetcher) discard(id string) {
	if err := f.store.Reject(id); err != nil {
		f.log.WithError(err).Warnf("could not clean up failed ingest %s", id)
	}
}
