// Package quarantine manages the isolated directory store holding
// unreviewed code. Nothing inside the store is ever executed.
package quarantine

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nomark/sigil/internal/pkg/clock"
	apperrors "github.com/nomark/sigil/internal/pkg/errors"
	"github.com/nomark/sigil/internal/pkg/logger"
)

// Status of a quarantined item.
type Status string

const (
	StatusQuarantined Status = "quarantined"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

// Item describes one entry in the store.
type Item struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
	Status    Status    `json:"status"`
}

// metadata is the sidecar persisted under <root>/.meta/<id>.json.
type metadata struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

const metaDir = ".meta"

// Store is a directory-backed quarantine. Each item occupies exactly
// one directory, under exactly one of the quarantine or approved
// roots at any time.
type Store struct {
	root     string
	approved string
	clk      clock.Clock
	log      *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store over the given roots, creating them if
// needed.
func NewStore(root, approved string, clk clock.Clock, log *logger.Logger) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, metaDir), approved, filepath.Join(approved, metaDir)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, apperrors.Internal("creating quarantine directories", err)
		}
	}
	return &Store{
		root:     root,
		approved: approved,
		clk:      clk,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// lockFor serializes mutations per item id. Unrelated items remain
// concurrently accessible.
func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Create allocates a new item directory for the given source
// descriptor and returns its id and absolute path. The caller fills
// the directory before scanning.
func (s *Store) Create(source string) (string, string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", "", apperrors.Validation("source descriptor must not be empty")
	}

	id := s.clk.Now().UTC().Format("20060102T150405") + "_" + slugify(source)
	if !idPattern.MatchString(id) {
		return "", "", apperrors.Validation(fmt.Sprintf("derived quarantine id %q is invalid", id))
	}
	dir := filepath.Join(s.root, id)
	if _, err := os.Stat(dir); err == nil {
		// Same source within the same second: disambiguate rather
		// than overwrite.
		id = id + "_" + strings.ReplaceAll(uuid.New().String()[:8], "-", "")
		dir = filepath.Join(s.root, id)
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Mkdir(dir, 0o700); err != nil {
		if os.IsExist(err) {
			return "", "", apperrors.Conflict(fmt.Sprintf("quarantine item %s already exists", id))
		}
		return "", "", apperrors.Internal("creating quarantine item", err)
	}
	meta := metadata{ID: id, Source: source, CreatedAt: s.clk.Now().UTC(), Status: StatusQuarantined}
	if err := s.writeMeta(s.root, meta); err != nil {
		os.RemoveAll(dir)
		return "", "", err
	}
	s.log.Infof("quarantined %s as %s", source, id)
	return id, dir, nil
}

// Path resolves the on-disk directory for a quarantined id, verifying
// it is a strict descendant of the quarantine root.
func (s *Store) Path(id string) (string, error) {
	return s.resolve(s.root, id)
}

// Approve atomically moves an item from the quarantine root to the
// approved root. A second approve of the same id fails cleanly.
func (s *Store) Approve(id string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	dir, err := s.resolve(s.root, id)
	if err != nil {
		return err
	}
	dest := filepath.Join(s.approved, id)
	if _, err := os.Stat(dest); err == nil {
		return apperrors.Conflict(fmt.Sprintf("item %s already approved", id))
	}
	if err := os.Rename(dir, dest); err != nil {
		return apperrors.Internal("moving item to approved root", err)
	}
	meta, err := s.readMeta(s.root, id)
	if err == nil {
		meta.Status = StatusApproved
		if werr := s.writeMeta(s.approved, meta); werr == nil {
			os.Remove(s.metaPath(s.root, id))
		}
	}
	s.log.Infof("approved %s", id)
	return nil
}

// Reject irreversibly deletes an item from the quarantine root.
func (s *Store) Reject(id string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	dir, err := s.resolve(s.root, id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return apperrors.Internal("deleting rejected item", err)
	}
	os.Remove(s.metaPath(s.root, id))
	s.log.Infof("rejected %s", id)
	return nil
}

// List returns every item under both roots, oldest first.
func (s *Store) List() ([]Item, error) {
	var items []Item
	for _, loc := range []struct {
		root   string
		status Status
	}{
		{s.root, StatusQuarantined},
		{s.approved, StatusApproved},
	} {
		entries, err := os.ReadDir(loc.root)
		if err != nil {
			return nil, apperrors.Internal("reading quarantine root", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() || entry.Name() == metaDir {
				continue
			}
			item := Item{ID: entry.Name(), Status: loc.status}
			if meta, err := s.readMeta(loc.root, entry.Name()); err == nil {
				item.Source = meta.Source
				item.CreatedAt = meta.CreatedAt
			}
			item.SizeBytes = dirSize(filepath.Join(loc.root, entry.Name()))
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// resolve canonicalizes <root>/<id> and verifies the result is a
// strict descendant of root. Any escape is a hard error with no
// filesystem change.
func (s *Store) resolve(root, id string) (string, error) {
	if !idPattern.MatchString(id) {
		return "", apperrors.PathSafety(fmt.Sprintf("invalid quarantine id %q", id))
	}
	canonicalRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", apperrors.Internal("resolving quarantine root", err)
	}
	dir := filepath.Join(canonicalRoot, id)
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.NotFound(fmt.Sprintf("quarantine item %s", id))
		}
		return "", apperrors.Internal("resolving item path", err)
	}
	if resolved == canonicalRoot || !strings.HasPrefix(resolved, canonicalRoot+string(filepath.Separator)) {
		return "", apperrors.PathSafety(fmt.Sprintf("item %s resolves outside the quarantine root", id))
	}
	return resolved, nil
}

func (s *Store) metaPath(root, id string) string {
	return filepath.Join(root, metaDir, id+".json")
}

func (s *Store) writeMeta(root string, meta metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperrors.Internal("encoding item metadata", err)
	}
	if err := os.WriteFile(s.metaPath(root, meta.ID), data, 0o600); err != nil {
		return apperrors.Internal("writing item metadata", err)
	}
	return nil
}

func (s *Store) readMeta(root, id string) (metadata, error) {
	var meta metadata
	data, err := os.ReadFile(s.metaPath(root, id))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

// slugify reduces a source descriptor to the id-safe alphabet.
func slugify(source string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(source) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	slug := strings.Trim(b.String(), "_")
	if len(slug) > 40 {
		slug = slug[:40]
		slug = strings.Trim(slug, "_")
	}
	if slug == "" {
		slug = "item"
	}
	return slug
}

func dirSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
