package intel

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/nomark/sigil/internal/pkg/clock"
)

// tokenRecord is the on-disk token file. Tokens expire 60 minutes
// after issuance regardless of what the server reports; expiry is
// judged against the injected clock.
type tokenRecord struct {
	BearerToken string    `json:"bearer_token"`
	IssuedAt    time.Time `json:"issued_at"`
}

// TokenStore persists the cloud bearer token at a fixed path with
// owner-only permissions.
type TokenStore struct {
	path string
	ttl  time.Duration
	clk  clock.Clock
}

// NewTokenStore creates a token store over the given file path.
func NewTokenStore(path string, ttl time.Duration, clk clock.Clock) *TokenStore {
	return &TokenStore{path: path, ttl: ttl, clk: clk}
}

// Save writes the token file with mode 0600.
func (t *TokenStore) Save(token string) error {
	rec := tokenRecord{BearerToken: token, IssuedAt: t.clk.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(t.path, data, 0o600)
}

// Load returns the stored token, or "" if the file is missing,
// unreadable, or older than the TTL. A stale token reads as absent so
// the scan degrades to offline mode instead of failing.
func (t *TokenStore) Load() string {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return ""
	}
	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ""
	}
	if t.clk.Now().Sub(rec.IssuedAt) >= t.ttl {
		return ""
	}
	return rec.BearerToken
}

// Clear deletes the token file.
func (t *TokenStore) Clear() error {
	err := os.Remove(t.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
