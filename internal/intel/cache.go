package intel

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/nomark/sigil/internal/pkg/clock"
)

// signatureCache is the on-disk community signature set, keyed by
// fetch timestamp and compared against the injected clock.
type signatureCache struct {
	Signatures []Signature `json:"signatures"`
	FetchedAt  time.Time   `json:"fetched_at"`
}

// SignatureCache persists fetched signatures with a time-to-live.
type SignatureCache struct {
	path string
	ttl  time.Duration
	clk  clock.Clock
}

// NewSignatureCache creates a cache over the given file path.
func NewSignatureCache(path string, ttl time.Duration, clk clock.Clock) *SignatureCache {
	return &SignatureCache{path: path, ttl: ttl, clk: clk}
}

// Load returns the cached signatures, or (nil, false) if the cache is
// missing, corrupt, or older than the TTL.
func (c *SignatureCache) Load() ([]Signature, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, false
	}
	var cached signatureCache
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}
	if c.clk.Now().Sub(cached.FetchedAt) >= c.ttl {
		return nil, false
	}
	return cached.Signatures, true
}

// Save writes the signature set with the current fetch timestamp.
func (c *SignatureCache) Save(sigs []Signature) error {
	cached := signatureCache{Signatures: sigs, FetchedAt: c.clk.Now().UTC()}
	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}
