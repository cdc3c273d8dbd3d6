package intel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// Fingerprint computes a SHA-256 hash over the sorted sequence of
// (relative path, size) pairs in the tree. File contents are
// deliberately excluded so the hash cannot be reversed to recover
// source text.
func Fingerprint(root string) (string, error) {
	type pair struct {
		rel  string
		size int64
	}
	var pairs []pair
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		pairs = append(pairs, pair{rel: filepath.ToSlash(rel), size: info.Size()})
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].rel < pairs[j].rel })

	h := sha256.New()
	for _, p := range pairs {
		fmt.Fprintf(h, "%s\x00%d\x00", p.rel, p.size)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
