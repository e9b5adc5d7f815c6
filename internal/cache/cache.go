// Package cache persists per-revision operator results.
//
// Layout under the cache root:
//   - <root>/<archiver>/<revision key>.json   one entry per processed revision
//   - <root>/<archiver>/index.json            the archiver's revision index
//
// Every file is written into a temporary sibling and renamed into place, so a
// reader never observes a partially written entry.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const indexFileName = "index.json"

// ErrNotFound is returned by Read when no entry exists for a revision.
var ErrNotFound = errors.New("cache entry not found")

// ErrInvalidKey is returned for revision keys that are not hex strings.
var ErrInvalidKey = errors.New("invalid revision key")

// Metrics holds metric name to value for one file or one symbol.
type Metrics map[string]float64

// FileData is what an operator produced for a single file. Detailed is keyed
// by symbol name (function, class, ...) and usually carries lineno and
// endline next to the metric values.
type FileData struct {
	Detailed map[string]Metrics `json:"detailed"`
	Total    Metrics            `json:"total"`
}

// Entry is the cached data of one revision: operator name to path to data.
// Directories appear as paths too, holding the aggregated totals of their
// files; the repository root is "".
type Entry struct {
	OperatorData map[string]map[string]FileData `json:"operator_data"`
}

// Operator returns the data of one operator, nil when absent.
func (e Entry) Operator(name string) map[string]FileData {
	return e.OperatorData[name]
}

// PathKey returns a short, stable identifier for an absolute repository path.
func PathKey(abs string) string {
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:12]
}

// RepoDir returns the per-repository cache directory below base.
func RepoDir(base, repoAbs string) string {
	return filepath.Join(base, PathKey(repoAbs))
}

// Cache reads and writes entries below a root directory.
type Cache struct {
	root string
}

// New returns a cache rooted at root. The directory is created on first write.
func New(root string) *Cache {
	return &Cache{root: root}
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// Dir returns the directory holding the entries of one archiver.
func (c *Cache) Dir(archiver string) string {
	return filepath.Join(c.root, archiver)
}

// entryPath maps a key to its file. Keys are case-insensitive hex and stored
// lowercase.
func (c *Cache) entryPath(archiver, key string) (string, error) {
	if !isHex(key) {
		return "", fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	return filepath.Join(c.Dir(archiver), strings.ToLower(key)+".json"), nil
}

// Write stores the entry of a revision, replacing any previous one.
func (c *Cache) Write(archiver, key string, e Entry) error {
	path, err := c.entryPath(archiver, key)
	if err != nil {
		return err
	}
	if err := writeJSON(path, e); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	return nil
}

// Read loads the entry of a revision.
func (c *Cache) Read(archiver, key string) (Entry, error) {
	b, err := c.ReadRaw(archiver, key)
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return e, nil
}

// ReadRaw returns the stored bytes of a revision entry.
func (c *Cache) ReadRaw(archiver, key string) ([]byte, error) {
	path, err := c.entryPath(archiver, key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", archiver, key, ErrNotFound)
		}
		return nil, err
	}
	return b, nil
}

// Has reports whether an entry exists for the revision.
func (c *Cache) Has(archiver, key string) bool {
	path, err := c.entryPath(archiver, key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// WriteIndex stores the index document of an archiver.
func (c *Cache) WriteIndex(archiver string, v any) error {
	if err := writeJSON(filepath.Join(c.Dir(archiver), indexFileName), v); err != nil {
		return fmt.Errorf("write %s index: %w", archiver, err)
	}
	return nil
}

// ReadIndex decodes the index document of an archiver into v. It reports
// false, without error, when no index has been written yet.
func (c *Cache) ReadIndex(archiver string, v any) (bool, error) {
	b, err := os.ReadFile(filepath.Join(c.Dir(archiver), indexFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s index: %w", archiver, err)
	}
	return true, nil
}

// Clean removes every entry and the index of an archiver. Safe to call when
// nothing was ever written.
func (c *Cache) Clean(archiver string) error {
	dir := c.Dir(archiver)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return os.RemoveAll(dir)
}

// writeJSON encodes v into a temporary file next to path, syncs it and
// renames it over path.
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	return strings.Trim(strings.ToLower(s), "0123456789abcdef") == ""
}
