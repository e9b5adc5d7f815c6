package state

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/thiagokokada/wily-go/internal/cache"
	"github.com/thiagokokada/wily-go/internal/git"
)

// ErrNotIndexed means a revision was never processed by a build.
var ErrNotIndexed = errors.New("revision is not in the cache, make sure you have run wily-go build")

// ErrAmbiguous means an abbreviated key matches more than one indexed revision.
var ErrAmbiguous = errors.New("ambiguous revision")

// minPrefix is the shortest abbreviated key accepted by Lookup.
const minPrefix = 4

// IndexedRevision is a processed revision. Its cache entry is addressed by
// the archiver name of the owning Index and the revision key. Values handed
// out by an Index must not be modified.
type IndexedRevision struct {
	git.Revision
	Operators []string `json:"operators"`
}

type indexDocument struct {
	Archiver  string            `json:"archiver"`
	Revisions []IndexedRevision `json:"revisions"`
}

// Index is the append-only, oldest-first log of revisions already processed
// for one archiver.
type Index struct {
	archiver  string
	cache     *cache.Cache
	revisions []IndexedRevision
	byKey     map[string]int
}

// LoadIndex reads the index of an archiver from the cache. A missing index
// yields an empty one.
func LoadIndex(c *cache.Cache, archiver string) (*Index, error) {
	ix := &Index{archiver: archiver, cache: c, byKey: map[string]int{}}
	var doc indexDocument
	found, err := c.ReadIndex(archiver, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		slog.Debug("no index yet", slog.String("archiver", archiver))
		return ix, nil
	}
	for _, rev := range doc.Revisions {
		if _, dup := ix.byKey[rev.Key]; dup {
			slog.Warn("duplicate revision in index", slog.String("archiver", archiver), slog.String("key", rev.Key))
			continue
		}
		ix.byKey[rev.Key] = len(ix.revisions)
		ix.revisions = append(ix.revisions, rev)
	}
	slog.Debug("index loaded", slog.String("archiver", archiver), slog.Int("revisions", len(ix.revisions)))
	return ix, nil
}

// Archiver returns the archiver name the index belongs to.
func (ix *Index) Archiver() string {
	return ix.archiver
}

// Len returns the number of indexed revisions.
func (ix *Index) Len() int {
	return len(ix.revisions)
}

// Revisions returns the indexed revisions, oldest first.
func (ix *Index) Revisions() []IndexedRevision {
	return slices.Clone(ix.revisions)
}

// Keys returns the indexed revision keys, newest first.
func (ix *Index) Keys() []string {
	keys := make([]string, 0, len(ix.revisions))
	for i := len(ix.revisions) - 1; i >= 0; i-- {
		keys = append(keys, ix.revisions[i].Key)
	}
	return keys
}

// Contains reports whether the full key has been indexed.
func (ix *Index) Contains(key string) bool {
	_, ok := ix.byKey[key]
	return ok
}

// Append adds a processed revision. Appending a key that is already indexed
// is a no-op and reports false, and so is a revision committed before the
// current tail: the log stays in commit order.
func (ix *Index) Append(rev git.Revision, operators []string) bool {
	if _, ok := ix.byKey[rev.Key]; ok {
		return false
	}
	if last, ok := ix.Last(); ok && rev.Date.Before(last.Date) {
		slog.Debug("refusing out of order revision",
			slog.String("key", rev.Key),
			slog.String("last", last.Key),
		)
		return false
	}
	ix.byKey[rev.Key] = len(ix.revisions)
	ix.revisions = append(ix.revisions, IndexedRevision{Revision: rev, Operators: slices.Clone(operators)})
	return true
}

// Lookup finds a revision by full key or by an abbreviated key of at least
// four characters.
func (ix *Index) Lookup(search string) (IndexedRevision, error) {
	search = strings.ToLower(strings.TrimSpace(search))
	if i, ok := ix.byKey[search]; ok {
		return ix.revisions[i], nil
	}
	if len(search) < minPrefix {
		return IndexedRevision{}, fmt.Errorf("%q: %w", search, ErrNotIndexed)
	}
	found := -1
	for i, rev := range ix.revisions {
		if !strings.HasPrefix(rev.Key, search) {
			continue
		}
		if found >= 0 {
			return IndexedRevision{}, fmt.Errorf("%q matches %s and %s: %w",
				search, ix.revisions[found].ShortKey(), rev.ShortKey(), ErrAmbiguous)
		}
		found = i
	}
	if found < 0 {
		return IndexedRevision{}, fmt.Errorf("%q: %w", search, ErrNotIndexed)
	}
	return ix.revisions[found], nil
}

// Last returns the newest indexed revision, the resume point of a build.
func (ix *Index) Last() (IndexedRevision, bool) {
	if len(ix.revisions) == 0 {
		return IndexedRevision{}, false
	}
	return ix.revisions[len(ix.revisions)-1], true
}

// Save persists the index.
func (ix *Index) Save() error {
	return ix.cache.WriteIndex(ix.archiver, indexDocument{Archiver: ix.archiver, Revisions: ix.revisions})
}
