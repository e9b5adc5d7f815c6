// Package state ties the revision indexes to the cache and answers lookups
// from revision to cached metrics.
package state

import (
	"fmt"

	"github.com/thiagokokada/wily-go/internal/cache"
	"github.com/thiagokokada/wily-go/internal/git"
)

// State holds the loaded indexes of one repository cache.
type State struct {
	Cache           *cache.Cache
	DefaultArchiver string

	indexes map[string]*Index
}

// Open loads the indexes of the given archivers. The first one becomes the
// default; with none given the git archiver is used.
func Open(c *cache.Cache, archivers ...string) (*State, error) {
	if len(archivers) == 0 {
		archivers = []string{git.Name}
	}
	s := &State{Cache: c, DefaultArchiver: archivers[0], indexes: map[string]*Index{}}
	for _, name := range archivers {
		ix, err := LoadIndex(c, name)
		if err != nil {
			return nil, err
		}
		s.indexes[name] = ix
	}
	return s, nil
}

// Index returns the index of an archiver, loading it on first use.
func (s *State) Index(archiver string) (*Index, error) {
	if ix, ok := s.indexes[archiver]; ok {
		return ix, nil
	}
	ix, err := LoadIndex(s.Cache, archiver)
	if err != nil {
		return nil, err
	}
	s.indexes[archiver] = ix
	return ix, nil
}

// Default returns the index of the default archiver.
func (s *State) Default() *Index {
	return s.indexes[s.DefaultArchiver]
}

// Get resolves a full or abbreviated key in the archiver's index and reads
// its cache entry.
func (s *State) Get(archiver, search string) (IndexedRevision, cache.Entry, error) {
	ix, err := s.Index(archiver)
	if err != nil {
		return IndexedRevision{}, cache.Entry{}, err
	}
	rev, err := ix.Lookup(search)
	if err != nil {
		return IndexedRevision{}, cache.Entry{}, err
	}
	entry, err := s.Cache.Read(archiver, rev.Key)
	if err != nil {
		return IndexedRevision{}, cache.Entry{}, fmt.Errorf("revision %s: %w", rev.ShortKey(), err)
	}
	return rev, entry, nil
}

// LatestRevisions maps every path (file or directory) with data for operator
// to the newest indexed revision of the default archiver carrying that data.
func (s *State) LatestRevisions(operator string) (map[string]string, error) {
	ix := s.Default()
	latest := map[string]string{}
	for _, key := range ix.Keys() {
		entry, err := s.Cache.Read(ix.Archiver(), key)
		if err != nil {
			return nil, err
		}
		for path := range entry.Operator(operator) {
			if _, ok := latest[path]; !ok {
				latest[path] = key
			}
		}
	}
	return latest, nil
}
