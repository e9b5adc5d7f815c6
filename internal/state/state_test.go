package state

import (
	"errors"
	"testing"

	"github.com/thiagokokada/wily-go/internal/cache"
	"github.com/thiagokokada/wily-go/internal/git"
)

func rawEntry(paths ...string) cache.Entry {
	files := map[string]cache.FileData{}
	for _, p := range paths {
		files[p] = cache.FileData{Total: cache.Metrics{"loc": 1}}
	}
	return cache.Entry{OperatorData: map[string]map[string]cache.FileData{"raw": files}}
}

func TestStateGet(t *testing.T) {
	t.Parallel()

	c := cache.New(t.TempDir())
	s, err := Open(c)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.DefaultArchiver != git.Name {
		t.Fatalf("DefaultArchiver = %q", s.DefaultArchiver)
	}
	if err := c.Write(git.Name, keyA, rawEntry("a.py")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	s.Default().Append(rev(keyA, 1), []string{"raw"})

	got, entry, err := s.Get(git.Name, keyA[:7])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Key != keyA {
		t.Fatalf("Get() key = %s", got.Key)
	}
	if _, ok := entry.Operator("raw")["a.py"]; !ok {
		t.Fatalf("entry = %+v", entry)
	}

	if _, _, err := s.Get(git.Name, keyB); !errors.Is(err, ErrNotIndexed) {
		t.Fatalf("Get(unindexed) error = %v, want ErrNotIndexed", err)
	}

	// indexed but cache entry missing
	s.Default().Append(rev(keyB, 2), []string{"raw"})
	if _, _, err := s.Get(git.Name, keyB); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("Get(no entry) error = %v, want cache.ErrNotFound", err)
	}
}

func TestStateLatestRevisions(t *testing.T) {
	t.Parallel()

	c := cache.New(t.TempDir())
	s, err := Open(c, git.Name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	writes := []struct {
		key   string
		paths []string
	}{
		{key: keyA, paths: []string{"a.py", "old.py"}},
		{key: keyB, paths: []string{"a.py", "b.py"}},
		{key: keyC, paths: []string{"b.py"}},
	}
	for i, w := range writes {
		if err := c.Write(git.Name, w.key, rawEntry(w.paths...)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		s.Default().Append(rev(w.key, i), []string{"raw"})
	}

	latest, err := s.LatestRevisions("raw")
	if err != nil {
		t.Fatalf("LatestRevisions: %v", err)
	}
	want := map[string]string{"a.py": keyB, "b.py": keyC, "old.py": keyA}
	if len(latest) != len(want) {
		t.Fatalf("LatestRevisions() = %v", latest)
	}
	for path, key := range want {
		if latest[path] != key {
			t.Fatalf("latest[%s] = %s, want %s", path, latest[path], key)
		}
	}

	none, err := s.LatestRevisions("churn")
	if err != nil {
		t.Fatalf("LatestRevisions: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("LatestRevisions(churn) = %v", none)
	}
}
