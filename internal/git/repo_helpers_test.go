package git

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"
)

type testRepo struct {
	t    *testing.T
	repo *gitlib.Repository
	fs   billy.Filesystem
	// dotGit is nil for in-memory object storage.
	dotGit billy.Filesystem
	when   time.Time
}

// newTestRepo creates a repository with in-memory objects and worktree.
func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	fs := memfs.New()
	repo, err := gitlib.Init(memory.NewStorage(), fs)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return &testRepo{t: t, repo: repo, fs: fs, when: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// newDotGitTestRepo creates a repository whose git directory is a real
// filesystem storage (backed by memfs), so checkout markers are persisted.
func newDotGitTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dot := memfs.New()
	fs := memfs.New()
	repo, err := gitlib.Init(filesystem.NewStorage(dot, cache.NewObjectLRUDefault()), fs)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return &testRepo{t: t, repo: repo, fs: fs, dotGit: dot, when: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (r *testRepo) write(path, content string) {
	r.t.Helper()
	if err := util.WriteFile(r.fs, path, []byte(content), 0o644); err != nil {
		r.t.Fatalf("write %s: %v", path, err)
	}
}

// remove deletes path from the worktree and the index.
func (r *testRepo) remove(path string) {
	r.t.Helper()
	wt, err := r.repo.Worktree()
	if err != nil {
		r.t.Fatalf("Worktree: %v", err)
	}
	if _, err := wt.Remove(path); err != nil {
		r.t.Fatalf("remove %s: %v", path, err)
	}
}

func (r *testRepo) rename(from, to string) {
	r.t.Helper()
	content := r.read(from)
	r.remove(from)
	r.write(to, content)
}

func (r *testRepo) read(path string) string {
	r.t.Helper()
	data, err := util.ReadFile(r.fs, path)
	if err != nil {
		r.t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func (r *testRepo) exists(path string) bool {
	_, err := r.fs.Lstat(path)
	return err == nil
}

// commit stages everything (like git add -A) and commits one minute after
// the previous commit.
func (r *testRepo) commit(msg string) string {
	r.t.Helper()
	wt, err := r.repo.Worktree()
	if err != nil {
		r.t.Fatalf("Worktree: %v", err)
	}
	if err := wt.AddWithOptions(&gitlib.AddOptions{All: true}); err != nil {
		r.t.Fatalf("Add: %v", err)
	}
	r.when = r.when.Add(time.Minute)
	sig := &object.Signature{Name: "Alice", Email: "alice@example.com", When: r.when}
	hash, err := wt.Commit(msg, &gitlib.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	if err != nil {
		r.t.Fatalf("Commit: %v", err)
	}
	return hash.String()
}

func (r *testRepo) open() *Archiver {
	r.t.Helper()
	a, err := OpenRepository(r.repo, "/repo")
	if err != nil {
		r.t.Fatalf("OpenRepository: %v", err)
	}
	return a
}

// threeCommitRepo builds: root adds a.py; second modifies a.py and adds b.py;
// third deletes a.py.
func threeCommitRepo(t *testing.T, r *testRepo) []string {
	t.Helper()
	r.write("a.py", "def a():\n    return 1\n")
	root := r.commit("add a")
	r.write("a.py", "def a():\n    return 2\n")
	r.write("b.py", "def b():\n    pass\n")
	second := r.commit("change a, add b")
	r.remove("a.py")
	third := r.commit("drop a")
	return []string{root, second, third}
}

func mustHash(key string) plumbing.Hash {
	return plumbing.NewHash(key)
}
