package git

import (
	"errors"
	"slices"
	"testing"

	"github.com/go-git/go-billy/v5/util"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestCheckoutAndFinish(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	keys := threeCommitRepo(t, r)
	r.write("pkg/extra.go", "package pkg\n")
	head := r.commit("add pkg")
	a := r.open()

	headBefore, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}

	root, err := a.Find(keys[0])
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if err := a.Checkout(root); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if got := a.CheckedOut(); got != keys[0] {
		t.Fatalf("CheckedOut() = %s, want %s", got, keys[0])
	}
	if got := r.read("a.py"); got != "def a():\n    return 1\n" {
		t.Fatalf("a.py = %q", got)
	}
	if r.exists("b.py") || r.exists("pkg/extra.go") || r.exists("pkg") {
		t.Fatal("files from later revisions still present")
	}
	headDuring, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if headDuring.String() != headBefore.String() {
		t.Fatalf("HEAD moved during checkout: %s -> %s", headBefore, headDuring)
	}

	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if a.CheckedOut() != "" {
		t.Fatalf("CheckedOut() = %q after Finish", a.CheckedOut())
	}
	if r.exists("a.py") {
		t.Fatal("a.py restored although deleted at HEAD")
	}
	if got := r.read("b.py"); got != "def b():\n    pass\n" {
		t.Fatalf("b.py = %q", got)
	}
	if got := r.read("pkg/extra.go"); got != "package pkg\n" {
		t.Fatalf("pkg/extra.go = %q", got)
	}
	dirty, err := a.DirtyPaths()
	if err != nil {
		t.Fatalf("DirtyPaths: %v", err)
	}
	if len(dirty) != 0 {
		t.Fatalf("working tree not clean after Finish: %v", dirty)
	}
	resolved, err := r.repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if resolved.Hash().String() != head || resolved.Name() != plumbing.Master {
		t.Fatalf("HEAD = %s (%s), want %s on master", resolved.Hash(), resolved.Name(), head)
	}

	// a second Finish has nothing to do
	if err := a.Finish(); err != nil {
		t.Fatalf("second Finish: %v", err)
	}
}

func TestCheckoutAndFinish_DetachedHead(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	keys := threeCommitRepo(t, r)
	wt, err := r.repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if err := wt.Checkout(&gitlib.CheckoutOptions{Hash: mustHash(keys[1])}); err != nil {
		t.Fatalf("detach HEAD: %v", err)
	}
	a := r.open()

	root, err := a.Find(keys[0])
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if err := a.Checkout(root); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if r.exists("b.py") {
		t.Fatal("b.py present at root revision")
	}
	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if head.Type() != plumbing.HashReference || head.Hash().String() != keys[1] {
		t.Fatalf("HEAD = %s, want detached at %s", head, keys[1])
	}
	if got := r.read("a.py"); got != "def a():\n    return 2\n" {
		t.Fatalf("a.py = %q", got)
	}
	if got := r.read("b.py"); got != "def b():\n    pass\n" {
		t.Fatalf("b.py = %q", got)
	}
	dirty, err := a.DirtyPaths()
	if err != nil {
		t.Fatalf("DirtyPaths: %v", err)
	}
	if len(dirty) != 0 {
		t.Fatalf("working tree not clean after Finish: %v", dirty)
	}
}

func TestFinishWithoutCheckout(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	threeCommitRepo(t, r)
	a := r.open()
	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := r.read("b.py"); got != "def b():\n    pass\n" {
		t.Fatalf("b.py = %q", got)
	}
}

func TestCheckout_Sequential(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	keys := threeCommitRepo(t, r)
	a := r.open()
	revs, err := a.Revisions("", 0)
	if err != nil {
		t.Fatalf("Revisions: %v", err)
	}

	for i, rev := range revs {
		if err := a.Checkout(rev); err != nil {
			t.Fatalf("Checkout %d: %v", i, err)
		}
		for _, f := range rev.TrackedFiles {
			if !r.exists(f) {
				t.Fatalf("revision %d: %s missing", i, f)
			}
		}
		for _, f := range rev.DeletedFiles {
			if r.exists(f) {
				t.Fatalf("revision %d: deleted file %s still present", i, f)
			}
		}
	}
	if got := r.read("b.py"); got != "def b():\n    pass\n" {
		t.Fatalf("b.py = %q", got)
	}
	if a.CheckedOut() != keys[2] {
		t.Fatalf("CheckedOut() = %s, want %s", a.CheckedOut(), keys[2])
	}
	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestCheckout_RefusesDirtyTree(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	keys := threeCommitRepo(t, r)
	a := r.open()
	rev, err := a.Find(keys[0])
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	r.write("b.py", "local edit\n")

	err = a.Checkout(rev)
	var dirty *DirtyError
	if !errors.As(err, &dirty) {
		t.Fatalf("Checkout error = %v, want *DirtyError", err)
	}
	if got := r.read("b.py"); got != "local edit\n" {
		t.Fatalf("local edit lost: %q", got)
	}
	if a.CheckedOut() != "" {
		t.Fatalf("CheckedOut() = %q after refused checkout", a.CheckedOut())
	}
}

func TestOpenRepository_RecoversInterruptedCheckout(t *testing.T) {
	t.Parallel()

	r := newDotGitTestRepo(t)
	keys := threeCommitRepo(t, r)
	a := r.open()
	rev, err := a.Find(keys[0])
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if err := a.Checkout(rev); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	marker, err := util.ReadFile(r.dotGit, checkoutMarker)
	if err != nil {
		t.Fatalf("checkout marker not written: %v", err)
	}
	if string(marker) != keys[0]+"\n" {
		t.Fatalf("marker = %q", marker)
	}
	if !r.exists("a.py") {
		t.Fatal("a.py not materialized")
	}

	// the first archiver goes away without Finish
	b := r.open()
	if b.CheckedOut() != "" {
		t.Fatalf("CheckedOut() = %q", b.CheckedOut())
	}
	if r.exists("a.py") {
		t.Fatal("a.py still present after recovery")
	}
	if _, err := r.dotGit.Stat(checkoutMarker); err == nil {
		t.Fatal("checkout marker not removed")
	}
	dirty, err := b.DirtyPaths()
	if err != nil {
		t.Fatalf("DirtyPaths: %v", err)
	}
	if len(dirty) != 0 {
		t.Fatalf("working tree not clean after recovery: %v", dirty)
	}
	// Finish on the stale archiver restores the same tree again.
	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestFileContents(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	keys := threeCommitRepo(t, r)
	a := r.open()

	got, err := a.FileContents(keys[0], "a.py")
	if err != nil {
		t.Fatalf("FileContents: %v", err)
	}
	if got != "def a():\n    return 1\n" {
		t.Fatalf("FileContents = %q", got)
	}
	if _, err := a.FileContents(keys[2], "a.py"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FileContents of deleted file error = %v, want ErrNotFound", err)
	}
	// reading history does not touch the working tree
	if r.exists("a.py") {
		t.Fatal("FileContents materialized a.py")
	}
}

func TestIsDataOutdated(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	keys := threeCommitRepo(t, r)
	a := r.open()

	tests := []struct {
		name string
		path string
		key  string
		want bool
	}{
		{name: "unchanged since", path: "b.py", key: keys[1], want: false},
		{name: "deleted at head", path: "a.py", key: keys[0], want: true},
		{name: "missing at revision", path: "b.py", key: keys[0], want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.IsDataOutdated(tt.path, tt.key)
			if err != nil {
				t.Fatalf("IsDataOutdated: %v", err)
			}
			if got != tt.want {
				t.Fatalf("IsDataOutdated(%s, %s) = %v, want %v", tt.path, tt.key[:7], got, tt.want)
			}
		})
	}
}

func TestLabels(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	keys := threeCommitRepo(t, r)
	if _, err := r.repo.CreateTag("v1", mustHash(keys[1]), nil); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	annotated := &gitlib.CreateTagOptions{
		Tagger:  &object.Signature{Name: "Alice", Email: "alice@example.com", When: r.when},
		Message: "first release",
	}
	if _, err := r.repo.CreateTag("v0", mustHash(keys[0]), annotated); err != nil {
		t.Fatalf("CreateTag annotated: %v", err)
	}
	a := r.open()

	labels, err := a.Labels()
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if got := labels[keys[2]]; !slices.Equal(got, []string{"HEAD -> master", "master"}) {
		t.Fatalf("labels at HEAD = %v", got)
	}
	if got := labels[keys[1]]; !slices.Equal(got, []string{"tag: v1"}) {
		t.Fatalf("labels at v1 = %v", got)
	}
	if got := labels[keys[0]]; !slices.Equal(got, []string{"tag: v0"}) {
		t.Fatalf("labels at annotated v0 = %v", got)
	}
}
