package git

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Name identifies this archiver in the index and the cache layout.
const Name = "git"

// Archiver walks the history of a git repository and materializes historical
// trees into its working directory. An Archiver owns the working tree from
// Open until Finish; it is not safe for concurrent use.
type Archiver struct {
	repo repoState

	// origin is the HEAD observed when the archiver was opened.
	origin headState
	// pending is the key of the revision currently materialized, if any.
	pending string
}

type repoState struct {
	*gitlib.Repository
	path string
}

type headState struct {
	// ref is HEAD as stored: symbolic for a branch, a hash when detached.
	ref  *plumbing.Reference
	hash plumbing.Hash
	name string
}

// Open opens the repository containing repoPath.
func Open(repoPath string) (*Archiver, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	root := abs
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	return OpenRepository(repo, root)
}

// OpenRepository wraps an already opened repository. If a previous archiver
// was interrupted while a historical revision was checked out, the working
// tree is restored before returning.
func OpenRepository(repo *gitlib.Repository, path string) (*Archiver, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	a := &Archiver{repo: repoState{Repository: repo, path: path}}
	origin, err := a.readHead()
	if err != nil {
		return nil, err
	}
	a.origin = origin
	if err := a.recoverInterrupted(); err != nil {
		return nil, err
	}
	return a, nil
}

// Name returns the archiver name used as index and cache namespace.
func (a *Archiver) Name() string {
	return Name
}

// RepoPath returns the working tree root.
func (a *Archiver) RepoPath() string {
	return a.repo.path
}

// Filesystem returns the working tree, as materialized by Checkout.
func (a *Archiver) Filesystem() billy.Filesystem {
	wt, err := a.repo.Worktree()
	if err != nil {
		return nil
	}
	return wt.Filesystem
}

func (a *Archiver) readHead() (headState, error) {
	raw, err := a.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return headState{}, nil
		}
		return headState{}, fmt.Errorf("read HEAD: %w", err)
	}
	resolved, err := a.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// unborn branch
			return headState{ref: raw, name: refName(raw)}, nil
		}
		return headState{}, fmt.Errorf("resolve HEAD: %w", err)
	}
	return headState{ref: raw, hash: resolved.Hash(), name: refName(raw)}, nil
}

// Revisions walks history from HEAD backwards, keeping at most maxRevisions
// commits (all of them when maxRevisions <= 0), and returns them oldest first.
// When path names a sub-directory or file, only commits touching it are kept.
// The working tree must be clean.
func (a *Archiver) Revisions(path string, maxRevisions int) ([]Revision, error) {
	if err := a.ensureClean(); err != nil {
		return nil, err
	}
	if a.origin.hash.IsZero() {
		slog.Debug("Revisions: repository has no commits", slog.String("path", a.repo.path))
		return nil, nil
	}
	opts := &gitlib.LogOptions{From: a.origin.hash, Order: gitlib.LogOrderCommitterTime}
	if filter := pathFilter(path); filter != nil {
		opts.PathFilter = filter
	}
	iter, err := a.repo.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("read commits: %w", err)
	}
	defer iter.Close()

	var commits []*object.Commit
	for maxRevisions <= 0 || len(commits) < maxRevisions {
		commit, err := iter.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("iterate commits: %w", err)
		}
		commits = append(commits, commit)
	}
	slices.Reverse(commits)

	revisions := make([]Revision, 0, len(commits))
	for _, commit := range commits {
		rev, err := newRevision(commit)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	slog.Debug("Revisions done",
		slog.String("head", a.origin.name),
		slog.Int("max", maxRevisions),
		slog.Int("returned", len(revisions)),
	)
	return revisions, nil
}

// Find resolves a revision specifier (branch, tag, full or short hash, HEAD,
// HEAD~2, ...) and returns the matching Revision.
func (a *Archiver) Find(search string) (Revision, error) {
	commit, err := a.resolveCommit(search)
	if err != nil {
		return Revision{}, err
	}
	return newRevision(commit)
}

func (a *Archiver) resolveCommit(search string) (*object.Commit, error) {
	search = strings.TrimSpace(search)
	if search == "" {
		search = "HEAD"
	}
	hash, err := a.repo.ResolveRevision(plumbing.Revision(search))
	if err != nil {
		// io.EOF: an ancestor past the root commit, e.g. HEAD~99
		if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("revision %q: %w", search, ErrNotFound)
		}
		return nil, fmt.Errorf("resolve revision %q: %w", search, err)
	}
	commit, err := a.repo.CommitObject(*hash)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("revision %q: %w", search, ErrNotFound)
		}
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return commit, nil
}

func newRevision(commit *object.Commit) (Revision, error) {
	tree, err := commit.Tree()
	if err != nil {
		return Revision{}, fmt.Errorf("read tree of %s: %w", commit.Hash, err)
	}
	files, dirs, err := trackedFilesDirs(tree)
	if err != nil {
		return Revision{}, err
	}
	rev := Revision{
		Key:          commit.Hash.String(),
		AuthorName:   commit.Author.Name,
		AuthorEmail:  commit.Author.Email,
		Date:         commit.Committer.When,
		Message:      commit.Message,
		TrackedFiles: files,
		TrackedDirs:  dirs,
	}
	if commit.Committer.When.IsZero() {
		rev.Date = commit.Author.When
	}
	if commit.NumParents() == 0 {
		rev.AddedFiles = slices.Clone(files)
		rev.ModifiedFiles = []string{}
		rev.DeletedFiles = []string{}
	} else {
		// merges are compared against their first parent
		parent, err := commit.Parent(0)
		if err != nil {
			return Revision{}, fmt.Errorf("read parent of %s: %w", commit.Hash, err)
		}
		parentTree, err := parent.Tree()
		if err != nil {
			return Revision{}, fmt.Errorf("read tree of %s: %w", parent.Hash, err)
		}
		cs, err := diffTrees(parentTree, tree)
		if err != nil {
			return Revision{}, err
		}
		rev.Parent = parent.Hash.String()
		rev.AddedFiles = nonNil(cs.Added)
		rev.ModifiedFiles = nonNil(cs.Modified)
		rev.DeletedFiles = nonNil(cs.Deleted)
	}
	slog.Debug("revision found",
		slog.String("key", rev.Key),
		slog.Int("tracked_files", len(rev.TrackedFiles)),
		slog.Int("tracked_dirs", len(rev.TrackedDirs)),
		slog.Any("added", rev.AddedFiles),
		slog.Any("modified", rev.ModifiedFiles),
		slog.Any("deleted", rev.DeletedFiles),
	)
	return rev, nil
}

func pathFilter(path string) func(string) bool {
	p := strings.Trim(filepath.ToSlash(filepath.Clean(path)), "/")
	if p == "" || p == "." {
		return nil
	}
	return func(name string) bool {
		return name == p || strings.HasPrefix(name, p+"/")
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func refName(ref *plumbing.Reference) string {
	if ref == nil {
		return ""
	}
	if ref.Type() == plumbing.SymbolicReference {
		return ref.Target().Short()
	}
	return ref.Hash().String()
}
