package git

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// checkoutMarker is written into the git directory while a historical tree
// is materialized, so a later archiver can tell an interrupted build apart
// from user edits.
const checkoutMarker = "WILY_CHECKOUT"

// Checkout writes the tree of rev into the working directory and the index.
// HEAD and branch references are left untouched. The first checkout of an
// archiver's lifetime requires a clean working tree; later ones replace the
// previously materialized revision. Finish undoes it.
func (a *Archiver) Checkout(rev Revision) error {
	commit, err := a.resolveCommit(rev.Key)
	if err != nil {
		return err
	}
	if a.pending == "" {
		if err := a.ensureClean(); err != nil {
			return err
		}
	}
	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("read tree of %s: %w", commit.Hash, err)
	}
	if err := a.writeMarker(commit.Hash.String()); err != nil {
		return err
	}
	// From here on Finish has something to undo, even if materialize fails halfway.
	a.pending = commit.Hash.String()
	if err := a.materialize(tree); err != nil {
		return fmt.Errorf("checkout %s: %w", rev.ShortKey(), err)
	}
	slog.Debug("checked out revision", slog.String("key", a.pending))
	return nil
}

// Finish restores the working tree and index to the HEAD observed when the
// archiver was opened. It is a no-op when nothing is checked out and may be
// called any number of times. A failure is returned as *RestoreError.
func (a *Archiver) Finish() error {
	marked, err := a.hasMarker()
	if err != nil {
		return &RestoreError{Head: a.origin.name, Err: err}
	}
	if a.pending == "" && !marked {
		return nil
	}
	if err := a.restore(); err != nil {
		slog.Error("working tree restore failed",
			slog.String("head", a.origin.name),
			slog.String("checked_out", a.pending),
			slog.Any("error", err),
		)
		return &RestoreError{Head: a.origin.name, Err: err}
	}
	slog.Debug("restored working tree", slog.String("head", a.origin.name))
	a.pending = ""
	return nil
}

// CheckedOut returns the key of the materialized revision, or "" when the
// working tree matches HEAD.
func (a *Archiver) CheckedOut() string {
	return a.pending
}

func (a *Archiver) recoverInterrupted() error {
	marked, err := a.hasMarker()
	if err != nil || !marked {
		return err
	}
	left, _ := util.ReadFile(a.gitDir(), checkoutMarker)
	slog.Warn("restoring working tree left by an interrupted build",
		slog.String("checked_out", strings.TrimSpace(string(left))),
		slog.String("head", a.origin.name),
	)
	if err := a.restore(); err != nil {
		return &RestoreError{Head: a.origin.name, Err: err}
	}
	return nil
}

func (a *Archiver) restore() error {
	current, err := a.repo.Storer.Reference(plumbing.HEAD)
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("read HEAD: %w", err)
	}
	if a.origin.ref != nil && (current == nil || current.String() != a.origin.ref.String()) {
		if err := a.repo.Storer.SetReference(a.origin.ref); err != nil {
			return fmt.Errorf("reset HEAD: %w", err)
		}
	}
	if a.origin.hash.IsZero() {
		if err := a.materialize(nil); err != nil {
			return err
		}
	} else {
		commit, err := a.repo.CommitObject(a.origin.hash)
		if err != nil {
			return fmt.Errorf("read commit %s: %w", a.origin.hash, err)
		}
		tree, err := commit.Tree()
		if err != nil {
			return fmt.Errorf("read tree of %s: %w", a.origin.hash, err)
		}
		if err := a.materialize(tree); err != nil {
			return err
		}
	}
	return a.removeMarker()
}

// materialize makes the working tree and the index match tree. Files whose
// index entry already matches are not rewritten. A nil tree empties both.
func (a *Archiver) materialize(tree *object.Tree) error {
	wt, err := a.repo.Worktree()
	if err != nil {
		return err
	}
	fs := wt.Filesystem
	idx, err := a.repo.Storer.Index()
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	current := make(map[string]*index.Entry, len(idx.Entries))
	for _, e := range idx.Entries {
		current[e.Name] = e
	}

	var files []*object.File
	if tree != nil {
		err := tree.Files().ForEach(func(f *object.File) error {
			files = append(files, f)
			return nil
		})
		if err != nil {
			return fmt.Errorf("list tree %s: %w", tree.Hash, err)
		}
	}
	wanted := make(map[string]struct{}, len(files))
	for _, f := range files {
		wanted[f.Name] = struct{}{}
	}

	// Stale paths go first so a file can replace a directory of the same name.
	for name := range current {
		if _, ok := wanted[name]; ok {
			continue
		}
		if err := fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
		pruneEmptyDirs(fs, path.Dir(name))
	}

	next := &index.Index{Version: idx.Version}
	if next.Version == 0 {
		next.Version = 2
	}
	for _, f := range files {
		if e, ok := current[f.Name]; ok && e.Hash == f.Hash && e.Mode == f.Mode {
			if _, err := fs.Lstat(f.Name); err == nil {
				next.Entries = append(next.Entries, e)
				continue
			}
		}
		if err := writeFile(fs, f); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
		e, err := indexEntry(fs, f)
		if err != nil {
			return err
		}
		next.Entries = append(next.Entries, e)
	}
	slices.SortFunc(next.Entries, func(x, y *index.Entry) int {
		return strings.Compare(x.Name, y.Name)
	})
	if err := a.repo.Storer.SetIndex(next); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func writeFile(fs billy.Filesystem, f *object.File) (err error) {
	mode, err := f.Mode.ToOSFileMode()
	if err != nil {
		return err
	}
	if dir := path.Dir(f.Name); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if mode&os.ModeSymlink != 0 {
		target, err := f.Contents()
		if err != nil {
			return err
		}
		if err := fs.Remove(f.Name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return fs.Symlink(target, f.Name)
	}
	if info, err := fs.Lstat(f.Name); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := fs.Remove(f.Name); err != nil {
			return err
		}
	}

	from, err := f.Reader()
	if err != nil {
		return err
	}
	defer from.Close()
	to, err := fs.OpenFile(f.Name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := to.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err = io.Copy(to, from); err != nil {
		return err
	}
	// O_TRUNC keeps the old permission bits of an existing file.
	if ch, ok := fs.(interface{ Chmod(string, os.FileMode) error }); ok {
		return ch.Chmod(f.Name, mode.Perm())
	}
	return nil
}

func indexEntry(fs billy.Filesystem, f *object.File) (*index.Entry, error) {
	info, err := fs.Lstat(f.Name)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.Name, err)
	}
	return &index.Entry{
		Hash:       f.Hash,
		Name:       f.Name,
		Mode:       f.Mode,
		ModifiedAt: info.ModTime(),
		Size:       uint32(info.Size()),
	}, nil
}

func pruneEmptyDirs(fs billy.Filesystem, dir string) {
	for dir != "." && dir != "/" && dir != "" {
		entries, err := fs.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := fs.Remove(dir); err != nil {
			return
		}
		dir = path.Dir(dir)
	}
}

// gitDir returns the git directory when the repository is backed by a
// filesystem storage, nil for in-memory storage.
func (a *Archiver) gitDir() billy.Filesystem {
	if s, ok := a.repo.Storer.(interface{ Filesystem() billy.Filesystem }); ok {
		return s.Filesystem()
	}
	return nil
}

func (a *Archiver) writeMarker(key string) error {
	fs := a.gitDir()
	if fs == nil {
		return nil
	}
	if err := util.WriteFile(fs, checkoutMarker, []byte(key+"\n"), 0o644); err != nil {
		return fmt.Errorf("write checkout marker: %w", err)
	}
	return nil
}

func (a *Archiver) hasMarker() (bool, error) {
	fs := a.gitDir()
	if fs == nil {
		return false, nil
	}
	_, err := fs.Stat(checkoutMarker)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat checkout marker: %w", err)
}

func (a *Archiver) removeMarker() error {
	fs := a.gitDir()
	if fs == nil {
		return nil
	}
	if err := fs.Remove(checkoutMarker); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkout marker: %w", err)
	}
	return nil
}
