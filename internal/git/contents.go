package git

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// FileContents returns the content of path as stored in the given revision,
// without touching the working tree.
func (a *Archiver) FileContents(key, path string) (string, error) {
	commit, err := a.resolveCommit(key)
	if err != nil {
		return "", err
	}
	f, err := fileFromCommit(commit, path)
	if err != nil {
		return "", err
	}
	if f == nil {
		return "", fmt.Errorf("%s at %s: %w", path, key, ErrNotFound)
	}
	return f.Contents()
}

// IsDataOutdated reports whether path at HEAD differs from path at the given
// revision, so metrics stored for that revision no longer describe the file
// in the current checkout.
func (a *Archiver) IsDataOutdated(path, key string) (bool, error) {
	rev, err := a.resolveCommit(key)
	if err != nil {
		return false, err
	}
	head, err := a.resolveCommit("HEAD")
	if err != nil {
		return false, err
	}
	was, err := fileFromCommit(rev, path)
	if err != nil {
		return false, err
	}
	now, err := fileFromCommit(head, path)
	if err != nil {
		return false, err
	}
	if was == nil || now == nil {
		return true, nil
	}
	return was.Hash != now.Hash || was.Mode != now.Mode, nil
}

func fileFromCommit(commit *object.Commit, path string) (*object.File, error) {
	f, err := commit.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
