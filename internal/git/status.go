package git

import (
	"errors"
	"fmt"
	"slices"

	gitlib "github.com/go-git/go-git/v5"
)

// DirtyPaths returns the sorted paths with staged, unstaged or untracked
// changes. Ignored files are not reported.
func (a *Archiver) DirtyPaths() ([]string, error) {
	wt, err := a.repo.Worktree()
	if err != nil {
		if errors.Is(err, gitlib.ErrIsBareRepository) {
			return nil, fmt.Errorf("%s: no working tree to analyze: %w", a.repo.path, err)
		}
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	var paths []string
	for path, st := range status {
		if st.Staging != gitlib.Unmodified || st.Worktree != gitlib.Unmodified {
			paths = append(paths, path)
		}
	}
	slices.Sort(paths)
	return paths, nil
}

func (a *Archiver) ensureClean() error {
	paths, err := a.DirtyPaths()
	if err != nil {
		return err
	}
	if len(paths) > 0 {
		return &DirtyError{Paths: paths}
	}
	return nil
}
