package git

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a revision specifier or a path inside a
// revision cannot be resolved.
var ErrNotFound = errors.New("not found")

// DirtyError reports uncommitted or untracked changes in the working tree.
type DirtyError struct {
	Paths []string
}

func (e *DirtyError) Error() string {
	if len(e.Paths) == 0 {
		return "dirty repository, make sure you commit/stash files first"
	}
	return fmt.Sprintf("dirty repository, make sure you commit/stash files first: %s", strings.Join(e.Paths, ", "))
}

// RestoreError means the working tree could not be put back on the HEAD it
// had when the archiver was opened. The repository is left in whatever state
// the failed restore produced.
type RestoreError struct {
	Head string
	Err  error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore working tree to %s: %v", e.Head, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}
