package git

import (
	"fmt"
	"io"
	"slices"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// ChangeSet holds the paths that differ between two trees. The three slices
// are disjoint and sorted.
type ChangeSet struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// DiffTrees classifies the path changes going from the tree identified by
// from to the tree identified by to. A rename shows up as a delete of the old
// path plus an add of the new one.
func DiffTrees(store storer.EncodedObjectStorer, from, to plumbing.Hash) (ChangeSet, error) {
	fromTree, err := object.GetTree(store, from)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("read tree %s: %w", from, err)
	}
	toTree, err := object.GetTree(store, to)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("read tree %s: %w", to, err)
	}
	return diffTrees(fromTree, toTree)
}

func diffTrees(from, to *object.Tree) (ChangeSet, error) {
	// nil options keep rename detection off
	changes, err := object.DiffTree(from, to)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("diff trees: %w", err)
	}
	var cs ChangeSet
	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			return ChangeSet{}, err
		}
		switch action {
		case merkletrie.Insert:
			if isFileEntry(ch.To) {
				cs.Added = append(cs.Added, ch.To.Name)
			}
		case merkletrie.Delete:
			if isFileEntry(ch.From) {
				cs.Deleted = append(cs.Deleted, ch.From.Name)
			}
		case merkletrie.Modify:
			fromFile, toFile := isFileEntry(ch.From), isFileEntry(ch.To)
			switch {
			case fromFile && toFile:
				cs.Modified = append(cs.Modified, ch.To.Name)
			case toFile:
				cs.Added = append(cs.Added, ch.To.Name)
			case fromFile:
				cs.Deleted = append(cs.Deleted, ch.From.Name)
			}
		}
	}
	slices.Sort(cs.Added)
	slices.Sort(cs.Modified)
	slices.Sort(cs.Deleted)
	return cs, nil
}

// Submodules are not tracked files.
func isFileEntry(e object.ChangeEntry) bool {
	return e.Name != "" && e.TreeEntry.Mode != filemode.Submodule && e.TreeEntry.Mode != filemode.Dir
}

// trackedFilesDirs lists every file in tree recursively, plus every directory
// holding them. The root directory is reported as "".
func trackedFilesDirs(tree *object.Tree) ([]string, []string, error) {
	var files []string
	dirs := []string{""}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("list tree %s: %w", tree.Hash, err)
		}
		switch {
		case entry.Mode == filemode.Dir:
			dirs = append(dirs, name)
		case entry.Mode.IsFile():
			files = append(files, name)
		}
	}
	slices.Sort(files)
	slices.Sort(dirs)
	return files, dirs, nil
}
