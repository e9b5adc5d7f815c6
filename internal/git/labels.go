package git

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Labels maps commit hashes to the branch and tag names pointing at them.
// The HEAD commit gets "HEAD -> <branch>" (or "HEAD" when detached) first.
// Labels reflect the HEAD observed at Open, not a materialized revision.
func (a *Archiver) Labels() (map[string][]string, error) {
	labels := map[string][]string{}
	refs, err := a.repo.References()
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer refs.Close()
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		if !name.IsBranch() && !name.IsTag() {
			return nil
		}
		hash := ref.Hash()
		label := name.Short()
		if name.IsTag() {
			label = "tag: " + label
			peeled, ok := a.commitOf(hash)
			if !ok {
				return nil
			}
			hash = peeled
		}
		labels[hash.String()] = append(labels[hash.String()], label)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !a.origin.hash.IsZero() {
		key := a.origin.hash.String()
		label := "HEAD"
		if a.origin.ref != nil && a.origin.ref.Type() == plumbing.SymbolicReference {
			label = "HEAD -> " + strings.TrimSpace(a.origin.name)
		}
		labels[key] = append([]string{label}, labels[key]...)
	}
	return labels, nil
}

// commitOf follows annotated tags from hash down to a commit. Tags on trees
// or blobs yield false.
func (a *Archiver) commitOf(hash plumbing.Hash) (plumbing.Hash, bool) {
	obj, err := a.repo.Object(plumbing.AnyObject, hash)
	for err == nil {
		switch o := obj.(type) {
		case *object.Commit:
			return o.Hash, true
		case *object.Tag:
			obj, err = o.Object()
		default:
			return plumbing.ZeroHash, false
		}
	}
	return plumbing.ZeroHash, false
}
