package vfs

import (
	"errors"
)

// SkipDir may be returned by a WalkFunc to skip a directory's contents.
var SkipDir = errors.New("skip this directory")

// WalkFunc is called for every entry below the walk root. p is the entry's
// full store path.
type WalkFunc func(p string, e Entry) error

// Walk visits the tree rooted at root depth-first in name order. Links are
// reported but never followed, so a tree containing join links is visited
// exactly once per physical entry.
func Walk(s Store, root string, fn WalkFunc) error {
	entries, err := s.ChildrenList(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := Join(root, e.Name)
		err := fn(p, e)
		if errors.Is(err, SkipDir) {
			continue
		}
		if err != nil {
			return err
		}
		if e.Kind == KindDir {
			if err := Walk(s, p, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
