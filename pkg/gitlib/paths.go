package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// blobPaths lists every blob of the commit's tree as a slash-separated path.
// Submodules appear as commit entries and are not files, so they are left out.
func (r *Repository) blobPaths(hash Hash) ([]string, error) {
	c, err := r.commit(hash)
	if err != nil {
		return nil, err
	}
	defer c.Free()

	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("tree of %s: %w", hash, err)
	}
	defer tree.Free()

	var paths []string

	err = tree.Walk(func(dir string, entry *git2go.TreeEntry) error {
		if entry.Type == git2go.ObjectBlob {
			paths = append(paths, dir+entry.Name)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk tree of %s: %w", hash, err)
	}

	return paths, nil
}

// HeadPaths returns all blob paths of the commit HEAD points at.
func (r *Repository) HeadPaths() ([]string, error) {
	head, err := r.head()
	if err != nil {
		return nil, err
	}

	return r.blobPaths(head)
}
