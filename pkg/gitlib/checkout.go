package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// CheckoutCommit makes the working tree match hash and detaches HEAD there.
func (r *Repository) CheckoutCommit(hash Hash) error {
	if err := r.forceTree(hash); err != nil {
		return err
	}

	if err := r.native.SetHeadDetached(hash.oid()); err != nil {
		return fmt.Errorf("detach HEAD at %s: %w", hash, err)
	}

	return nil
}

// CheckoutBranch makes the working tree match the tip of a local branch and
// attaches HEAD to it. The tree moves before HEAD so files the tip lacks are
// removed relative to the commit HEAD still names.
func (r *Repository) CheckoutBranch(name string) error {
	tip, err := r.BranchTip(name)
	if err != nil {
		return err
	}

	if err = r.forceTree(tip); err != nil {
		return err
	}

	if err = r.native.SetHead("refs/heads/" + name); err != nil {
		return fmt.Errorf("attach HEAD to %s: %w", name, err)
	}

	return nil
}

// forceTree overwrites tracked files with the commit's versions. Untracked
// files stay in place.
func (r *Repository) forceTree(hash Hash) error {
	c, err := r.commit(hash)
	if err != nil {
		return err
	}
	defer c.Free()

	tree, err := c.Tree()
	if err != nil {
		return fmt.Errorf("tree of %s: %w", hash, err)
	}
	defer tree.Free()

	opts := &git2go.CheckoutOptions{Strategy: git2go.CheckoutForce}

	if err = r.native.CheckoutTree(tree, opts); err != nil {
		return fmt.Errorf("checkout %s: %w", hash, err)
	}

	return nil
}
