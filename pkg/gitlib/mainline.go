package gitlib

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrMainLineNotFound is returned when no main-line branch can be found.
var ErrMainLineNotFound = errors.New("main line branch not found")

// conventionalBranches are tried in order when no branch is configured.
var conventionalBranches = []string{"main", "master"}

// mainLineEntry is one commit of the first-parent chain.
type mainLineEntry struct {
	hash      Hash
	committed time.Time
}

// ResolveMainLine returns the configured branch name, or the first conventional
// branch that exists when name is empty.
func (r *Repository) ResolveMainLine(name string) (string, error) {
	if name != "" {
		if _, err := r.BranchTip(name); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrMainLineNotFound, name, err)
		}

		return name, nil
	}

	idx := slices.IndexFunc(conventionalBranches, func(candidate string) bool {
		_, err := r.BranchTip(candidate)

		return err == nil
	})
	if idx < 0 {
		return "", fmt.Errorf("%w: tried %v", ErrMainLineNotFound, conventionalBranches)
	}

	return conventionalBranches[idx], nil
}

// firstParentChain follows first parents from tip to the root commit and
// returns the chain oldest first. Merged side branches are not visited.
func (r *Repository) firstParentChain(tip Hash) ([]mainLineEntry, error) {
	var chain []mainLineEntry

	for next, more := tip, true; more; {
		c, err := r.commit(next)
		if err != nil {
			return nil, err
		}

		chain = append(chain, mainLineEntry{hash: next, committed: c.Committer().When})

		more = c.ParentCount() > 0
		if more {
			next = hashOf(c.ParentId(0))
		}

		c.Free()
	}

	slices.Reverse(chain)

	return chain, nil
}
