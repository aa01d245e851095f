package gitlib

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/codeshape/pkg/vcs"
)

// History implements vcs.History for a local repository with a working tree.
// It is not safe for concurrent use: every method reads or mutates the one
// shared working tree.
type History struct {
	repo   *Repository
	branch string

	chainTip Hash
	chain    []mainLineEntry
}

// Compile-time check that *History implements vcs.History.
var _ vcs.History = (*History)(nil)

// NewHistory opens the repository at path and binds it to its main-line branch.
// An empty branch selects the first of "main" and "master" that exists.
func NewHistory(path, branch string) (*History, error) {
	repo, err := Open(path)
	if err != nil {
		return nil, err
	}

	resolved, err := repo.ResolveMainLine(branch)
	if err != nil {
		repo.Free()

		return nil, err
	}

	return &History{repo: repo, branch: resolved}, nil
}

// Branch returns the main-line branch name.
func (h *History) Branch() string {
	return h.branch
}

// Close releases the repository.
func (h *History) Close() {
	h.repo.Free()
}

// Root implements vcs.Tree.
func (h *History) Root() string {
	return h.repo.Workdir()
}

// FirstCommit implements vcs.Resolver.
func (h *History) FirstCommit(_ context.Context) (vcs.Ref, error) {
	chain, err := h.mainLine()
	if err != nil {
		return "", err
	}

	return vcs.Ref(chain[0].hash.String()), nil
}

// CommitDate implements vcs.Resolver.
func (h *History) CommitDate(_ context.Context, ref vcs.Ref) (time.Time, error) {
	hash, err := ParseHash(ref.String())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", vcs.ErrUnknownRef, err)
	}

	c, err := h.repo.commit(hash)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", vcs.ErrUnknownRef, err)
	}
	defer c.Free()

	return c.Committer().When, nil
}

// FirstCommitAfter implements vcs.Resolver.
func (h *History) FirstCommitAfter(_ context.Context, t time.Time) (vcs.Ref, error) {
	chain, err := h.mainLine()
	if err != nil {
		return "", err
	}

	// Committer times on the first-parent chain are not guaranteed monotonic,
	// so the chain is scanned rather than searched.
	for _, entry := range chain {
		if entry.committed.After(t) {
			return vcs.Ref(entry.hash.String()), nil
		}
	}

	return "", vcs.ErrNoCommitAfter
}

// Checkout implements vcs.Tree.
func (h *History) Checkout(_ context.Context, ref vcs.Ref) error {
	hash, err := ParseHash(ref.String())
	if err != nil {
		return fmt.Errorf("%w: %w", vcs.ErrUnknownRef, err)
	}

	return h.repo.CheckoutCommit(hash)
}

// CheckoutMainLine implements vcs.Tree.
func (h *History) CheckoutMainLine(_ context.Context) error {
	return h.repo.CheckoutBranch(h.branch)
}

// ListTrackedFiles implements vcs.Tree.
func (h *History) ListTrackedFiles(_ context.Context, spec vcs.Pathspec) ([]string, error) {
	matcher, err := spec.Compile()
	if err != nil {
		return nil, err
	}

	paths, err := h.repo.HeadPaths()
	if err != nil {
		return nil, fmt.Errorf("list tracked files: %w", err)
	}

	slices.Sort(paths)

	return matcher.Filter(paths), nil
}

// ContributorCount implements vcs.Contributors.
func (h *History) ContributorCount(_ context.Context, since, before time.Time) (int, error) {
	authors, err := h.repo.AuthorsBetween(since, before)
	if err != nil {
		return 0, err
	}

	return len(authors), nil
}

// mainLine returns the first-parent chain of the branch, recomputing it only
// when the branch tip has moved.
func (h *History) mainLine() ([]mainLineEntry, error) {
	tip, err := h.repo.BranchTip(h.branch)
	if err != nil {
		return nil, err
	}

	if h.chain != nil && tip == h.chainTip {
		return h.chain, nil
	}

	chain, err := h.repo.firstParentChain(tip)
	if err != nil {
		return nil, err
	}

	if len(chain) == 0 {
		return nil, vcs.ErrEmptyHistory
	}

	h.chain = chain
	h.chainTip = tip

	return chain, nil
}
