package gitlib

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
)

var (
	// ErrRemoteNotSupported is returned for URLs and scp-style remotes; the
	// crawl checks commits out, so it needs a local clone.
	ErrRemoteNotSupported = errors.New("remote repositories not supported")
	// ErrBareRepository is returned when the repository has no working tree to crawl.
	ErrBareRepository = errors.New("repository has no working tree")
)

var scpLikeRemote = regexp.MustCompile(`^[A-Za-z]\w*@[A-Za-z0-9][\w.]*:`)

// Repository is an opened local repository with a working tree.
type Repository struct {
	native *git2go.Repository
}

// Open opens the non-bare repository at location.
func Open(location string) (*Repository, error) {
	if strings.Contains(location, "://") || scpLikeRemote.MatchString(location) {
		return nil, fmt.Errorf("%w: %s", ErrRemoteNotSupported, location)
	}

	native, err := git2go.OpenRepository(strings.TrimSuffix(location, "/"))
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", location, err)
	}

	if native.IsBare() {
		native.Free()

		return nil, fmt.Errorf("%w: %s", ErrBareRepository, location)
	}

	return &Repository{native: native}, nil
}

// Workdir returns the working tree directory with a trailing separator.
func (r *Repository) Workdir() string {
	return r.native.Workdir()
}

// Free releases the libgit2 handle. It is safe to call twice.
func (r *Repository) Free() {
	if r.native == nil {
		return
	}

	r.native.Free()
	r.native = nil
}

func (r *Repository) head() (Hash, error) {
	ref, err := r.native.Head()
	if err != nil {
		return Hash{}, fmt.Errorf("resolve HEAD: %w", err)
	}
	defer ref.Free()

	return hashOf(ref.Target()), nil
}

// commit looks a commit up; the caller frees it.
func (r *Repository) commit(hash Hash) (*git2go.Commit, error) {
	c, err := r.native.LookupCommit(hash.oid())
	if err != nil {
		return nil, fmt.Errorf("lookup commit %s: %w", hash, err)
	}

	return c, nil
}

// BranchTip returns the commit a local branch points at.
func (r *Repository) BranchTip(name string) (Hash, error) {
	branch, err := r.native.LookupBranch(name, git2go.BranchLocal)
	if err != nil {
		return Hash{}, fmt.Errorf("lookup branch %s: %w", name, err)
	}
	defer branch.Free()

	return hashOf(branch.Target()), nil
}
