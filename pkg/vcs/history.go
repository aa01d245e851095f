// Package vcs defines the version-control capability a crawl depends on.
//
// The crawl never talks to git directly. It goes through History, which the
// gitlib package implements on top of libgit2 and Fake implements in memory.
package vcs

import (
	"context"
	"errors"
	"time"
)

// ErrNoCommitAfter is returned by FirstCommitAfter when the main line has no
// commit later than the requested instant.
var ErrNoCommitAfter = errors.New("no commit after date")

// ErrUnknownRef is returned when a snapshot reference does not name a commit.
var ErrUnknownRef = errors.New("unknown snapshot ref")

// ErrEmptyHistory is returned when the main line has no commits.
var ErrEmptyHistory = errors.New("main line has no commits")

// Ref identifies an immutable repository snapshot (a commit hash).
type Ref string

// String returns the ref as a string.
func (r Ref) String() string {
	return string(r)
}

// Short returns an abbreviated form of the ref for progress output.
func (r Ref) Short() string {
	const shortLen = 10

	if len(r) <= shortLen {
		return string(r)
	}

	return string(r[:shortLen])
}

// Resolver is the read-only part of History used to map dates to snapshots.
type Resolver interface {
	// FirstCommit returns the oldest commit on the main line.
	FirstCommit(ctx context.Context) (Ref, error)

	// CommitDate returns the committer date of ref.
	CommitDate(ctx context.Context, ref Ref) (time.Time, error)

	// FirstCommitAfter returns the oldest main-line commit committed strictly
	// after t, or ErrNoCommitAfter.
	FirstCommitAfter(ctx context.Context, t time.Time) (Ref, error)
}

// Tree mutates and lists the shared working tree.
type Tree interface {
	// Root returns the working tree directory.
	Root() string

	// Checkout makes the tracked files of the working tree match ref.
	Checkout(ctx context.Context, ref Ref) error

	// CheckoutMainLine restores the working tree to the main line tip.
	CheckoutMainLine(ctx context.Context) error

	// ListTrackedFiles returns the sorted tracked paths of the checked-out
	// snapshot selected by spec.
	ListTrackedFiles(ctx context.Context, spec Pathspec) ([]string, error)
}

// Contributors counts distinct authors over a period.
type Contributors interface {
	// ContributorCount returns the number of distinct author names over all
	// refs with a committer time in [since, before).
	ContributorCount(ctx context.Context, since, before time.Time) (int, error)
}

// History is the full version-control capability.
type History interface {
	Resolver
	Tree
	Contributors
}
