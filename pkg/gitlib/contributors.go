package gitlib

import (
	"errors"
	"fmt"
	"time"

	git2go "github.com/libgit2/git2go/v34"
)

// oldCommitSlop is how many consecutive commits older than the window the
// time-sorted walk inspects before it stops. Committer clocks can be skewed, so
// one old commit does not prove that everything behind it is older.
const oldCommitSlop = 5

// AuthorsBetween returns the distinct author names of commits reachable from any
// reference (and HEAD) whose committer time lies in [since, before).
func (r *Repository) AuthorsBetween(since, before time.Time) (map[string]struct{}, error) {
	authors, _, err := r.authorsBetween(since, before)

	return authors, err
}

// authorsBetween walks newest first and also reports how many commits it visited.
func (r *Repository) authorsBetween(since, before time.Time) (map[string]struct{}, int, error) {
	walk, err := r.native.Walk()
	if err != nil {
		return nil, 0, fmt.Errorf("create revwalk: %w", err)
	}
	defer walk.Free()

	walk.Sorting(git2go.SortTime)

	if err = r.pushAllRefs(walk); err != nil {
		return nil, 0, err
	}

	authors := make(map[string]struct{})
	visited, old := 0, 0

	err = walk.Iterate(func(commit *git2go.Commit) bool {
		defer commit.Free()

		visited++

		when := commit.Committer().When
		if when.Before(since) {
			old++

			return old < oldCommitSlop
		}

		old = 0

		if when.Before(before) {
			authors[commit.Author().Name] = struct{}{}
		}

		return true
	})
	if err != nil {
		return nil, visited, fmt.Errorf("revwalk iterate: %w", err)
	}

	return authors, visited, nil
}

func (r *Repository) pushAllRefs(walk *git2go.RevWalk) error {
	iter, err := r.native.NewReferenceIterator()
	if err != nil {
		return fmt.Errorf("iterate references: %w", err)
	}
	defer iter.Free()

	for {
		ref, nextErr := iter.Next()
		if nextErr != nil {
			if git2go.IsErrorCode(nextErr, git2go.ErrorCodeIterOver) {
				break
			}

			return fmt.Errorf("next reference: %w", nextErr)
		}

		// Tags may point at non-commit objects; those carry no history.
		obj, peelErr := ref.Peel(git2go.ObjectCommit)
		ref.Free()

		if peelErr != nil {
			continue
		}

		pushErr := walk.Push(obj.Id())
		obj.Free()

		if pushErr != nil {
			return fmt.Errorf("push reference: %w", pushErr)
		}
	}

	headErr := walk.PushHead()
	if headErr != nil && !isUnbornHead(headErr) {
		return fmt.Errorf("push HEAD: %w", headErr)
	}

	return nil
}

func isUnbornHead(err error) bool {
	var gitErr *git2go.GitError

	return errors.As(err, &gitErr) &&
		(gitErr.Code == git2go.ErrorCodeUnbornBranch || gitErr.Code == git2go.ErrorCodeNotFound)
}
