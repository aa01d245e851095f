package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// ErrFakeCheckout is returned by Fake when a checkout is forced to fail.
var ErrFakeCheckout = errors.New("fake: checkout failed")

// FakeCommit is one commit of a Fake history.
type FakeCommit struct {
	Ref    Ref
	When   time.Time
	Author string

	// Files maps tracked paths to their contents.
	Files map[string]string

	// Missing lists paths that are tracked but never written to the working
	// tree, standing in for files that vanish or cannot be read.
	Missing []string
}

// Fake is an in-memory History for tests. Main-line commits are kept oldest
// first. Checkout writes the snapshot's files into a real directory so that
// extraction reads from disk exactly as it does against a git working tree.
type Fake struct {
	mu sync.Mutex

	root     string
	mainLine []FakeCommit
	sideLine []FakeCommit
	head     Ref
	failRefs map[Ref]bool

	// Lookups counts FirstCommitAfter calls.
	Lookups int
	// Checkouts records every checked-out ref; "" marks a main-line restore.
	Checkouts []Ref
}

// NewFake creates a Fake rooted at dir with the given main-line commits, which
// must be ordered oldest first.
func NewFake(dir string, mainLine ...FakeCommit) *Fake {
	return &Fake{
		root:     dir,
		mainLine: mainLine,
		failRefs: make(map[Ref]bool),
	}
}

// AddSideCommit adds a commit reachable only from another ref. It counts
// towards contributors but is never resolved or checked out.
func (f *Fake) AddSideCommit(c FakeCommit) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sideLine = append(f.sideLine, c)
}

// FailCheckout makes every later checkout of ref fail.
func (f *Fake) FailCheckout(ref Ref) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failRefs[ref] = true
}

// Head returns the currently checked-out ref.
func (f *Fake) Head() Ref {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.head
}

// Root implements Tree.
func (f *Fake) Root() string {
	return f.root
}

// FirstCommit implements Resolver.
func (f *Fake) FirstCommit(_ context.Context) (Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.mainLine) == 0 {
		return "", ErrEmptyHistory
	}

	return f.mainLine[0].Ref, nil
}

// CommitDate implements Resolver.
func (f *Fake) CommitDate(_ context.Context, ref Ref) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	commit, ok := f.lookup(ref)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnknownRef, ref)
	}

	return commit.When, nil
}

// FirstCommitAfter implements Resolver.
func (f *Fake) FirstCommitAfter(_ context.Context, t time.Time) (Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Lookups++

	for _, commit := range f.mainLine {
		if commit.When.After(t) {
			return commit.Ref, nil
		}
	}

	return "", ErrNoCommitAfter
}

// Checkout implements Tree.
func (f *Fake) Checkout(_ context.Context, ref Ref) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Checkouts = append(f.Checkouts, ref)

	if f.failRefs[ref] {
		return fmt.Errorf("%w: %s", ErrFakeCheckout, ref)
	}

	commit, ok := f.lookup(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRef, ref)
	}

	return f.materialize(commit)
}

// CheckoutMainLine implements Tree.
func (f *Fake) CheckoutMainLine(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Checkouts = append(f.Checkouts, "")

	if len(f.mainLine) == 0 {
		return ErrEmptyHistory
	}

	return f.materialize(f.mainLine[len(f.mainLine)-1])
}

// ListTrackedFiles implements Tree.
func (f *Fake) ListTrackedFiles(_ context.Context, spec Pathspec) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matcher, err := spec.Compile()
	if err != nil {
		return nil, err
	}

	commit, ok := f.lookup(f.head)
	if !ok {
		return nil, nil
	}

	paths := make([]string, 0, len(commit.Files)+len(commit.Missing))
	for path := range commit.Files {
		paths = append(paths, path)
	}

	paths = append(paths, commit.Missing...)
	slices.Sort(paths)

	return matcher.Filter(paths), nil
}

// ContributorCount implements Contributors.
func (f *Fake) ContributorCount(_ context.Context, since, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	authors := make(map[string]struct{})

	for _, commit := range slices.Concat(f.mainLine, f.sideLine) {
		if commit.When.Before(since) || !commit.When.Before(before) {
			continue
		}

		authors[commit.Author] = struct{}{}
	}

	return len(authors), nil
}

func (f *Fake) lookup(ref Ref) (FakeCommit, bool) {
	for _, commit := range slices.Concat(f.mainLine, f.sideLine) {
		if commit.Ref == ref {
			return commit, true
		}
	}

	return FakeCommit{}, false
}

func (f *Fake) materialize(commit FakeCommit) error {
	if previous, ok := f.lookup(f.head); ok {
		for path := range previous.Files {
			removeErr := os.Remove(filepath.Join(f.root, filepath.FromSlash(path)))
			if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				return fmt.Errorf("fake: remove %s: %w", path, removeErr)
			}
		}
	}

	for path, content := range commit.Files {
		full := filepath.Join(f.root, filepath.FromSlash(path))

		mkdirErr := os.MkdirAll(filepath.Dir(full), 0o755)
		if mkdirErr != nil {
			return fmt.Errorf("fake: mkdir for %s: %w", path, mkdirErr)
		}

		writeErr := os.WriteFile(full, []byte(content), 0o600)
		if writeErr != nil {
			return fmt.Errorf("fake: write %s: %w", path, writeErr)
		}
	}

	f.head = commit.Ref

	return nil
}
