// Package resolver maps calendar dates to main-line snapshots, memoizing every
// resolution in a snapcache.Store so each date is resolved at most once ever.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/codeshape/pkg/calendar"
	"github.com/Sumatoshi-tech/codeshape/pkg/snapcache"
	"github.com/Sumatoshi-tech/codeshape/pkg/vcs"
)

// ErrNoFurtherCommits signals that the main line has no commit after the
// requested date. It ends a crawl and is not a resolution fault.
var ErrNoFurtherCommits = errors.New("no further commits")

// ErrCorruptCache is returned when a cached sentinel cannot be interpreted.
var ErrCorruptCache = errors.New("corrupt snapshot cache entry")

// Restorer puts the working tree back on the main line tip.
type Restorer interface {
	RestoreMainLine(ctx context.Context) error
}

// Initial is the memoized first snapshot of the main line.
type Initial struct {
	Ref  vcs.Ref
	Date time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRestorer makes the resolver restore the main line before every uncached lookup.
func WithRestorer(restorer Restorer) Option {
	return func(r *Resolver) {
		r.restorer = restorer
	}
}

// WithLogger sets the logger for cache hits and misses.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// Resolver resolves snapshots through a cache.
type Resolver struct {
	cache    snapcache.Store
	history  vcs.Resolver
	restorer Restorer
	logger   *slog.Logger
}

// New creates a Resolver reading through cache to history.
func New(cache snapcache.Store, history vcs.Resolver, opts ...Option) *Resolver {
	r := &Resolver{
		cache:   cache,
		history: history,
		logger:  slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ResolveInitial returns the first main-line commit and its calendar date.
// Both sentinels are read and written in one transaction; present values are
// never re-resolved.
func (r *Resolver) ResolveInitial(ctx context.Context) (Initial, error) {
	var initial Initial

	err := r.cache.Transaction(ctx, func(tx snapcache.Tx) error {
		var txErr error

		initial, txErr = r.resolveInitial(ctx, tx)

		return txErr
	})
	if err != nil {
		return Initial{}, fmt.Errorf("resolve initial commit: %w", err)
	}

	return initial, nil
}

func (r *Resolver) resolveInitial(ctx context.Context, tx snapcache.Tx) (Initial, error) {
	commit, commitFound, err := tx.Get(snapcache.KeyInitialCommit)
	if err != nil {
		return Initial{}, err
	}

	dateValue, dateFound, err := tx.Get(snapcache.KeyInitialDate)
	if err != nil {
		return Initial{}, err
	}

	if !commitFound {
		ref, firstErr := r.history.FirstCommit(ctx)
		if firstErr != nil {
			return Initial{}, firstErr
		}

		commit = ref.String()

		putErr := tx.Put(snapcache.KeyInitialCommit, commit)
		if putErr != nil {
			return Initial{}, putErr
		}
	}

	if !dateFound {
		when, dateErr := r.history.CommitDate(ctx, vcs.Ref(commit))
		if dateErr != nil {
			return Initial{}, dateErr
		}

		dateValue = calendar.Key(calendar.Date(when.UTC()))

		putErr := tx.Put(snapcache.KeyInitialDate, dateValue)
		if putErr != nil {
			return Initial{}, putErr
		}
	}

	date, err := calendar.Parse(dateValue)
	if err != nil {
		return Initial{}, fmt.Errorf("%w: %s: %w", ErrCorruptCache, snapcache.KeyInitialDate, err)
	}

	r.logger.DebugContext(ctx, "initial snapshot",
		"ref", commit, "date", dateValue, "cached", commitFound && dateFound)

	return Initial{Ref: vcs.Ref(commit), Date: date}, nil
}

// ResolveForMonth returns the oldest main-line commit strictly after midnight
// UTC of date. A cached resolution is returned without touching the history.
// When the main line ends before date the error wraps ErrNoFurtherCommits and
// nothing is cached.
func (r *Resolver) ResolveForMonth(ctx context.Context, date time.Time) (vcs.Ref, error) {
	cutoff := calendar.Date(date)
	key := calendar.Key(cutoff)

	var ref vcs.Ref

	err := r.cache.Transaction(ctx, func(tx snapcache.Tx) error {
		cached, found, getErr := tx.Get(key)
		if getErr != nil {
			return getErr
		}

		if found {
			ref = vcs.Ref(cached)
			r.logger.DebugContext(ctx, "snapshot cache hit", "key", key, "ref", ref.Short())

			return nil
		}

		resolved, lookupErr := r.lookup(ctx, cutoff)
		if lookupErr != nil {
			return lookupErr
		}

		ref = resolved
		r.logger.DebugContext(ctx, "snapshot resolved", "key", key, "ref", ref.Short())

		return tx.Put(key, ref.String())
	})

	switch {
	case errors.Is(err, vcs.ErrNoCommitAfter):
		return "", fmt.Errorf("%w: after %s: %w", ErrNoFurtherCommits, key, err)
	case err != nil:
		return "", fmt.Errorf("resolve snapshot for %s: %w", key, err)
	}

	return ref, nil
}

func (r *Resolver) lookup(ctx context.Context, cutoff time.Time) (vcs.Ref, error) {
	if r.restorer != nil {
		err := r.restorer.RestoreMainLine(ctx)
		if err != nil {
			return "", err
		}
	}

	ref, err := r.history.FirstCommitAfter(ctx, cutoff)
	if err != nil {
		return "", err
	}

	if ref == "" {
		return "", vcs.ErrNoCommitAfter
	}

	return ref, nil
}
