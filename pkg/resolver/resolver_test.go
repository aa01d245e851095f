package resolver_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codeshape/pkg/resolver"
	"github.com/Sumatoshi-tech/codeshape/pkg/snapcache"
	"github.com/Sumatoshi-tech/codeshape/pkg/vcs"
)

var errRestore = errors.New("restore failed")

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func fixture(t *testing.T) (*vcs.Fake, snapcache.Store) {
	t.Helper()

	fake := vcs.NewFake(t.TempDir(),
		vcs.FakeCommit{Ref: "c1", When: at(2024, time.January, 5, 10), Author: "alice"},
		vcs.FakeCommit{Ref: "c2", When: at(2024, time.February, 1, 0), Author: "bob"},
		vcs.FakeCommit{Ref: "c3", When: at(2024, time.February, 20, 9), Author: "alice"},
		vcs.FakeCommit{Ref: "c4", When: at(2024, time.April, 2, 9), Author: "carol"},
	)

	store, err := snapcache.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return fake, store
}

type restorerFunc func(ctx context.Context) error

func (f restorerFunc) RestoreMainLine(ctx context.Context) error {
	return f(ctx)
}

func TestResolveInitial_Memoized(t *testing.T) {
	t.Parallel()

	fake, store := fixture(t)
	ctx := context.Background()

	initial, err := resolver.New(store, fake).ResolveInitial(ctx)
	require.NoError(t, err)
	assert.Equal(t, vcs.Ref("c1"), initial.Ref)
	assert.Equal(t, time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC), initial.Date)

	value, found, err := store.Get(ctx, snapcache.KeyInitialDate)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2024-01-05", value)

	// A different history cannot change the memoized answer.
	other := vcs.NewFake(t.TempDir(), vcs.FakeCommit{Ref: "zz", When: at(2020, time.May, 1, 0)})

	again, err := resolver.New(store, other).ResolveInitial(ctx)
	require.NoError(t, err)
	assert.Equal(t, initial, again)
}

func TestResolveInitial_FillsMissingDate(t *testing.T) {
	t.Parallel()

	fake, store := fixture(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, snapcache.KeyInitialCommit, "c2"))

	initial, err := resolver.New(store, fake).ResolveInitial(ctx)
	require.NoError(t, err)
	assert.Equal(t, vcs.Ref("c2"), initial.Ref)
	assert.Equal(t, "2024-02-01", initial.Date.Format(time.DateOnly))
}

func TestResolveInitial_CorruptDate(t *testing.T) {
	t.Parallel()

	fake, store := fixture(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, snapcache.KeyInitialCommit, "c1"))
	require.NoError(t, store.Put(ctx, snapcache.KeyInitialDate, "last tuesday"))

	_, err := resolver.New(store, fake).ResolveInitial(ctx)
	require.ErrorIs(t, err, resolver.ErrCorruptCache)
}

func TestResolveInitial_EmptyHistory(t *testing.T) {
	t.Parallel()

	_, store := fixture(t)

	_, err := resolver.New(store, vcs.NewFake(t.TempDir())).ResolveInitial(context.Background())
	require.ErrorIs(t, err, vcs.ErrEmptyHistory)

	_, found, getErr := store.Get(context.Background(), snapcache.KeyInitialCommit)
	require.NoError(t, getErr)
	assert.False(t, found)
}

func TestResolveForMonth_MemoizesLookup(t *testing.T) {
	t.Parallel()

	fake, store := fixture(t)
	ctx := context.Background()
	r := resolver.New(store, fake)

	first, err := r.ResolveForMonth(ctx, at(2024, time.February, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Lookups)

	second, err := r.ResolveForMonth(ctx, at(2024, time.February, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.Lookups)

	// A fresh resolver over the same store reuses the persisted entry.
	third, err := resolver.New(store, fake).ResolveForMonth(ctx, at(2024, time.February, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.Equal(t, 1, fake.Lookups)
}

func TestResolveForMonth_StrictlyAfterMidnight(t *testing.T) {
	t.Parallel()

	fake, store := fixture(t)
	r := resolver.New(store, fake)

	// c2 is committed exactly at midnight of the key, so it is not after it.
	ref, err := r.ResolveForMonth(context.Background(), at(2024, time.February, 1, 15))
	require.NoError(t, err)
	assert.Equal(t, vcs.Ref("c3"), ref)

	ref, err = r.ResolveForMonth(context.Background(), at(2024, time.January, 31, 0))
	require.NoError(t, err)
	assert.Equal(t, vcs.Ref("c2"), ref)
}

func TestResolveForMonth_Monotonic(t *testing.T) {
	t.Parallel()

	fake, store := fixture(t)
	r := resolver.New(store, fake)
	order := map[vcs.Ref]int{"c1": 1, "c2": 2, "c3": 3, "c4": 4}

	previous := 0

	for day := at(2023, time.December, 1, 0); day.Before(at(2024, time.April, 2, 0)); day = day.AddDate(0, 0, 3) {
		ref, err := r.ResolveForMonth(context.Background(), day)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, order[ref], previous, "date %s", day)

		previous = order[ref]
	}
}

func TestResolveForMonth_NoFurtherCommits(t *testing.T) {
	t.Parallel()

	fake, store := fixture(t)
	ctx := context.Background()

	_, err := resolver.New(store, fake).ResolveForMonth(ctx, at(2024, time.May, 1, 0))
	require.ErrorIs(t, err, resolver.ErrNoFurtherCommits)
	require.ErrorIs(t, err, vcs.ErrNoCommitAfter)

	_, found, getErr := store.Get(ctx, "2024-05-01")
	require.NoError(t, getErr)
	assert.False(t, found)
}

func TestResolveForMonth_RestoresBeforeLookupOnly(t *testing.T) {
	t.Parallel()

	fake, store := fixture(t)
	ctx := context.Background()
	restores := 0

	r := resolver.New(store, fake, resolver.WithRestorer(restorerFunc(func(context.Context) error {
		restores++

		return nil
	})))

	_, err := r.ResolveForMonth(ctx, at(2024, time.March, 1, 0))
	require.NoError(t, err)

	_, err = r.ResolveForMonth(ctx, at(2024, time.March, 1, 0))
	require.NoError(t, err)

	assert.Equal(t, 1, restores)
}

func TestResolveForMonth_RestoreFailure(t *testing.T) {
	t.Parallel()

	fake, store := fixture(t)

	r := resolver.New(store, fake, resolver.WithRestorer(restorerFunc(func(context.Context) error {
		return errRestore
	})))

	_, err := r.ResolveForMonth(context.Background(), at(2024, time.March, 1, 0))
	require.ErrorIs(t, err, errRestore)
	assert.NotErrorIs(t, err, resolver.ErrNoFurtherCommits)
	assert.Equal(t, 0, fake.Lookups)
}

func TestResolveForMonth_EmptyCachedValueIsRequeried(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	store, err := snapcache.OpenSQLite(path)
	require.NoError(t, err)

	defer store.Close()

	// Older runs could persist an empty resolution for a month.
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO snapshots (key, value, created_at) VALUES ('2024-03-01', '', '2024-03-02T00:00:00Z')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	fake, _ := fixture(t)

	ref, err := resolver.New(store, fake).ResolveForMonth(ctx, at(2024, time.March, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, vcs.Ref("c4"), ref)
	assert.Equal(t, 1, fake.Lookups)

	value, found, err := store.Get(ctx, "2024-03-01")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "c4", value)
}
