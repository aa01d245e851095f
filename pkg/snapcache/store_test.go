package snapcache_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codeshape/pkg/snapcache"
)

var errAbort = errors.New("abort")

// backends lists every backend with the file name it is opened at.
var backends = []struct {
	name string
	file string
}{
	{snapcache.BackendSQLite, "cache.db"},
	{snapcache.BackendJSON, "cache.json"},
}

func openStore(t *testing.T, backend, path string) snapcache.Store {
	t.Helper()

	store, err := snapcache.Open(backend, path)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func TestOpen_UnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := snapcache.Open("redis", filepath.Join(t.TempDir(), "cache"))
	require.ErrorIs(t, err, snapcache.ErrUnknownBackend)
}

func TestStore_GetPut(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := openStore(t, backend.name, filepath.Join(t.TempDir(), backend.file))

			_, found, err := store.Get(ctx, "2024-11-19")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, store.Put(ctx, "2024-11-19", "abc123"))

			value, found, err := store.Get(ctx, "2024-11-19")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "abc123", value)
		})
	}
}

func TestStore_WriteOnce(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := openStore(t, backend.name, filepath.Join(t.TempDir(), backend.file))

			require.NoError(t, store.Put(ctx, snapcache.KeyInitialCommit, "first"))

			err := store.Put(ctx, snapcache.KeyInitialCommit, "second")
			require.ErrorIs(t, err, snapcache.ErrKeyExists)

			value, _, err := store.Get(ctx, snapcache.KeyInitialCommit)
			require.NoError(t, err)
			assert.Equal(t, "first", value)

			err = store.Put(ctx, "2024-01-01", "")
			require.ErrorIs(t, err, snapcache.ErrEmptyValue)

			err = store.Put(ctx, "", "x")
			require.ErrorIs(t, err, snapcache.ErrEmptyKey)
		})
	}
}

func TestStore_TransactionRollback(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := openStore(t, backend.name, filepath.Join(t.TempDir(), backend.file))

			err := store.Transaction(ctx, func(tx snapcache.Tx) error {
				require.NoError(t, tx.Put(snapcache.KeyInitialCommit, "abc"))

				// Staged writes are visible inside the transaction.
				value, found, getErr := tx.Get(snapcache.KeyInitialCommit)
				require.NoError(t, getErr)
				assert.True(t, found)
				assert.Equal(t, "abc", value)

				return errAbort
			})
			require.ErrorIs(t, err, errAbort)

			_, found, err := store.Get(ctx, snapcache.KeyInitialCommit)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestStore_TransactionCommitsBothSentinels(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := openStore(t, backend.name, filepath.Join(t.TempDir(), backend.file))

			err := store.Transaction(ctx, func(tx snapcache.Tx) error {
				putErr := tx.Put(snapcache.KeyInitialCommit, "abc")
				if putErr != nil {
					return putErr
				}

				return tx.Put(snapcache.KeyInitialDate, "2004-11-24")
			})
			require.NoError(t, err)

			entries, err := store.Entries(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, snapcache.KeyInitialCommit, entries[0].Key)
			assert.Equal(t, snapcache.KeyInitialDate, entries[1].Key)
			assert.Equal(t, "2004-11-24", entries[1].Value)
			assert.False(t, entries[1].CreatedAt.IsZero())
		})
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			path := filepath.Join(t.TempDir(), backend.file)

			first, err := snapcache.Open(backend.name, path)
			require.NoError(t, err)
			require.NoError(t, first.Put(ctx, "2024-11-19", "abc"))
			require.NoError(t, first.Put(ctx, "2024-12-19", "def"))
			require.NoError(t, first.Close())

			second := openStore(t, backend.name, path)

			entries, err := second.Entries(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "2024-11-19", entries[0].Key)
			assert.Equal(t, "def", entries[1].Value)

			err = second.Put(ctx, "2024-11-19", "other")
			require.ErrorIs(t, err, snapcache.ErrKeyExists)
		})
	}
}

func TestJSONStore_Closed(t *testing.T) {
	t.Parallel()

	store, err := snapcache.OpenJSON(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, _, err = store.Get(context.Background(), "k")
	require.ErrorIs(t, err, snapcache.ErrClosed)
}

func TestJSONStore_PathAddsExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store, err := snapcache.OpenJSON(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)

	defer store.Close()

	assert.Equal(t, filepath.Join(dir, "cache.json"), store.Path())
}

func TestStore_SecondHandleCannotOverwrite(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			path := filepath.Join(t.TempDir(), backend.file)

			first := openStore(t, backend.name, path)
			second := openStore(t, backend.name, path)

			require.NoError(t, first.Put(ctx, "2024-01-01", "aaa"))
			require.ErrorIs(t, second.Put(ctx, "2024-01-01", "bbb"), snapcache.ErrKeyExists)

			// Keys written through one handle survive a commit through the other.
			require.NoError(t, second.Put(ctx, "2024-02-01", "ccc"))

			value, found, err := first.Get(ctx, "2024-02-01")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "ccc", value)

			reopened := openStore(t, backend.name, path)

			value, found, err = reopened.Get(ctx, "2024-01-01")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "aaa", value)
		})
	}
}

func TestStore_SerializesReadThenWriteAcrossHandles(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, 1, racePuts(t, backend.name, filepath.Join(t.TempDir(), backend.file)))
		})
	}
}

// racePuts runs a get-then-put of one key from several handles at once and
// returns how many of them wrote.
func racePuts(t *testing.T, backend, path string) int {
	t.Helper()

	ctx := context.Background()

	const handles = 4

	stores := make([]snapcache.Store, handles)
	for i := range stores {
		stores[i] = openStore(t, backend, path)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		writes int
	)

	for i, store := range stores {
		wg.Add(1)

		go func(id int, store snapcache.Store) {
			defer wg.Done()

			wrote := false

			err := store.Transaction(ctx, func(tx snapcache.Tx) error {
				wrote = false

				_, found, getErr := tx.Get("2024-01-01")
				if getErr != nil || found {
					return getErr
				}

				putErr := tx.Put("2024-01-01", string(rune('a'+id)))
				wrote = putErr == nil

				return putErr
			})
			assert.NoError(t, err)

			if wrote {
				mu.Lock()
				writes++
				mu.Unlock()
			}
		}(i, store)
	}

	wg.Wait()

	return writes
}
