// Package snapcache persists the mapping from calendar keys to resolved
// snapshot references across runs.
//
// Entries are write-once: a key that holds a non-empty value is never
// overwritten. The two sentinel keys KeyInitialCommit and KeyInitialDate share
// the namespace with YYYY-MM-DD calendar keys.
package snapcache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel keys for the memoized initial resolution.
const (
	KeyInitialCommit = "initial_commit"
	KeyInitialDate   = "initial_date"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Sentinel errors.
var (
	ErrKeyExists      = errors.New("cache key already populated")
	ErrEmptyValue     = errors.New("cache value must not be empty")
	ErrEmptyKey       = errors.New("cache key must not be empty")
	ErrUnknownBackend = errors.New("unknown cache backend")
	ErrClosed         = errors.New("cache is closed")
)

// Entry is one persisted key/value pair.
type Entry struct {
	Key       string
	Value     string
	CreatedAt time.Time
}

// Tx is the view of the store inside a transaction.
type Tx interface {
	// Get returns the value of key. An empty stored value reads as absent.
	Get(key string) (string, bool, error)
	// Put stores value under key. It fails with ErrKeyExists when key already
	// holds a value and with ErrEmptyValue when value is empty.
	Put(key, value string) error
}

// Store is a durable, write-once key/value memo.
type Store interface {
	// Get returns the value of key outside any transaction.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put stores one entry in its own transaction.
	Put(ctx context.Context, key, value string) error
	// Transaction runs fn atomically. Writes made through tx are persisted only
	// when fn returns nil. Concurrent transactions on the same store, including
	// ones from other processes for the sqlite backend, are serialized.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	// Entries returns every entry ordered by key.
	Entries(ctx context.Context) ([]Entry, error)
	// Close releases the store.
	Close() error
}

// Backends returns the supported backend names.
func Backends() []string {
	return []string{BackendSQLite, BackendJSON}
}

// Open opens the store at path using the named backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendJSON:
		return OpenJSON(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func validate(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if value == "" {
		return fmt.Errorf("%w: key %q", ErrEmptyValue, key)
	}

	return nil
}
