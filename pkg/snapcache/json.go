package snapcache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/Sumatoshi-tech/codeshape/pkg/persist"
)

// jsonDocumentVersion is the on-disk format version of the JSON backend.
const jsonDocumentVersion = 1

type jsonEntry struct {
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

type jsonDocument struct {
	Version int                  `json:"version"`
	Entries map[string]jsonEntry `json:"entries"`
}

// lockRetryDelay is how often a blocked transaction retries the lock file.
const lockRetryDelay = 10 * time.Millisecond

// JSONStore is a Store backed by a single JSON document. Every committed
// transaction rewrites the document atomically. Transactions hold an exclusive
// lock on a sibling .lock file and read the document afresh under it, so
// handles in other processes never overwrite or drop each other's keys.
type JSONStore struct {
	mu     sync.Mutex
	doc    persist.Document
	lock   *flock.Flock
	closed bool
	now    func() time.Time
}

var _ Store = (*JSONStore)(nil)

// OpenJSON opens the document at path, starting empty when it does not exist.
// The document is always stored with a .json extension.
func OpenJSON(path string) (*JSONStore, error) {
	doc := persist.At(path, persist.JSON{Indent: "  "})

	store := &JSONStore{
		doc:  doc,
		lock: flock.New(doc.Path() + ".lock"),
		now:  time.Now,
	}

	if _, err := store.load(); err != nil {
		return nil, err
	}

	return store, nil
}

// load reads the current document. A missing document is empty.
func (s *JSONStore) load() (map[string]jsonEntry, error) {
	var doc jsonDocument

	err := s.doc.Load(&doc)

	switch {
	case errors.Is(err, os.ErrNotExist):
		return map[string]jsonEntry{}, nil
	case err != nil:
		return nil, fmt.Errorf("load cache document %s: %w", s.doc.Path(), err)
	}

	if doc.Entries == nil {
		doc.Entries = map[string]jsonEntry{}
	}

	return doc.Entries, nil
}

// Path returns the file the document is stored in.
func (s *JSONStore) Path() string {
	return s.doc.Path()
}

// Close implements Store.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}

// Get implements Store. Documents are replaced by rename, so a read without
// the lock still sees a whole version.
func (s *JSONStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, ErrClosed
	}

	entries, err := s.load()
	if err != nil {
		return "", false, err
	}

	return lookup(entries, key)
}

// Put implements Store.
func (s *JSONStore) Put(ctx context.Context, key, value string) error {
	return s.Transaction(ctx, func(tx Tx) error {
		return tx.Put(key, value)
	})
}

// Transaction implements Store. Writes are staged and saved in one document
// write when fn succeeds; on any error the document is unchanged.
func (s *JSONStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock cache document: %w", err)
	}

	if !locked {
		return fmt.Errorf("lock cache document: %w", ctx.Err())
	}

	defer func() { _ = s.lock.Unlock() }()

	current, err := s.load()
	if err != nil {
		return err
	}

	tx := &jsonTx{base: current, staged: make(map[string]jsonEntry), now: s.now}

	if err = fn(tx); err != nil {
		return err
	}

	if len(tx.staged) == 0 {
		return nil
	}

	maps.Copy(current, tx.staged)

	err = s.doc.Save(jsonDocument{Version: jsonDocumentVersion, Entries: current})
	if err != nil {
		return fmt.Errorf("save cache document: %w", err)
	}

	return nil
}

// Entries implements Store.
func (s *JSONStore) Entries(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	current, err := s.load()
	if err != nil {
		return nil, err
	}

	keys := slices.Sorted(maps.Keys(current))
	entries := make([]Entry, 0, len(keys))

	for _, key := range keys {
		entry := current[key]
		entries = append(entries, Entry{Key: key, Value: entry.Value, CreatedAt: entry.CreatedAt})
	}

	return entries, nil
}

type jsonTx struct {
	base   map[string]jsonEntry
	staged map[string]jsonEntry
	now    func() time.Time
}

func (t *jsonTx) Get(key string) (string, bool, error) {
	if entry, ok := t.staged[key]; ok {
		return entry.Value, true, nil
	}

	return lookup(t.base, key)
}

func (t *jsonTx) Put(key, value string) error {
	err := validate(key, value)
	if err != nil {
		return err
	}

	_, found, _ := t.Get(key)
	if found {
		return fmt.Errorf("%w: %q", ErrKeyExists, key)
	}

	t.staged[key] = jsonEntry{Value: value, CreatedAt: t.now().UTC()}

	return nil
}

func lookup(entries map[string]jsonEntry, key string) (string, bool, error) {
	entry, ok := entries[key]
	if !ok || entry.Value == "" {
		return "", false, nil
	}

	return entry.Value, true, nil
}
