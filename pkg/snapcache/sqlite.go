package snapcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// sqliteDSNParams enables WAL, waits on locks, and opens every transaction
// with BEGIN IMMEDIATE so read-then-write pairs serialize across processes.
const sqliteDSNParams = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)" +
	"&_pragma=synchronous(NORMAL)&_txlock=immediate"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	created_at TEXT NOT NULL
);`

// A stored empty value is treated as absent, so it may be filled in.
const sqliteInsert = `
INSERT INTO snapshots (key, value, created_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at
WHERE snapshots.value = ''`

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+sqliteDSNParams)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	// One connection: the crawl is sequential and WAL handles other processes.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, now: time.Now}

	err = retryOp(context.Background(), defaultRetryConfig, func() error {
		_, execErr := db.Exec(sqliteSchema)

		return execErr
	})
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("migrate cache db %s: %w", path, err)
	}

	return store, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)

	err := retryOp(ctx, defaultRetryConfig, func() error {
		var getErr error

		value, found, getErr = sqliteGet(ctx, s.db, key)

		return getErr
	})
	if err != nil {
		return "", false, err
	}

	return value, found, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key, value string) error {
	return s.Transaction(ctx, func(tx Tx) error {
		return tx.Put(key, value)
	})
}

// Transaction implements Store. The whole body is retried when the database
// reports a lock conflict, so fn must not have side effects outside tx.
func (s *SQLiteStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return retryOp(ctx, defaultRetryConfig, func() error {
		return s.runTx(ctx, fn)
	})
}

func (s *SQLiteStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache transaction: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	err = fn(&sqliteTx{ctx: ctx, tx: sqlTx, now: s.now})
	if err != nil {
		return err
	}

	err = sqlTx.Commit()
	if err != nil {
		return fmt.Errorf("commit cache transaction: %w", err)
	}

	return nil
}

// Entries implements Store.
func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	err := retryOp(ctx, defaultRetryConfig, func() error {
		var listErr error

		entries, listErr = s.listEntries(ctx)

		return listErr
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (s *SQLiteStore) listEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, created_at FROM snapshots ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			entry     Entry
			createdAt string
		)

		err = rows.Scan(&entry.Key, &entry.Value, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}

		entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}

	return entries, nil
}

// queryer is the subset of *sql.DB and *sql.Tx used for lookups.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteGet(ctx context.Context, q queryer, key string) (string, bool, error) {
	var value string

	err := q.QueryRowContext(ctx, `SELECT value FROM snapshots WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("get cache key %q: %w", key, err)
	}

	if value == "" {
		return "", false, nil
	}

	return value, true, nil
}

type sqliteTx struct {
	ctx context.Context //nolint:containedctx // scoped to one Transaction call
	tx  *sql.Tx
	now func() time.Time
}

func (t *sqliteTx) Get(key string) (string, bool, error) {
	return sqliteGet(t.ctx, t.tx, key)
}

func (t *sqliteTx) Put(key, value string) error {
	err := validate(key, value)
	if err != nil {
		return err
	}

	createdAt := t.now().UTC().Format(time.RFC3339Nano)

	res, err := t.tx.ExecContext(t.ctx, sqliteInsert, key, value, createdAt)
	if err != nil {
		return fmt.Errorf("put cache key %q: %w", key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put cache key %q: %w", key, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %q", ErrKeyExists, key)
	}

	return nil
}
