// Package vault stores folders, login items, their URIs and custom fields in
// a single SQLite database and enforces the referential rules between them.
//
// Every multi-row write runs inside one transaction. Callers group several
// operations atomically through Store.Update; the Store methods with the same
// names are one-shot wrappers around a single-operation transaction.
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// Constants
const (
	DBFileName = "vault.db"
	FileMode   = 0600 // Owner read/write only
	DirMode    = 0700 // Owner read/write/execute only

	// DefaultBusyTimeout is how long SQLite waits on a locked database.
	DefaultBusyTimeout = 5 * time.Second

	// Disk capacity thresholds
	MinDiskSpaceBytes  = 10 * 1024 * 1024 // 10 MB minimum free space
	DiskWarningPercent = 90               // Warn when disk is 90% full

	// TimestampLayout is used for every timestamp the engine writes.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// ErrInsufficientDisk is wrapped in a StorageError when a large write would
// exhaust the disk.
var ErrInsufficientDisk = errors.New("vault: insufficient disk space")

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is an open vault database.
type Store struct {
	path        string
	db          *sql.DB
	mu          sync.RWMutex // guards db against Close
	now         func() time.Time
	busyTimeout time.Duration
	log         zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp revisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithLogger sets the logger used for migration and disk warnings.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// Open opens the vault database at path, creating it and its directory if
// needed, and brings the schema to the current version.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:        path,
		now:         time.Now,
		busyTimeout: DefaultBusyTimeout,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return nil, &StorageError{Op: "create vault directory", Err: err}
	}

	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return nil, &StorageError{Op: "open database", Err: err}
	}

	// A single connection serialises transactions, and the pragmas in the
	// DSN apply to it for its whole lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageErr("open database", err)
	}

	if err := migrateSchema(ctx, db, s.log); err != nil {
		db.Close()
		return nil, err
	}

	if err := os.Chmod(path, FileMode); err != nil {
		db.Close()
		return nil, &StorageError{Op: "set database permissions", Err: err}
	}

	s.db = db
	return s, nil
}

func (s *Store) dsn() string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_txlock=immediate",
		filepath.ToSlash(s.path), s.busyTimeout.Milliseconds())
}

// Close closes the database. Further use of the store fails with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return &StorageError{Op: "close database", Err: err}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Now returns the current time according to the store clock.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// Timestamp returns Now formatted with TimestampLayout.
func (s *Store) Timestamp() string {
	return s.Now().Format(TimestampLayout)
}

// Update runs fn inside a write transaction. The transaction commits when fn
// returns nil and rolls back on error or panic; panics are rethrown.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return &StorageError{Op: "begin transaction", Err: ErrClosed}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}

	tx := &Tx{ctx: ctx, tx: sqlTx, now: s.Timestamp()}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
			return
		}
		if cerr := sqlTx.Commit(); cerr != nil {
			err = storageErr("commit transaction", cerr)
		}
	}()

	return fn(tx)
}

// View runs fn inside a transaction that is always rolled back, so every
// read in fn sees the same snapshot. fn must only read.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return &StorageError{Op: "begin transaction", Err: ErrClosed}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	return fn(&Tx{ctx: ctx, tx: sqlTx, now: s.Timestamp()})
}

// read runs fn against the database outside of an explicit transaction.
func (s *Store) read(op string, fn func(q dbtx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return &StorageError{Op: op, Err: ErrClosed}
	}
	return fn(s.db)
}

// Tx is a handle on an open write transaction. It is only valid inside the
// function passed to Store.Update.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
	now string
}

// Now returns the revision timestamp shared by every write in the transaction.
func (t *Tx) Now() string {
	return t.now
}

// The one-shot wrappers below each run a single operation in its own
// transaction.

// UpsertFolder inserts or replaces a folder.
func (s *Store) UpsertFolder(ctx context.Context, id, name string) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.UpsertFolder(id, name)
	})
}

// UpsertItem inserts or fully replaces an item.
func (s *Store) UpsertItem(ctx context.Context, item *Item) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.UpsertItem(item)
	})
}

// ReplaceURIs replaces every URI of an item and returns the number inserted.
func (s *Store) ReplaceURIs(ctx context.Context, itemID string, uris []string) (int, error) {
	var n int
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.ReplaceURIs(itemID, uris)
		return err
	})
	return n, err
}

// AppendField appends one custom field to an item.
func (s *Store) AppendField(ctx context.Context, itemID string, field Field) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.AppendField(itemID, field)
	})
}

// DeleteItem removes an item with its URIs and fields.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.DeleteItem(id)
	})
}

// DeleteFolder detaches the folder's items and removes it. It returns the
// number of detached items.
func (s *Store) DeleteFolder(ctx context.Context, id string) (int, error) {
	var n int
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.DeleteFolder(id)
		return err
	})
	return n, err
}

// DiskSpaceInfo contains disk usage information
type DiskSpaceInfo struct {
	Total     uint64 `json:"total"`     // Total disk space in bytes
	Free      uint64 `json:"free"`      // Free disk space in bytes
	Available uint64 `json:"available"` // Available to non-root users
	UsedPct   int    `json:"used_pct"`  // Percentage of disk used
}

// EnsureDiskSpace verifies there is room for a write of roughly dataSize
// bytes. A failure to stat the disk is logged and does not block the write.
func (s *Store) EnsureDiskSpace(dataSize int) error {
	info, err := s.CheckDiskSpace()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to check disk space")
		return nil
	}

	// Need at least MinDiskSpaceBytes or 2x the data size, whichever is larger
	required := uint64(MinDiskSpaceBytes)
	if uint64(dataSize*2) > required {
		required = uint64(dataSize * 2)
	}

	if info.Available < required {
		return &StorageError{
			Op: "reserve disk space",
			Err: fmt.Errorf("%w: only %d MB available, need at least %d MB",
				ErrInsufficientDisk, info.Available/(1024*1024), required/(1024*1024)),
		}
	}

	if info.UsedPct >= DiskWarningPercent {
		s.log.Warn().Int("used_pct", info.UsedPct).Msg("disk is nearly full")
	}
	return nil
}
