// Package sqlite implements the structured local store on SQLite.
//
// A Backend owns one database file in the data directory. Several Backends,
// in this process or others, may share the file; SQLite's busy timeout
// serializes their writers. Schema changes are applied as forward-only,
// versioned migrations that never drop existing rows.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// DatabaseFileName is the name of the database file inside DataDir.
const DatabaseFileName = "photofactory.db"

// Compile-time interface check: Backend must implement Store.
var _ types.Store = (*Backend)(nil)

// Backend implements types.Store using SQLite.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	tables   map[string]*table

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. A nil logger selects slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock replaces time.Now for stamping exports.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		tables: make(map[string]*table),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Table returns the accessor for the named table.
// Returns ErrTableNotFound if the table name is not recognized.
// Returns ErrStoreDetached if the backend is not attached.
func (b *Backend) Table(name string) (types.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	t, ok := b.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrTableNotFound, name)
	}
	return t, nil
}

// Attach opens the database in config.DataDir, creating the directory if it
// does not exist, and migrates the schema to the latest version.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFileName)
	db, err := sql.Open("sqlite", dsn(dbPath, config.EffectiveBusyTimeout()))
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}

	from, to, err := migrate(ctx, db)
	if err != nil {
		db.Close()
		return fmt.Errorf("migrating schema: %w", err)
	}
	if from != to {
		b.logger.Info("schema migrated", "path", dbPath, "from", from, "to", to)
	}

	b.db = db
	b.config = config
	b.attached = true

	for _, def := range entityDefs {
		b.tables[def.name] = &table{backend: b, def: def}
	}

	return nil
}

// Detach releases all resources held by the backend.
// After Detach, all operations return ErrStoreDetached.
// Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	b.tables = make(map[string]*table)

	return nil
}

// Transaction runs fn inside one database transaction scoped to tables.
// The transaction commits when fn returns nil and rolls back otherwise.
func (b *Backend) Transaction(ctx context.Context, tables []string, fn func(tx types.Store) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return types.ErrStoreDetached
	}

	scope := make(map[string]bool, len(tables))
	for _, name := range tables {
		if _, ok := defsByName[name]; !ok {
			return fmt.Errorf("%w: %q", types.ErrTableNotFound, name)
		}
		scope[name] = true
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{backend: b, tx: tx, scope: scope}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// txStore is the Store handed to a Transaction callback.
type txStore struct {
	backend *Backend
	tx      *sql.Tx
	scope   map[string]bool
}

func (s *txStore) Table(name string) (types.Table, error) {
	def, ok := defsByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrTableNotFound, name)
	}
	if !s.scope[name] {
		return nil, fmt.Errorf("%w: %q", types.ErrTableNotInScope, name)
	}
	return &table{backend: s.backend, def: def, q: s.tx}, nil
}

// Transaction joins the enclosing transaction. The nested scope must be a
// subset of the enclosing one.
func (s *txStore) Transaction(ctx context.Context, tables []string, fn func(tx types.Store) error) error {
	for _, name := range tables {
		if !s.scope[name] {
			return fmt.Errorf("%w: %q", types.ErrTableNotInScope, name)
		}
	}
	return fn(s)
}

// dsn builds the connection string. Transactions take the write lock at
// BEGIN (_txlock=immediate).
func dsn(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}
