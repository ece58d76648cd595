// Package sqlite is the public entry point to the photofactory local store.
// It re-exports the backend and opens it in one step, so programs outside
// this module can read and write jobs without reaching into internal/.
//
// Example:
//
//	store, err := sqlite.Open(".photofactory-db", sqlite.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer store.Detach()
package sqlite

import (
	"fmt"

	"github.com/mesh-intelligence/photofactory/internal/sqlite"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Backend is the SQLite store.
type Backend = sqlite.Backend

// Option configures a Backend.
type Option = sqlite.Option

// Backend options.
var (
	WithLogger = sqlite.WithLogger
	WithClock  = sqlite.WithClock
)

// Snapshot import errors.
var (
	ErrSnapshotVersion = sqlite.ErrSnapshotVersion
	ErrSnapshotInvalid = sqlite.ErrSnapshotInvalid
)

// DatabaseFileName is the file created inside the data directory.
const DatabaseFileName = sqlite.DatabaseFileName

// NewBackend creates a detached backend. Call Attach before use.
func NewBackend(opts ...Option) *Backend {
	return sqlite.NewBackend(opts...)
}

// Open creates a backend and attaches it to dataDir, creating the directory
// and database file when missing. The caller must Detach it.
func Open(dataDir string, opts ...Option) (*Backend, error) {
	b := sqlite.NewBackend(opts...)
	if err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dataDir}); err != nil {
		return nil, fmt.Errorf("attach store: %w", err)
	}
	return b, nil
}
