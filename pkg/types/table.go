package types

import (
	"context"
	"errors"
)

// Standard table names for Store.Table.
const (
	JobsTable         = "jobs"
	PhotosTable       = "photos"
	StagedPhotosTable = "temp_photos"
	UsersTable        = "users"
	SettingsTable     = "settings"
)

// StandardTableNames lists all standard table names for enumeration.
var StandardTableNames = []string{
	JobsTable,
	PhotosTable,
	StagedPhotosTable,
	UsersTable,
	SettingsTable,
}

// Store gives access to the tables of the structured local store.
type Store interface {
	// Table returns the Table for the given name.
	// Returns ErrTableNotFound if the name is not a standard table.
	Table(name string) (Table, error)

	// Transaction runs fn with a Store whose writes commit together or not at
	// all. Only the declared tables are reachable through tx; other names
	// return ErrTableNotInScope. Calling Transaction on tx joins the
	// enclosing transaction.
	Transaction(ctx context.Context, tables []string, fn func(tx Store) error) error
}

// Table provides uniform CRUD operations for a single entity type.
// Records are pointers to entity structs (*Job, *Photo, *StagedPhoto, *User,
// *Setting); callers type-assert the values they get back.
type Table interface {
	// Insert stores record and returns the surrogate ID assigned to it.
	// The ID is also written back into the record.
	Insert(ctx context.Context, record any) (int64, error)

	// BulkInsert stores all records or none of them.
	BulkInsert(ctx context.Context, records []any) ([]int64, error)

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id int64) (any, error)

	// BulkGet returns records in the order of ids. Missing IDs yield nil.
	BulkGet(ctx context.Context, ids []int64) ([]any, error)

	// Query returns records matching every filter in q.
	Query(ctx context.Context, q Query) ([]any, error)

	// Count returns the number of records matching every filter.
	Count(ctx context.Context, filters ...Filter) (int, error)

	// Update applies changes (column name to value) to the record with id.
	// Returns ErrNotFound if no record exists with that ID.
	Update(ctx context.Context, id int64, changes map[string]any) error

	// Delete removes the record with id. Returns ErrNotFound when missing.
	Delete(ctx context.Context, id int64) error

	// DeleteWhere removes every record matching the filters and returns how
	// many were removed. At least one filter is required.
	DeleteWhere(ctx context.Context, filters ...Filter) (int, error)

	// Clear removes every record in the table.
	Clear(ctx context.Context) error
}

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrTableNotFound   = errors.New("table not found")
	ErrTableNotInScope = errors.New("table not declared in transaction scope")
)

// Table operation errors.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidID     = errors.New("invalid entity ID")
	ErrInvalidData   = errors.New("invalid entity data")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrConstraint    = errors.New("constraint violation")
)

// Persisted key-value blob errors.
var (
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)
