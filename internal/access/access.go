// Package access is the entity-level API over the structured local store.
//
// Every method returns a types.Result: store failures are logged and turned
// into *types.AppError values, so callers branch on Result.Err instead of
// handling raw driver errors.
package access

import (
	"errors"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// API bundles the per-entity accessors over one store.
type API struct {
	Jobs     *Jobs
	Photos   *Photos
	Users    *Users
	Settings *Settings
}

// Option configures the accessors built by New.
type Option func(*base)

// WithLogger sets the logger. A nil logger selects slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock replaces time.Now for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// New builds the accessors over store.
func New(store types.Store, opts ...Option) *API {
	b := base{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return &API{
		Jobs:     &Jobs{base: b},
		Photos:   &Photos{base: b},
		Users:    &Users{base: b},
		Settings: &Settings{base: b},
	}
}

// base holds what every accessor shares.
type base struct {
	store  types.Store
	logger *slog.Logger
	now    func() time.Time
}

func (b base) table(name string) (types.Table, *types.AppError) {
	t, err := b.store.Table(name)
	if err != nil {
		return nil, b.dbError("opening "+name, err)
	}
	return t, nil
}

// dbError logs err and classifies it. Missing records become validation
// errors carrying ErrNotFound; everything else is a retryable database error.
func (b base) dbError(op string, err error) *types.AppError {
	if errors.Is(err, types.ErrNotFound) {
		return &types.AppError{
			Kind:        types.KindValidation,
			Message:     op + ": not found",
			UserMessage: "The requested record does not exist.",
			Err:         err,
		}
	}
	var ae *types.AppError
	if errors.As(err, &ae) {
		return ae
	}
	b.logger.Error("store operation failed", "op", op, "err", err)
	return types.DatabaseError(op, err)
}

// IsNotFound reports whether err says the record does not exist.
func IsNotFound(err *types.AppError) bool {
	return err != nil && errors.Is(err, types.ErrNotFound)
}

// IsConflict reports whether err is a uniqueness violation.
func IsConflict(err *types.AppError) bool {
	return err != nil && errors.Is(err, types.ErrConstraint)
}
