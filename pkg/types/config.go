package types

import (
	"errors"
	"time"
)

// Config holds backend selection and parameters for Backend.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// BusyTimeout bounds how long a writer waits on a database locked by
	// another process. Zero selects DefaultBusyTimeout.
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// DefaultBusyTimeout is used when Config.BusyTimeout is zero.
const DefaultBusyTimeout = 5 * time.Second

// Config validation errors.
var (
	ErrBackendEmpty       = errors.New("backend must not be empty")
	ErrBackendUnknown     = errors.New("unknown backend")
	ErrBusyTimeoutInvalid = errors.New("busy timeout must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.BusyTimeout < 0 {
		return ErrBusyTimeoutInvalid
	}
	return nil
}

// EffectiveBusyTimeout returns BusyTimeout or the default when unset.
func (c Config) EffectiveBusyTimeout() time.Duration {
	if c.BusyTimeout == 0 {
		return DefaultBusyTimeout
	}
	return c.BusyTimeout
}

// SessionLimits bounds the lifetime and size of a staging session.
type SessionLimits struct {
	// MaxAge is the absolute lifetime measured from session creation.
	MaxAge time.Duration `json:"max_age" yaml:"max_age"`

	// MaxIdle is the inactivity ceiling measured from the last update.
	MaxIdle time.Duration `json:"max_idle" yaml:"max_idle"`

	// PhotosPerCategory caps staged photos in each category.
	PhotosPerCategory int `json:"photos_per_category" yaml:"photos_per_category"`
}

// Default session limits.
const (
	DefaultSessionMaxAge     = 8 * time.Hour
	DefaultSessionMaxIdle    = 30 * time.Minute
	DefaultPhotosPerCategory = 3
)

// DefaultSessionLimits returns the limits used when none are configured.
func DefaultSessionLimits() SessionLimits {
	return SessionLimits{
		MaxAge:            DefaultSessionMaxAge,
		MaxIdle:           DefaultSessionMaxIdle,
		PhotosPerCategory: DefaultPhotosPerCategory,
	}
}

// WithDefaults fills zero fields from DefaultSessionLimits.
func (l SessionLimits) WithDefaults() SessionLimits {
	d := DefaultSessionLimits()
	if l.MaxAge <= 0 {
		l.MaxAge = d.MaxAge
	}
	if l.MaxIdle <= 0 {
		l.MaxIdle = d.MaxIdle
	}
	if l.PhotosPerCategory <= 0 {
		l.PhotosPerCategory = d.PhotosPerCategory
	}
	return l
}
