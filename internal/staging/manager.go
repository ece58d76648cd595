// Package staging manages the in-progress job draft: the photos a technician
// has captured but not yet saved.
//
// A session lives in two places. Image bytes are staged photo rows in the
// structured store, keyed by session id. Everything else, including a
// lightweight PhotoMeta per photo, is one JSON value in the key-value blob.
// Every mutation writes the heavy store first and the blob second, and undoes
// the store write when the blob write fails, so metadata never points at
// missing bytes.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/photofactory/internal/access"
	"github.com/mesh-intelligence/photofactory/internal/jobnumber"
	"github.com/mesh-intelligence/photofactory/internal/retry"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// DefaultKey is the blob key holding the session.
const DefaultKey = "photoFactory_currentJob"

// Options configures Open. Store and Blob are required.
type Options struct {
	Store  types.Store
	Blob   types.KV
	Key    string
	Clock  func() time.Time
	Logger *slog.Logger
	Limits types.SessionLimits

	// API defaults to access.New(Store).
	API *access.API
	// Numbers defaults to a generator over API.Jobs.
	Numbers *jobnumber.Generator
	// Uploader is optional. Without one, saved photos keep their bytes
	// in the photos table.
	Uploader types.Uploader
	// Auth is required by Save.
	Auth types.Authenticator
	// Retry bounds upload retries. The zero value selects retry.Default.
	Retry retry.Policy
}

// Manager coordinates one session. Its methods are safe for concurrent use;
// calls are serialized.
type Manager struct {
	mu sync.Mutex

	store    types.Store
	blob     types.KV
	key      string
	now      func() time.Time
	logger   *slog.Logger
	limits   types.SessionLimits
	api      *access.API
	numbers  *jobnumber.Generator
	uploader types.Uploader
	auth     types.Authenticator
	retry    retry.Policy

	state types.SessionState
	dirty bool
}

// Open loads the persisted session or starts a fresh one. An unreadable or
// invalid blob is logged and replaced. A loaded session that has expired is
// reset, discarding its staged photos.
func Open(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("staging: store is required")
	}
	if opts.Blob == nil {
		return nil, errors.New("staging: blob is required")
	}
	m := &Manager{
		store:    opts.Store,
		blob:     opts.Blob,
		key:      opts.Key,
		now:      opts.Clock,
		logger:   opts.Logger,
		limits:   opts.Limits.WithDefaults(),
		api:      opts.API,
		numbers:  opts.Numbers,
		uploader: opts.Uploader,
		auth:     opts.Auth,
		retry:    opts.Retry,
	}
	if m.key == "" {
		m.key = DefaultKey
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.api == nil {
		m.api = access.New(m.store, access.WithLogger(m.logger), access.WithClock(m.now))
	}
	if m.numbers == nil {
		m.numbers = jobnumber.New(m.api.Jobs, jobnumber.WithClock(m.now), jobnumber.WithLogger(m.logger))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if loaded && m.isExpired() {
		m.logger.Info("session expired, starting over", "session_id", m.state.SessionID)
		if err := m.reset(ctx); err != nil {
			return nil, err
		}
	}
	if err := m.persist(); err != nil {
		m.logger.Warn("session not persisted at open", "err", err)
	}
	return m, nil
}

// load fills m.state from the blob and reports whether a session was found.
func (m *Manager) load(ctx context.Context) (bool, error) {
	raw, ok, err := m.blob.Get(m.key)
	if err != nil {
		m.logger.Warn("session blob unreadable, starting fresh", "err", err)
		m.state = m.fresh()
		return false, nil
	}
	if !ok {
		m.state = m.fresh()
		return false, nil
	}

	state, omitted, err := decodeState(ctx, raw)
	if err != nil {
		m.logger.Warn("discarding persisted session", "err", err)
		m.state = m.fresh()
		return false, nil
	}
	m.state = state
	if omitted {
		if err := m.rebuildPhotos(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

// rebuildPhotos recreates the photo metadata from the staged rows.
func (m *Manager) rebuildPhotos(ctx context.Context) error {
	rows, err := m.stagedRows(ctx, m.store)
	if err != nil {
		return err
	}
	photos := types.NewSessionState("", m.now()).Photos
	for _, row := range rows {
		photos[row.Category] = append(photos[row.Category], types.PhotoMeta{
			ID:       row.StagedPhotoID,
			FileName: row.FileName,
			FileSize: row.FileSize,
			Sequence: row.Sequence,
		})
	}
	m.state.Photos = photos
	m.logger.Info("session photos rebuilt from staged rows", "session_id", m.state.SessionID, "photos", len(rows))
	return nil
}

func (m *Manager) fresh() types.SessionState {
	now := m.now()
	return types.NewSessionState(NewSessionID(now), now)
}

// NewSessionID returns session_<unix ms>_<uuid>.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), uuid.NewString())
}

// persist writes the session to the blob. On a quota failure it retries once
// with the photo list dropped. When the write cannot be made the in-memory
// state is kept and Dirty reports true.
func (m *Manager) persist() error {
	data, err := encodeState(m.state, false)
	if err != nil {
		m.dirty = true
		return types.UnknownError("encoding session", err)
	}
	err = m.blob.Set(m.key, data)
	if err == nil {
		m.dirty = false
		return nil
	}
	if !errors.Is(err, types.ErrQuotaExceeded) {
		m.dirty = true
		m.logger.Error("session metadata not persisted", "session_id", m.state.SessionID, "err", err)
		return types.DatabaseError("persisting session metadata", err)
	}

	m.logger.Warn("session metadata over quota, dropping photo list", "session_id", m.state.SessionID)
	data, err = encodeState(m.state, true)
	if err != nil {
		m.dirty = true
		return types.UnknownError("encoding session", err)
	}
	if err := m.blob.Set(m.key, data); err != nil {
		m.dirty = true
		m.logger.Error("session metadata not persisted", "session_id", m.state.SessionID, "err", err)
		return types.QuotaError("persisting session metadata", err)
	}
	m.dirty = false
	return nil
}

// storeError passes AppErrors through and wraps anything else as a
// database error.
func storeError(op string, err error) error {
	var ae *types.AppError
	if errors.As(err, &ae) {
		return ae
	}
	return types.DatabaseError(op, err)
}

// Flush writes the session to the blob.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persist()
}

// Close flushes the session. The Manager must not be used afterwards.
func (m *Manager) Close(ctx context.Context) error {
	return m.Flush(ctx)
}

// Dirty reports whether in-memory changes have not reached the blob.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// IsExpired reports whether the session has outlived MaxAge since creation
// or MaxIdle since its last change.
func (m *Manager) IsExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isExpired()
}

func (m *Manager) isExpired() bool {
	now := m.now()
	return now.Sub(m.state.CreatedAt) > m.limits.MaxAge || now.Sub(m.state.UpdatedAt) > m.limits.MaxIdle
}

// ExpireIfNeeded resets the session when it has expired and reports whether
// it did.
func (m *Manager) ExpireIfNeeded(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isExpired() {
		return false, nil
	}
	m.logger.Info("session expired", "session_id", m.state.SessionID)
	return true, m.reset(ctx)
}

// Reset discards the session: its staged photos are deleted, the blob key is
// removed, and a fresh session begins. It is safe on a session that was
// never persisted.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reset(ctx)
}

// Clear is Reset.
func (m *Manager) Clear(ctx context.Context) error {
	return m.Reset(ctx)
}

func (m *Manager) reset(ctx context.Context) error {
	tbl, err := m.store.Table(types.StagedPhotosTable)
	if err != nil {
		return types.DatabaseError("opening staged photos", err)
	}
	n, err := tbl.DeleteWhere(ctx, types.Eq("session_id", m.state.SessionID))
	if err != nil {
		return types.DatabaseError("deleting staged photos", err)
	}
	m.discard()
	m.logger.Info("session reset", "staged_photos_deleted", n)
	return nil
}

// discard removes the blob key and starts a fresh in-memory session.
func (m *Manager) discard() {
	if err := m.blob.Remove(m.key); err != nil {
		m.logger.Warn("removing session blob", "err", err)
	}
	m.state = m.fresh()
	m.dirty = false
}

// Update edits the session's descriptive fields. A failed blob write keeps
// the edit in memory and leaves the session dirty.
func (m *Manager) Update(ctx context.Context, patch types.SessionPatch) error {
	if patch.VehicleModel != nil && utf8.RuneCountInString(*patch.VehicleModel) > types.MaxVehicleModelLen {
		return types.ValidationError("vehicle_model", "Vehicle model must be 100 characters or fewer.")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if patch.VehicleModel != nil {
		m.state.VehicleModel = *patch.VehicleModel
	}
	if patch.Location != nil {
		m.state.Location = *patch.Location
	}
	m.state.UpdatedAt = m.now()
	if err := m.persist(); err != nil {
		m.logger.Warn("session edit kept in memory only", "err", err)
	}
	return nil
}

// PreviewNumber proposes the job number the session would get if saved now.
// It is for display only: the session's job number stays unset until Save
// draws a fresh one.
func (m *Manager) PreviewNumber(ctx context.Context) string {
	return m.numbers.Generate(ctx).Data
}

// State returns a copy of the session.
func (m *Manager) State() types.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// SessionID returns the current session id.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SessionID
}

// PhotoCount returns the number of staged photos in the session.
func (m *Manager) PhotoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.PhotoCount()
}

// CategoryPhotos returns the metadata of one category in capture order.
func (m *Manager) CategoryPhotos(c types.Category) []types.PhotoMeta {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.PhotoMeta, len(m.state.Photos[c]))
	copy(out, m.state.Photos[c])
	return out
}
