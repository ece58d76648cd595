package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// DefaultSweepAge is how long a staged photo may outlive its session before
// Sweep removes it.
const DefaultSweepAge = 24 * time.Hour

// AddPhoto stages p in category c and returns the staged photo id.
//
// The image bytes are written first with sequence equal to the category's
// current count. The metadata is appended and persisted only after that
// succeeds; if persisting fails the staged row is deleted and the session is
// restored to its state before the call.
func (m *Manager) AddPhoto(ctx context.Context, c types.Category, p types.PhotoPayload) (int64, error) {
	if !types.ValidCategory(c) {
		return 0, types.ValidationError("category", fmt.Sprintf("Unknown photo category %q.", c))
	}
	if len(p.ImageData) == 0 {
		return 0, types.ValidationError("image_data", "The photo is empty.")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	metas := m.state.Photos[c]
	if len(metas) >= m.limits.PhotosPerCategory {
		return 0, types.ValidationError("category",
			fmt.Sprintf("%s already has %d photos.", c.Label(), m.limits.PhotosPerCategory))
	}

	tbl, err := m.store.Table(types.StagedPhotosTable)
	if err != nil {
		return 0, types.DatabaseError("opening staged photos", err)
	}
	size := p.FileSize
	if size == 0 {
		size = int64(len(p.ImageData))
	}
	now := m.now()
	row := &types.StagedPhoto{
		SessionID:     m.state.SessionID,
		Category:      c,
		Sequence:      len(metas),
		CreatedAt:     now,
		ImageData:     p.ImageData,
		ThumbnailData: p.ThumbnailData,
		FileName:      p.FileName,
		FileSize:      size,
		ContentType:   p.ContentType,
	}
	id, err := tbl.Insert(ctx, row)
	if err != nil {
		return 0, types.DatabaseError("staging photo", err)
	}

	before, wasDirty := m.state.Clone(), m.dirty
	next := make([]types.PhotoMeta, len(metas), len(metas)+1)
	copy(next, metas)
	m.state.Photos[c] = append(next, types.PhotoMeta{
		ID:       id,
		FileName: p.FileName,
		FileSize: size,
		Sequence: row.Sequence,
	})
	m.state.UpdatedAt = now

	if err := m.persist(); err != nil {
		if derr := tbl.Delete(ctx, id); derr != nil {
			m.logger.Error("rolling back staged photo", "staged_photo_id", id, "err", derr)
		}
		m.state, m.dirty = before, wasDirty
		return 0, err
	}
	m.logger.Debug("photo staged", "photo", row)
	return id, nil
}

// RemovePhoto deletes the photo at index in category c. Remaining photos keep
// their sequence numbers.
//
// The staged row is deleted and the shortened metadata persisted inside one
// store transaction, so a failed blob write brings the row back unchanged.
func (m *Manager) RemovePhoto(ctx context.Context, c types.Category, index int) error {
	if !types.ValidCategory(c) {
		return types.ValidationError("category", fmt.Sprintf("Unknown photo category %q.", c))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	metas := m.state.Photos[c]
	if index < 0 || index >= len(metas) {
		return types.ValidationError("index", fmt.Sprintf("%s has no photo %d.", c.Label(), index))
	}
	target := metas[index]
	before, wasDirty := m.state.Clone(), m.dirty
	persisted := false

	err := m.store.Transaction(ctx, []string{types.StagedPhotosTable}, func(tx types.Store) error {
		tbl, err := tx.Table(types.StagedPhotosTable)
		if err != nil {
			return err
		}
		if err := tbl.Delete(ctx, target.ID); err != nil && !errors.Is(err, types.ErrNotFound) {
			return types.DatabaseError("deleting staged photo", err)
		}

		remaining := make([]types.PhotoMeta, 0, len(metas)-1)
		remaining = append(remaining, metas[:index]...)
		remaining = append(remaining, metas[index+1:]...)
		m.state.Photos[c] = remaining
		m.state.UpdatedAt = m.now()
		if err := m.persist(); err != nil {
			return err
		}
		persisted = true
		return nil
	})
	if err != nil {
		m.state, m.dirty = before, wasDirty
		if persisted {
			// The blob no longer lists the photo but the row survived.
			if perr := m.persist(); perr != nil {
				m.logger.Error("restoring session metadata", "err", perr)
			}
		}
		return storeError("removing staged photo", err)
	}
	return nil
}

// PhotosWithData loads the session's staged photos with their bytes, grouped
// by category in sequence order.
func (m *Manager) PhotosWithData(ctx context.Context) (map[types.Category][]*types.StagedPhoto, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.stagedRows(ctx, m.store)
	if err != nil {
		return nil, err
	}
	out := make(map[types.Category][]*types.StagedPhoto, len(types.Categories))
	for _, c := range types.Categories {
		out[c] = []*types.StagedPhoto{}
	}
	for _, row := range rows {
		out[row.Category] = append(out[row.Category], row)
	}
	return out, nil
}

// CountsByCategory counts the session's staged rows per category without
// loading image bytes.
func (m *Manager) CountsByCategory(ctx context.Context) (map[types.Category]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tbl, err := m.store.Table(types.StagedPhotosTable)
	if err != nil {
		return nil, types.DatabaseError("opening staged photos", err)
	}
	out := make(map[types.Category]int, len(types.Categories))
	for _, c := range types.Categories {
		n, err := tbl.Count(ctx, types.Eq("session_id", m.state.SessionID), types.Eq("category", c))
		if err != nil {
			return nil, types.DatabaseError("counting staged photos", err)
		}
		out[c] = n
	}
	return out, nil
}

// stagedRows returns the session's staged rows ordered by sequence.
func (m *Manager) stagedRows(ctx context.Context, store types.Store) ([]*types.StagedPhoto, error) {
	tbl, err := store.Table(types.StagedPhotosTable)
	if err != nil {
		return nil, types.DatabaseError("opening staged photos", err)
	}
	recs, err := tbl.Query(ctx, types.Query{
		Filters: []types.Filter{types.Eq("session_id", m.state.SessionID)},
		OrderBy: "sequence",
	})
	if err != nil {
		return nil, types.DatabaseError("loading staged photos", err)
	}
	rows := make([]*types.StagedPhoto, len(recs))
	for i, rec := range recs {
		rows[i] = rec.(*types.StagedPhoto)
	}
	return rows, nil
}

// Sweep deletes staged photos of any session created before now-maxAge and
// returns how many were removed. A non-positive maxAge selects
// DefaultSweepAge.
func Sweep(ctx context.Context, store types.Store, now time.Time, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultSweepAge
	}
	tbl, err := store.Table(types.StagedPhotosTable)
	if err != nil {
		return 0, types.DatabaseError("opening staged photos", err)
	}
	n, err := tbl.DeleteWhere(ctx, types.Below("created_at", now.Add(-maxAge)))
	if err != nil {
		return 0, types.DatabaseError("sweeping staged photos", err)
	}
	return n, nil
}
