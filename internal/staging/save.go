package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/photofactory/internal/retry"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Save promotes the session to a permanent job owned by the signed-in user.
//
// The job is created first. Each staged photo is then uploaded, when an
// Uploader is configured, and copied into the photos table in the same
// transaction that deletes the staged rows. If any step after job creation
// fails the job is deleted again and the session is left untouched. On
// success the session is reset and the saved job is returned with its photos.
func (m *Manager) Save(ctx context.Context, req types.SaveRequest) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, err := m.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if m.state.PhotoCount() == 0 {
		return nil, types.ValidationError("photos", "Add at least one photo before saving.")
	}
	model := strings.TrimSpace(req.VehicleModel)
	if model == "" {
		model = strings.TrimSpace(m.state.VehicleModel)
	}
	if model == "" {
		return nil, types.ValidationError("vehicle_model", "Vehicle model is required.")
	}
	location := req.Location
	if location == "" {
		location = m.state.Location
	}

	staged, err := m.orderedStaged(ctx)
	if err != nil {
		return nil, err
	}

	created := m.numbers.CreateJob(ctx, types.JobInput{
		WorkDate:     req.WorkDate,
		VehicleModel: model,
		Location:     location,
		TechnicianID: user.UserID,
		Status:       types.StatusUploaded,
	})
	if created.Data == nil {
		return nil, created.Err
	}
	job := created.Data
	if created.Err != nil {
		m.logger.Warn("job saved under a fallback number", "job_number", job.JobNumber, "err", created.Err)
	}

	if err := m.promote(ctx, job, staged); err != nil {
		if del := m.api.Jobs.Delete(ctx, job.JobID); del.Err != nil {
			m.logger.Error("removing job after failed save", "job_id", job.JobID, "err", del.Err)
		}
		return nil, storeError("saving photos", err)
	}

	sessionID := m.state.SessionID
	m.discard()
	m.logger.Info("job saved", "job_number", job.JobNumber, "photos", len(staged), "session_id", sessionID)

	saved := m.api.Jobs.Get(ctx, job.JobID)
	if saved.Err != nil {
		return job, nil
	}
	return saved.Data, nil
}

func (m *Manager) currentUser(ctx context.Context) (*types.User, error) {
	if m.auth == nil {
		return nil, types.AuthError("no authenticator configured", nil)
	}
	user, err := m.auth.CurrentUser(ctx)
	if err != nil {
		var ae *types.AppError
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, types.AuthError("reading current user", err)
	}
	if user == nil {
		return nil, &types.AppError{
			Kind:        types.KindAuth,
			Message:     "not signed in",
			UserMessage: "Please sign in to save jobs.",
		}
	}
	return user, nil
}

// orderedStaged returns the staged rows behind the session metadata in
// workflow order. A metadata entry without a row is an error.
func (m *Manager) orderedStaged(ctx context.Context) ([]*types.StagedPhoto, error) {
	rows, err := m.stagedRows(ctx, m.store)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*types.StagedPhoto, len(rows))
	for _, row := range rows {
		byID[row.StagedPhotoID] = row
	}

	out := make([]*types.StagedPhoto, 0, len(rows))
	for _, c := range types.Categories {
		for _, meta := range m.state.Photos[c] {
			row, ok := byID[meta.ID]
			if !ok {
				return nil, types.DatabaseError(fmt.Sprintf("staged photo %d is missing", meta.ID), types.ErrNotFound)
			}
			out = append(out, row)
		}
	}
	return out, nil
}

// promote uploads the staged photos and moves them onto job. Saved sequences
// are renumbered 0..n-1 per category in session order; staged sequences may
// repeat after a removal.
func (m *Manager) promote(ctx context.Context, job *types.Job, staged []*types.StagedPhoto) error {
	var uploaded []string
	inputs := make([]types.PhotoInput, len(staged))
	nextSeq := make(map[types.Category]int, len(types.Categories))
	for i, row := range staged {
		seq := nextSeq[row.Category]
		nextSeq[row.Category]++
		in := types.PhotoInput{
			JobID:         job.JobID,
			Category:      row.Category,
			Sequence:      seq,
			FileName:      row.FileName,
			FileSize:      row.FileSize,
			ImageData:     row.ImageData,
			ThumbnailData: row.ThumbnailData,
		}
		if m.uploader != nil {
			up, err := m.upload(ctx, job, row, seq)
			if err != nil {
				m.removeUploaded(ctx, uploaded)
				return err
			}
			uploaded = append(uploaded, up.PublicID)
			in.URL = up.URL
			in.ThumbnailURL = up.ThumbnailURL
			in.PublicID = up.PublicID
			in.Width = up.Width
			in.Height = up.Height
			in.Format = up.Format
			in.ImageData = nil
			in.ThumbnailData = nil
		}
		inputs[i] = in
	}

	err := m.store.Transaction(ctx, []string{types.PhotosTable, types.StagedPhotosTable}, func(tx types.Store) error {
		res := m.api.Photos.InsertTx(ctx, tx, inputs...)
		if res.Err != nil {
			return res.Err
		}
		tbl, err := tx.Table(types.StagedPhotosTable)
		if err != nil {
			return types.DatabaseError("opening staged photos", err)
		}
		if _, err := tbl.DeleteWhere(ctx, types.Eq("session_id", m.state.SessionID)); err != nil {
			return types.DatabaseError("deleting staged photos", err)
		}
		return nil
	})
	if err != nil {
		m.removeUploaded(ctx, uploaded)
	}
	return err
}

// removeUploaded deletes objects uploaded by a save that did not complete.
// Failures are logged; the objects are then orphaned in remote storage.
func (m *Manager) removeUploaded(ctx context.Context, publicIDs []string) {
	r, ok := m.uploader.(types.Remover)
	if !ok || len(publicIDs) == 0 {
		return
	}
	if err := r.Remove(ctx, publicIDs...); err != nil {
		m.logger.Error("removing uploads of a failed save", "objects", len(publicIDs), "err", err)
	}
}

func (m *Manager) upload(ctx context.Context, job *types.Job, row *types.StagedPhoto, seq int) (types.UploadResult, error) {
	policy := m.retry
	policy.OnRetry = func(attempt int, _ time.Duration, err error) {
		m.logger.Warn("retrying upload", "photo", row, "attempt", attempt, "err", err)
	}
	res, err := retry.Value(ctx, policy, func(ctx context.Context) (types.UploadResult, error) {
		return m.uploader.Upload(ctx, types.UploadFile{
			JobNumber:     job.JobNumber,
			Category:      row.Category,
			Sequence:      seq,
			FileName:      row.FileName,
			ContentType:   row.ContentType,
			ImageData:     row.ImageData,
			ThumbnailData: row.ThumbnailData,
		})
	})
	if err != nil {
		var ae *types.AppError
		if errors.As(err, &ae) && ae.Kind == types.KindUpload {
			return res, ae
		}
		return res, types.UploadError(fmt.Sprintf("uploading %s", row.FileName), err)
	}
	return res, nil
}
