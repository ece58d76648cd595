package access

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Photos is the accessor for finalized photos.
type Photos struct {
	base
}

// Insert stores every input in one bulk write and returns the stored rows.
func (p *Photos) Insert(ctx context.Context, inputs ...types.PhotoInput) types.Result[[]*types.Photo] {
	return p.insert(ctx, p.store, inputs)
}

// InsertTx is Insert inside an existing transaction store.
func (p *Photos) InsertTx(ctx context.Context, tx types.Store, inputs ...types.PhotoInput) types.Result[[]*types.Photo] {
	return p.insert(ctx, tx, inputs)
}

func (p *Photos) insert(ctx context.Context, store types.Store, inputs []types.PhotoInput) types.Result[[]*types.Photo] {
	if len(inputs) == 0 {
		return types.Ok([]*types.Photo{})
	}
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return types.Fail[[]*types.Photo](err)
		}
	}

	tbl, err := store.Table(types.PhotosTable)
	if err != nil {
		return types.Fail[[]*types.Photo](p.dbError("opening photos", err))
	}

	now := p.now()
	recs := make([]any, len(inputs))
	for i, in := range inputs {
		recs[i] = &types.Photo{
			JobID:         in.JobID,
			Category:      in.Category,
			Sequence:      in.Sequence,
			UploadedAt:    now,
			URL:           in.URL,
			ThumbnailURL:  in.ThumbnailURL,
			PublicID:      in.PublicID,
			Width:         in.Width,
			Height:        in.Height,
			Format:        in.Format,
			ImageData:     in.ImageData,
			ThumbnailData: in.ThumbnailData,
			FileName:      in.FileName,
			FileSize:      in.FileSize,
		}
	}
	ids, err := tbl.BulkInsert(ctx, recs)
	if err != nil {
		return types.Fail[[]*types.Photo](p.dbError("inserting photos", err))
	}

	got, err := tbl.BulkGet(ctx, ids)
	if err != nil {
		return types.Fail[[]*types.Photo](p.dbError("reading inserted photos", err))
	}
	out := make([]*types.Photo, 0, len(got))
	for _, rec := range got {
		if rec != nil {
			out = append(out, rec.(*types.Photo))
		}
	}
	return types.Ok(out)
}

// SelectByJob returns a job's photos in sequence order.
func (p *Photos) SelectByJob(ctx context.Context, jobID int64) types.Result[[]*types.Photo] {
	tbl, aerr := p.table(types.PhotosTable)
	if aerr != nil {
		return types.Fail[[]*types.Photo](aerr)
	}
	recs, err := tbl.Query(ctx, types.Query{Filters: []types.Filter{types.Eq("job_id", jobID)}})
	if err != nil {
		return types.Fail[[]*types.Photo](p.dbError(fmt.Sprintf("listing photos of job %d", jobID), err))
	}
	photos := make([]*types.Photo, len(recs))
	for i, rec := range recs {
		photos[i] = rec.(*types.Photo)
	}
	sortPhotos(photos)
	return types.Ok(photos)
}

// Delete removes one photo.
func (p *Photos) Delete(ctx context.Context, id int64) types.Result[int64] {
	tbl, aerr := p.table(types.PhotosTable)
	if aerr != nil {
		return types.Fail[int64](aerr)
	}
	if err := tbl.Delete(ctx, id); err != nil {
		return types.Fail[int64](p.dbError(fmt.Sprintf("deleting photo %d", id), err))
	}
	return types.Ok(id)
}
