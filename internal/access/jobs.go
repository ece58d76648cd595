package access

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Jobs is the accessor for the jobs table.
type Jobs struct {
	base
}

// Insert validates in and stores a new job. An empty status becomes
// uploaded and an empty work date becomes today's local date.
func (j *Jobs) Insert(ctx context.Context, in types.JobInput) types.Result[*types.Job] {
	if in.Status == "" {
		in.Status = types.StatusUploaded
	}
	now := j.now()
	if in.WorkDate == "" {
		in.WorkDate = now.Format(types.WorkDateLayout)
	}
	if err := in.Validate(); err != nil {
		return types.Fail[*types.Job](err)
	}

	tbl, aerr := j.table(types.JobsTable)
	if aerr != nil {
		return types.Fail[*types.Job](aerr)
	}
	job := &types.Job{
		JobNumber:    in.JobNumber,
		WorkDate:     in.WorkDate,
		VehicleModel: in.VehicleModel,
		Location:     in.Location,
		TechnicianID: in.TechnicianID,
		Status:       in.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := tbl.Insert(ctx, job); err != nil {
		if IsConflict(types.AsAppError(err)) {
			return types.Fail[*types.Job](&types.AppError{
				Kind:        types.KindDatabase,
				Message:     fmt.Sprintf("job number %s already exists", in.JobNumber),
				UserMessage: "That job number is already taken. Please try again.",
				Retryable:   true,
				Field:       "job_number",
				Err:         err,
			})
		}
		return types.Fail[*types.Job](j.dbError("inserting job", err))
	}
	return types.Ok(job)
}

// Get returns the job with id and its photos.
func (j *Jobs) Get(ctx context.Context, id int64) types.Result[*types.Job] {
	tbl, aerr := j.table(types.JobsTable)
	if aerr != nil {
		return types.Fail[*types.Job](aerr)
	}
	rec, err := tbl.Get(ctx, id)
	if err != nil {
		return types.Fail[*types.Job](j.dbError(fmt.Sprintf("getting job %d", id), err))
	}
	job := rec.(*types.Job)
	if aerr := j.attachPhotos(ctx, []*types.Job{job}); aerr != nil {
		return types.Fail[*types.Job](aerr)
	}
	return types.Ok(job)
}

// GetByNumber returns the job with the given number, or nil Data when no
// such job exists. Photos are not loaded.
func (j *Jobs) GetByNumber(ctx context.Context, number string) types.Result[*types.Job] {
	tbl, aerr := j.table(types.JobsTable)
	if aerr != nil {
		return types.Fail[*types.Job](aerr)
	}
	recs, err := tbl.Query(ctx, types.Query{Filters: []types.Filter{types.Eq("job_number", number)}, Limit: 1})
	if err != nil {
		return types.Fail[*types.Job](j.dbError("looking up job number", err))
	}
	if len(recs) == 0 {
		return types.Ok[*types.Job](nil)
	}
	return types.Ok(recs[0].(*types.Job))
}

// CountCreatedBetween counts jobs created in [start, end).
func (j *Jobs) CountCreatedBetween(ctx context.Context, start, end time.Time) types.Result[int] {
	tbl, aerr := j.table(types.JobsTable)
	if aerr != nil {
		return types.Fail[int](aerr)
	}
	n, err := tbl.Count(ctx, types.Between("created_at", start, end))
	if err != nil {
		return types.Fail[int](j.dbError("counting jobs", err))
	}
	return types.Ok(n)
}

// SelectByTechnician lists a technician's jobs with their photos. Photos
// for all listed jobs are fetched with a single bulk query.
func (j *Jobs) SelectByTechnician(ctx context.Context, technicianID int64, opts types.JobListOptions) types.Result[[]*types.Job] {
	tbl, aerr := j.table(types.JobsTable)
	if aerr != nil {
		return types.Fail[[]*types.Job](aerr)
	}

	q := types.Query{
		Filters:    []types.Filter{types.Eq("technician_id", technicianID)},
		OrderBy:    "created_at",
		Descending: !opts.Ascending,
	}
	if opts.OrderBy != "" {
		q.OrderBy = opts.OrderBy
	}
	if opts.Status != "" {
		q.Filters = append(q.Filters, types.Eq("status", opts.Status))
	}
	if opts.FromDate != "" {
		q.Filters = append(q.Filters, types.AtLeast("work_date", opts.FromDate))
	}
	if opts.ToDate != "" {
		next, err := nextDate(opts.ToDate)
		if err != nil {
			return types.Fail[[]*types.Job](types.ValidationError("to_date", "End date must be formatted YYYY-MM-DD."))
		}
		q.Filters = append(q.Filters, types.Below("work_date", next))
	}
	like := strings.ToLower(strings.TrimSpace(opts.VehicleModelLike))
	if like == "" {
		q.Limit = opts.Limit
	}

	recs, err := tbl.Query(ctx, q)
	if err != nil {
		return types.Fail[[]*types.Job](j.dbError("listing jobs", err))
	}

	jobs := make([]*types.Job, 0, len(recs))
	for _, rec := range recs {
		job := rec.(*types.Job)
		if like != "" && !strings.Contains(strings.ToLower(job.VehicleModel), like) {
			continue
		}
		jobs = append(jobs, job)
		if like != "" && opts.Limit > 0 && len(jobs) == opts.Limit {
			break
		}
	}

	if aerr := j.attachPhotos(ctx, jobs); aerr != nil {
		return types.Fail[[]*types.Job](aerr)
	}
	return types.Ok(jobs)
}

// attachPhotos loads the photos of every job in one query and attaches them
// in sequence order. No query is issued for an empty list.
func (j *Jobs) attachPhotos(ctx context.Context, jobs []*types.Job) *types.AppError {
	if len(jobs) == 0 {
		return nil
	}
	tbl, aerr := j.table(types.PhotosTable)
	if aerr != nil {
		return aerr
	}

	ids := make([]any, len(jobs))
	for i, job := range jobs {
		ids[i] = job.JobID
	}
	recs, err := tbl.Query(ctx, types.Query{Filters: []types.Filter{types.In("job_id", ids...)}})
	if err != nil {
		return j.dbError("loading job photos", err)
	}

	byJob := make(map[int64][]*types.Photo, len(jobs))
	for _, rec := range recs {
		p := rec.(*types.Photo)
		byJob[p.JobID] = append(byJob[p.JobID], p)
	}
	for _, job := range jobs {
		photos := byJob[job.JobID]
		sortPhotos(photos)
		if photos == nil {
			photos = []*types.Photo{}
		}
		job.Photos = photos
	}
	return nil
}

// Update applies patch to the job with id and returns the updated job.
func (j *Jobs) Update(ctx context.Context, id int64, patch types.JobPatch) types.Result[*types.Job] {
	if err := patch.Validate(); err != nil {
		return types.Fail[*types.Job](err)
	}
	if patch.Empty() {
		return j.Get(ctx, id)
	}

	changes := map[string]any{"updated_at": j.now()}
	if patch.VehicleModel != nil {
		changes["vehicle_model"] = *patch.VehicleModel
	}
	if patch.Location != nil {
		changes["location"] = *patch.Location
	}
	if patch.Status != nil {
		changes["status"] = *patch.Status
	}
	if patch.WorkDate != nil {
		changes["work_date"] = *patch.WorkDate
	}

	tbl, aerr := j.table(types.JobsTable)
	if aerr != nil {
		return types.Fail[*types.Job](aerr)
	}
	if err := tbl.Update(ctx, id, changes); err != nil {
		return types.Fail[*types.Job](j.dbError(fmt.Sprintf("updating job %d", id), err))
	}
	return j.Get(ctx, id)
}

// Delete removes the job and each of its photos in one store transaction.
// A failure at any step leaves the job and all its photos in place.
func (j *Jobs) Delete(ctx context.Context, id int64) types.Result[int64] {
	err := j.store.Transaction(ctx, []string{types.JobsTable, types.PhotosTable}, func(tx types.Store) error {
		jobs, err := tx.Table(types.JobsTable)
		if err != nil {
			return err
		}
		photos, err := tx.Table(types.PhotosTable)
		if err != nil {
			return err
		}
		if _, err := jobs.Get(ctx, id); err != nil {
			return err
		}

		recs, err := photos.Query(ctx, types.Query{Filters: []types.Filter{types.Eq("job_id", id)}})
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := photos.Delete(ctx, rec.(*types.Photo).PhotoID); err != nil {
				return fmt.Errorf("deleting photo %d: %w", rec.(*types.Photo).PhotoID, err)
			}
		}
		return jobs.Delete(ctx, id)
	})
	if err != nil {
		return types.Fail[int64](j.dbError(fmt.Sprintf("deleting job %d", id), err))
	}
	j.logger.Info("job deleted", "job_id", id)
	return types.Ok(id)
}

func nextDate(date string) (string, error) {
	d, err := time.ParseInLocation(types.WorkDateLayout, date, time.Local)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, 1).Format(types.WorkDateLayout), nil
}

// sortPhotos orders photos by sequence, then workflow category, then ID.
func sortPhotos(photos []*types.Photo) {
	rank := make(map[types.Category]int, len(types.Categories))
	for i, c := range types.Categories {
		rank[c] = i
	}
	sort.SliceStable(photos, func(a, b int) bool {
		pa, pb := photos[a], photos[b]
		if pa.Sequence != pb.Sequence {
			return pa.Sequence < pb.Sequence
		}
		if rank[pa.Category] != rank[pb.Category] {
			return rank[pa.Category] < rank[pb.Category]
		}
		return pa.PhotoID < pb.PhotoID
	})
}
