package sqlite

import (
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

var jobsDef = &entityDef{
	name: types.JobsTable,
	columns: []string{
		"job_number", "work_date", "vehicle_model", "location",
		"technician_id", "status", "created_at", "updated_at",
	},
	values:  jobValues,
	setID:   func(rec any, id int64) { rec.(*types.Job).JobID = id },
	hydrate: hydrateJob,
}

func jobValues(rec any) ([]any, error) {
	job, ok := rec.(*types.Job)
	if !ok || job == nil {
		return nil, types.ErrInvalidData
	}
	return []any{
		job.JobNumber, job.WorkDate, job.VehicleModel, job.Location,
		job.TechnicianID, string(job.Status), toMillis(job.CreatedAt), toMillis(job.UpdatedAt),
	}, nil
}

// hydrateJob scans a jobs row into a *types.Job.
func hydrateJob(row rowScanner) (any, error) {
	var (
		job              types.Job
		status           string
		created, updated int64
	)
	if err := row.Scan(
		&job.JobID, &job.JobNumber, &job.WorkDate, &job.VehicleModel, &job.Location,
		&job.TechnicianID, &status, &created, &updated,
	); err != nil {
		return nil, err
	}
	job.Status = types.JobStatus(status)
	job.CreatedAt = fromMillis(created)
	job.UpdatedAt = fromMillis(updated)
	return &job, nil
}
