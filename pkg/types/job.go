package types

import (
	"regexp"
	"time"
	"unicode/utf8"
)

// JobStatus is the processing state of a finalized job.
type JobStatus string

// Job statuses.
const (
	StatusUploaded   JobStatus = "uploaded"
	StatusProcessing JobStatus = "processing"
	StatusPublished  JobStatus = "published"
)

// validStatuses is the set of recognized job statuses.
var validStatuses = map[JobStatus]bool{
	StatusUploaded:   true,
	StatusProcessing: true,
	StatusPublished:  true,
}

// Valid reports whether s is a recognized status.
func (s JobStatus) Valid() bool { return validStatuses[s] }

// JobNumberPattern matches WHL followed by a YYMMDD date and a 3-digit
// sequence. The fallback form (WHL plus nine timestamp digits) matches too.
var JobNumberPattern = regexp.MustCompile(`^WHL\d{6}\d{3}$`)

// MaxVehicleModelLen bounds Job.VehicleModel in characters.
const MaxVehicleModelLen = 100

// Job is a finalized unit of work: one vehicle visit with its photos.
type Job struct {
	JobID        int64     `json:"id"`
	JobNumber    string    `json:"job_number"`
	WorkDate     string    `json:"work_date"`
	VehicleModel string    `json:"vehicle_model"`
	Location     string    `json:"location,omitempty"`
	TechnicianID int64     `json:"technician_id"`
	Status       JobStatus `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Photos is filled by the access layer; the jobs table never stores it.
	Photos []*Photo `json:"photos,omitempty"`
}

// JobInput carries the caller-supplied fields of a new job.
type JobInput struct {
	JobNumber    string
	WorkDate     string
	VehicleModel string
	Location     string
	TechnicianID int64
	Status       JobStatus
}

// JobPatch lists job fields to change. Nil fields are left untouched.
type JobPatch struct {
	VehicleModel *string
	Location     *string
	Status       *JobStatus
	WorkDate     *string
}

// JobListOptions narrows and orders a technician's job list.
type JobListOptions struct {
	// OrderBy is a jobs column; empty orders by created_at.
	OrderBy   string
	Ascending bool
	Status    JobStatus
	// FromDate and ToDate bound work_date inclusively (YYYY-MM-DD).
	FromDate string
	ToDate   string
	// VehicleModelLike keeps jobs whose model contains the text, ignoring case.
	VehicleModelLike string
	Limit            int
}

// WorkDateLayout is the layout of Job.WorkDate.
const WorkDateLayout = "2006-01-02"

// Validate checks the fields a job must carry before it is stored.
// It returns a *AppError of KindValidation naming the offending field.
func (in JobInput) Validate() *AppError {
	if !JobNumberPattern.MatchString(in.JobNumber) {
		return ValidationError("job_number", "Job number must look like WHL followed by nine digits.")
	}
	if err := validateVehicleModel(in.VehicleModel); err != nil {
		return err
	}
	if in.Status != "" && !in.Status.Valid() {
		return ValidationError("status", "Status must be uploaded, processing or published.")
	}
	if in.TechnicianID <= 0 {
		return ValidationError("technician_id", "A technician is required.")
	}
	if in.WorkDate != "" {
		if _, err := time.Parse(WorkDateLayout, in.WorkDate); err != nil {
			return ValidationError("work_date", "Work date must be formatted YYYY-MM-DD.")
		}
	}
	return nil
}

// Validate checks the fields present in the patch.
func (p JobPatch) Validate() *AppError {
	if p.VehicleModel != nil {
		if err := validateVehicleModel(*p.VehicleModel); err != nil {
			return err
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		return ValidationError("status", "Status must be uploaded, processing or published.")
	}
	if p.WorkDate != nil {
		if _, err := time.Parse(WorkDateLayout, *p.WorkDate); err != nil {
			return ValidationError("work_date", "Work date must be formatted YYYY-MM-DD.")
		}
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p JobPatch) Empty() bool {
	return p.VehicleModel == nil && p.Location == nil && p.Status == nil && p.WorkDate == nil
}

func validateVehicleModel(model string) *AppError {
	if model == "" {
		return ValidationError("vehicle_model", "Vehicle model is required.")
	}
	if utf8.RuneCountInString(model) > MaxVehicleModelLen {
		return ValidationError("vehicle_model", "Vehicle model must be 100 characters or fewer.")
	}
	return nil
}
