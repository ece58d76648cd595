package types

import (
	"log/slog"
	"time"
)

// Category is one of the fixed workflow stages a photo documents.
type Category string

// Photo categories in workflow order.
const (
	CategoryBeforeCar   Category = "before_car"
	CategoryBeforeWheel Category = "before_wheel"
	CategoryDuring      Category = "during"
	CategoryAfterWheel  Category = "after_wheel"
	CategoryAfterCar    Category = "after_car"
)

// Categories lists every category in workflow order.
var Categories = []Category{
	CategoryBeforeCar,
	CategoryBeforeWheel,
	CategoryDuring,
	CategoryAfterWheel,
	CategoryAfterCar,
}

var categoryLabels = map[Category]string{
	CategoryBeforeCar:   "Before - Car",
	CategoryBeforeWheel: "Before - Wheel",
	CategoryDuring:      "During",
	CategoryAfterWheel:  "After - Wheel",
	CategoryAfterCar:    "After - Car",
}

// ValidCategory reports whether c is one of the five categories.
func ValidCategory(c Category) bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the display name of the category.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Photo is a finalized image attached to a job.
type Photo struct {
	PhotoID      int64     `json:"id"`
	JobID        int64     `json:"job_id"`
	Category     Category  `json:"category"`
	Sequence     int       `json:"sequence"`
	UploadedAt   time.Time `json:"uploaded_at"`
	URL          string    `json:"url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	PublicID     string    `json:"public_id,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Format       string    `json:"format,omitempty"`

	// ImageData and ThumbnailData hold raw bytes for copies that were never
	// uploaded to remote storage.
	ImageData     []byte `json:"image_data,omitempty"`
	ThumbnailData []byte `json:"thumbnail_data,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	FileSize      int64  `json:"file_size"`
}

// LogValue keeps image bytes out of log records.
func (p *Photo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("id", p.PhotoID),
		slog.Int64("job_id", p.JobID),
		slog.String("category", string(p.Category)),
		slog.Int("sequence", p.Sequence),
		slog.Int64("file_size", p.FileSize),
	)
}

// PhotoInput carries the fields of a new finalized photo.
type PhotoInput struct {
	JobID         int64
	Category      Category
	Sequence      int
	URL           string
	ThumbnailURL  string
	PublicID      string
	Width         int
	Height        int
	Format        string
	ImageData     []byte
	ThumbnailData []byte
	FileName      string
	FileSize      int64
}

// Validate checks the fields a photo must carry before it is stored.
func (in PhotoInput) Validate() *AppError {
	if in.JobID <= 0 {
		return ValidationError("job_id", "A photo must belong to a job.")
	}
	if !ValidCategory(in.Category) {
		return ValidationError("category", "Unknown photo category.")
	}
	if in.Sequence < 0 {
		return ValidationError("sequence", "Photo sequence must not be negative.")
	}
	return nil
}

// StagedPhoto is a photo captured in an unfinished session. Its raw bytes
// live only in the structured local store.
type StagedPhoto struct {
	StagedPhotoID int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	Category      Category  `json:"category"`
	Sequence      int       `json:"sequence"`
	CreatedAt     time.Time `json:"created_at"`
	ImageData     []byte    `json:"image_data,omitempty"`
	ThumbnailData []byte    `json:"thumbnail_data,omitempty"`
	FileName      string    `json:"file_name"`
	FileSize      int64     `json:"file_size"`
	ContentType   string    `json:"content_type,omitempty"`
}

// LogValue keeps image bytes out of log records.
func (s *StagedPhoto) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("id", s.StagedPhotoID),
		slog.String("session_id", s.SessionID),
		slog.String("category", string(s.Category)),
		slog.Int("sequence", s.Sequence),
		slog.Int64("file_size", s.FileSize),
	)
}

// PhotoPayload is a captured image ready to be staged.
type PhotoPayload struct {
	ImageData     []byte
	ThumbnailData []byte
	FileName      string
	FileSize      int64
	ContentType   string
}
