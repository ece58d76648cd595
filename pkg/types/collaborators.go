package types

import "context"

// Authenticator reports the signed-in technician.
type Authenticator interface {
	// CurrentUser returns nil with a nil error when nobody is signed in.
	CurrentUser(ctx context.Context) (*User, error)
}

// UploadFile is one image handed to an Uploader.
type UploadFile struct {
	JobNumber     string
	Category      Category
	Sequence      int
	FileName      string
	ContentType   string
	ImageData     []byte
	ThumbnailData []byte
}

// UploadResult describes where an uploaded image now lives.
type UploadResult struct {
	URL          string
	ThumbnailURL string
	PublicID     string
	Width        int
	Height       int
	Bytes        int64
	Format       string
}

// Uploader sends finalized photos to durable storage.
type Uploader interface {
	Upload(ctx context.Context, f UploadFile) (UploadResult, error)
}

// KV is a small persisted key-value blob. Set returns an error wrapping
// ErrQuotaExceeded when the value does not fit.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// Remover is implemented by Uploaders that can delete what they stored.
// Save uses it to clean up after a failed promotion.
type Remover interface {
	Remove(ctx context.Context, publicIDs ...string) error
}
