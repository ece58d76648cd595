// Package upload holds the Uploader implementations that move finalized
// photos out of the local store: a directory on disk and a Supabase storage
// bucket. Both lay objects out as <job number>/<category>_<sequence>_<name>
// with the thumbnail beside it under a thumb_ prefix.
package upload

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/mesh-intelligence/photofactory/internal/imageproc"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Backend names accepted by the upload.backend setting.
const (
	BackendNone     = "none"
	BackendLocal    = "local"
	BackendSupabase = "supabase"
)

const thumbPrefix = "thumb_"

// Config selects and configures an uploader.
type Config struct {
	Backend  string
	LocalDir string
	Supabase SupabaseConfig
}

// New returns the uploader named by cfg.Backend. The none backend, and an
// empty name, return a nil Uploader: photos then stay in the local store.
func New(cfg Config, logger *slog.Logger) (types.Uploader, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendLocal:
		return NewLocal(cfg.LocalDir, logger)
	case BackendSupabase:
		return NewSupabase(cfg.Supabase, logger)
	default:
		return nil, fmt.Errorf("upload: unknown backend %q", cfg.Backend)
	}
}

// ObjectPath returns the storage key of f's full-size image.
func ObjectPath(f types.UploadFile) string {
	name := imageproc.SanitizeFilename(f.FileName)
	if name == "" {
		name = "photo.jpg"
	}
	return path.Join(imageproc.SanitizeFilename(f.JobNumber), fmt.Sprintf("%s_%d_%s", f.Category, f.Sequence, name))
}

// ThumbnailPath returns the storage key of the thumbnail stored beside p.
func ThumbnailPath(p string) string {
	dir, file := path.Split(p)
	return dir + thumbPrefix + file
}

func validate(f types.UploadFile) error {
	if strings.TrimSpace(f.JobNumber) == "" {
		return types.UploadError("upload without a job number", nil)
	}
	if len(f.ImageData) == 0 {
		return types.UploadError(fmt.Sprintf("upload of %s has no image data", f.FileName), nil)
	}
	return nil
}

// describe fills the dimensions and format of the uploaded image. An
// unreadable header leaves them zero.
func describe(res *types.UploadResult, f types.UploadFile) {
	res.Bytes = int64(len(f.ImageData))
	if info, err := imageproc.Inspect(f.ImageData); err == nil {
		res.Width, res.Height, res.Format = info.Width, info.Height, info.Format
	}
}

func contentType(f types.UploadFile) string {
	if f.ContentType != "" {
		return f.ContentType
	}
	return "image/jpeg"
}
