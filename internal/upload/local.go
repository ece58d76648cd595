package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/photofactory/internal/atomicfile"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Local copies photos into a directory and returns file:// URLs.
type Local struct {
	dir    string
	logger *slog.Logger
}

var (
	_ types.Uploader = (*Local)(nil)
	_ types.Remover  = (*Local)(nil)
)

// NewLocal returns a Local uploader rooted at dir. The directory is created
// on first upload.
func NewLocal(dir string, logger *slog.Logger) (*Local, error) {
	if dir == "" {
		return nil, errors.New("upload: local directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("upload: resolving %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{dir: abs, logger: logger}, nil
}

// Upload writes the image and thumbnail atomically.
func (l *Local) Upload(ctx context.Context, f types.UploadFile) (types.UploadResult, error) {
	if err := validate(f); err != nil {
		return types.UploadResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.UploadResult{}, types.UploadError("upload cancelled", err)
	}

	key := ObjectPath(f)
	full := l.file(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return types.UploadResult{}, types.UploadError("creating upload directory", err)
	}
	if err := atomicfile.Write(full, f.ImageData, 0o644); err != nil {
		return types.UploadResult{}, types.UploadError(fmt.Sprintf("writing %s", key), err)
	}

	res := types.UploadResult{URL: fileURL(full), PublicID: key}
	if len(f.ThumbnailData) > 0 {
		thumb := l.file(ThumbnailPath(key))
		if err := atomicfile.Write(thumb, f.ThumbnailData, 0o644); err != nil {
			return types.UploadResult{}, types.UploadError(fmt.Sprintf("writing thumbnail of %s", key), err)
		}
		res.ThumbnailURL = fileURL(thumb)
	}
	describe(&res, f)
	l.logger.Debug("photo copied", "public_id", key, "bytes", res.Bytes)
	return res, nil
}

// Remove deletes the objects and their thumbnails. Missing files are skipped.
func (l *Local) Remove(ctx context.Context, publicIDs ...string) error {
	var errs []error
	for _, id := range publicIDs {
		for _, key := range []string{id, ThumbnailPath(id)} {
			if err := os.Remove(l.file(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return types.UploadError("removing uploaded photos", err)
	}
	return nil
}

func (l *Local) file(key string) string {
	return filepath.Join(l.dir, filepath.FromSlash(key))
}

func fileURL(p string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}
