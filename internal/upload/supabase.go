package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	storage "github.com/supabase-community/storage-go"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// SupabaseConfig locates a storage bucket.
type SupabaseConfig struct {
	URL    string
	Key    string
	Bucket string
}

// Supabase stores photos in a public Supabase storage bucket.
type Supabase struct {
	baseURL string
	bucket  string
	logger  *slog.Logger

	put    func(key string, data []byte, contentType string) error
	remove func(keys []string) error
}

var (
	_ types.Uploader = (*Supabase)(nil)
	_ types.Remover  = (*Supabase)(nil)
)

// NewSupabase returns an uploader for cfg.Bucket.
func NewSupabase(cfg SupabaseConfig, logger *slog.Logger) (*Supabase, error) {
	if cfg.URL == "" || cfg.Key == "" || cfg.Bucket == "" {
		return nil, errors.New("upload: supabase url, key and bucket are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.URL, "/")
	client := storage.NewClient(baseURL+"/storage/v1", cfg.Key, nil)

	s := &Supabase{baseURL: baseURL, bucket: cfg.Bucket, logger: logger}
	s.put = func(key string, data []byte, contentType string) error {
		upsert := true
		_, err := client.UploadFile(s.bucket, key, bytes.NewReader(data), storage.FileOptions{
			ContentType: &contentType,
			Upsert:      &upsert,
		})
		return err
	}
	s.remove = func(keys []string) error {
		_, err := client.RemoveFile(s.bucket, keys)
		return err
	}
	return s, nil
}

// Upload stores the image and thumbnail and returns their public URLs.
func (s *Supabase) Upload(ctx context.Context, f types.UploadFile) (types.UploadResult, error) {
	if err := validate(f); err != nil {
		return types.UploadResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.UploadResult{}, types.UploadError("upload cancelled", err)
	}

	key := ObjectPath(f)
	if err := s.put(key, f.ImageData, contentType(f)); err != nil {
		return types.UploadResult{}, types.UploadError(fmt.Sprintf("uploading %s", key), err)
	}
	res := types.UploadResult{URL: s.PublicURL(key), PublicID: key}
	if len(f.ThumbnailData) > 0 {
		thumb := ThumbnailPath(key)
		if err := s.put(thumb, f.ThumbnailData, "image/jpeg"); err != nil {
			return types.UploadResult{}, types.UploadError(fmt.Sprintf("uploading thumbnail of %s", key), err)
		}
		res.ThumbnailURL = s.PublicURL(thumb)
	}
	describe(&res, f)
	s.logger.Debug("photo uploaded", "bucket", s.bucket, "public_id", key, "bytes", res.Bytes)
	return res, nil
}

// Remove deletes the objects and their thumbnails from the bucket.
func (s *Supabase) Remove(ctx context.Context, publicIDs ...string) error {
	if len(publicIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, 2*len(publicIDs))
	for _, id := range publicIDs {
		keys = append(keys, id, ThumbnailPath(id))
	}
	if err := s.remove(keys); err != nil {
		return types.UploadError("removing uploaded photos", err)
	}
	return nil
}

// PublicURL returns the public address of key in the bucket.
func (s *Supabase) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}
