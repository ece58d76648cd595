package sqlite

import (
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// stagedPhotosDef maps types.StagedPhoto onto temp_photos. Rows are scoped
// to a session and removed when the session is saved, reset or swept.
var stagedPhotosDef = &entityDef{
	name: types.StagedPhotosTable,
	columns: []string{
		"session_id", "category", "sequence", "created_at", "image_data",
		"thumbnail_data", "file_name", "file_size", "content_type",
	},
	unfilterable: map[string]bool{"image_data": true, "thumbnail_data": true},
	values:       stagedPhotoValues,
	setID:        func(rec any, id int64) { rec.(*types.StagedPhoto).StagedPhotoID = id },
	hydrate:      hydrateStagedPhoto,
}

func stagedPhotoValues(rec any) ([]any, error) {
	s, ok := rec.(*types.StagedPhoto)
	if !ok || s == nil {
		return nil, types.ErrInvalidData
	}
	if s.SessionID == "" {
		return nil, types.ErrInvalidData
	}
	return []any{
		s.SessionID, string(s.Category), s.Sequence, toMillis(s.CreatedAt), s.ImageData,
		s.ThumbnailData, s.FileName, s.FileSize, s.ContentType,
	}, nil
}

func hydrateStagedPhoto(row rowScanner) (any, error) {
	var (
		s        types.StagedPhoto
		category string
		created  int64
	)
	if err := row.Scan(
		&s.StagedPhotoID, &s.SessionID, &category, &s.Sequence, &created, &s.ImageData,
		&s.ThumbnailData, &s.FileName, &s.FileSize, &s.ContentType,
	); err != nil {
		return nil, err
	}
	s.Category = types.Category(category)
	s.CreatedAt = fromMillis(created)
	return &s, nil
}
