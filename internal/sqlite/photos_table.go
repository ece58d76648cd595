package sqlite

import (
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

var photosDef = &entityDef{
	name: types.PhotosTable,
	columns: []string{
		"job_id", "category", "sequence", "uploaded_at", "url", "thumbnail_url",
		"public_id", "width", "height", "format", "image_data", "thumbnail_data",
		"file_name", "file_size",
	},
	unfilterable: map[string]bool{"image_data": true, "thumbnail_data": true},
	values:       photoValues,
	setID:        func(rec any, id int64) { rec.(*types.Photo).PhotoID = id },
	hydrate:      hydratePhoto,
}

func photoValues(rec any) ([]any, error) {
	p, ok := rec.(*types.Photo)
	if !ok || p == nil {
		return nil, types.ErrInvalidData
	}
	return []any{
		p.JobID, string(p.Category), p.Sequence, toMillis(p.UploadedAt), p.URL, p.ThumbnailURL,
		p.PublicID, p.Width, p.Height, p.Format, p.ImageData, p.ThumbnailData,
		p.FileName, p.FileSize,
	}, nil
}

// hydratePhoto scans a photos row into a *types.Photo.
func hydratePhoto(row rowScanner) (any, error) {
	var (
		p        types.Photo
		category string
		uploaded int64
	)
	if err := row.Scan(
		&p.PhotoID, &p.JobID, &category, &p.Sequence, &uploaded, &p.URL, &p.ThumbnailURL,
		&p.PublicID, &p.Width, &p.Height, &p.Format, &p.ImageData, &p.ThumbnailData,
		&p.FileName, &p.FileSize,
	); err != nil {
		return nil, err
	}
	p.Category = types.Category(category)
	p.UploadedAt = fromMillis(uploaded)
	return &p, nil
}
