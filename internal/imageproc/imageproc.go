// Package imageproc turns a captured image into a stageable payload: an
// upright JPEG no larger than the configured bound plus a small thumbnail.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the WebP decoder

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Defaults for Options.
const (
	DefaultMaxFileSize    = 10 << 20
	DefaultMaxDimension   = 1920
	DefaultQuality        = 80
	DefaultThumbDimension = 300
	DefaultThumbQuality   = 70

	maxFileNameLen = 255
)

// AcceptedTypes lists the content types Process accepts.
var AcceptedTypes = []string{"image/jpeg", "image/png", "image/webp"}

// Options tunes Process. Zero fields take the defaults.
type Options struct {
	MaxFileSize    int64
	MaxDimension   int
	Quality        int
	ThumbDimension int
	ThumbQuality   int
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	if o.ThumbDimension <= 0 {
		o.ThumbDimension = DefaultThumbDimension
	}
	if o.ThumbQuality <= 0 || o.ThumbQuality > 100 {
		o.ThumbQuality = DefaultThumbQuality
	}
	return o
}

// Process reads one image from r and returns the compressed JPEG and its
// thumbnail. EXIF orientation is applied before resizing. Oversized input and
// unsupported formats fail with a validation error.
func Process(r io.Reader, name string, opts Options) (types.PhotoPayload, error) {
	opts = opts.withDefaults()

	raw, err := io.ReadAll(io.LimitReader(r, opts.MaxFileSize+1))
	if err != nil {
		return types.PhotoPayload{}, types.UnknownError("reading image", err)
	}
	if int64(len(raw)) > opts.MaxFileSize {
		return types.PhotoPayload{}, types.ValidationError("file",
			fmt.Sprintf("The photo is larger than %d MB.", opts.MaxFileSize>>20))
	}
	if len(raw) == 0 {
		return types.PhotoPayload{}, types.ValidationError("file", "The photo is empty.")
	}
	if ct := http.DetectContentType(raw); !Accepted(ct) {
		return types.PhotoPayload{}, types.ValidationError("file",
			fmt.Sprintf("Unsupported image type %s. Use JPEG, PNG or WebP.", ct))
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return types.PhotoPayload{}, types.ValidationError("file", "The photo could not be read.")
	}

	full, err := encode(imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos), opts.Quality)
	if err != nil {
		return types.PhotoPayload{}, err
	}
	thumb, err := encode(imaging.Fit(img, opts.ThumbDimension, opts.ThumbDimension, imaging.Lanczos), opts.ThumbQuality)
	if err != nil {
		return types.PhotoPayload{}, err
	}

	return types.PhotoPayload{
		ImageData:     full,
		ThumbnailData: thumb,
		FileName:      SanitizeFilename(name),
		FileSize:      int64(len(full)),
		ContentType:   "image/jpeg",
	}, nil
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, types.UnknownError("encoding image", err)
	}
	return buf.Bytes(), nil
}

// Accepted reports whether contentType is one of AcceptedTypes.
func Accepted(contentType string) bool {
	ct, _, _ := strings.Cut(contentType, ";")
	for _, t := range AcceptedTypes {
		if strings.EqualFold(strings.TrimSpace(ct), t) {
			return true
		}
	}
	return false
}

// Info describes an encoded image without decoding its pixels.
type Info struct {
	Width  int
	Height int
	Format string
}

// Inspect reads the dimensions and format of an encoded image.
func Inspect(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("reading image header: %w", err)
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

var invalidFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeFilename replaces characters that are unsafe in file names, defuses
// "..", and caps the length at 255 bytes without splitting a UTF-8 sequence.
func SanitizeFilename(name string) string {
	name = invalidFileChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.ReplaceAll(name, "..", "_")
	if len(name) <= maxFileNameLen {
		return name
	}
	cut := maxFileNameLen
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
