// Package media prepares images for image posts and archives the images of
// downloaded topics.
package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif" // Import gif decoder
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	"pkuhole/config"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// maxSourcePixels guards against decompression bombs.
const maxSourcePixels = 40_000_000

var allowedTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// UnsupportedTypeError is returned for data that is not a JPG, PNG, GIF or WebP image.
type UnsupportedTypeError struct {
	ContentType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported file type: %s. Only JPG, PNG, GIF, and WebP are allowed", e.ContentType)
}

// detect sniffs data and returns its MIME type and file extension.
func detect(data []byte) (contentType, ext string, err error) {
	contentType = http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return contentType, "", &UnsupportedTypeError{ContentType: contentType}
	}
	return contentType, ext, nil
}

// decode checks the header of an image before decoding it with EXIF
// orientation applied.
func decode(data []byte) (image.Image, error) {
	reader := bytes.NewReader(data)
	cfg, _, err := image.DecodeConfig(reader)
	if err != nil {
		return nil, fmt.Errorf("invalid image format, could not decode config: %w", err)
	}
	if cfg.Width*cfg.Height > maxSourcePixels {
		return nil, fmt.Errorf("image dimensions (%dx%d) are too large", cfg.Width, cfg.Height)
	}
	if _, err := reader.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("could not reset reader position: %w", err)
	}
	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image with orientation correction: %w", err)
	}
	return img, nil
}

// Normalize re-encodes an image as JPEG, oriented upright and no larger than
// the configured maximum dimensions.
func Normalize(data []byte) ([]byte, error) {
	if len(data) > config.MaxUploadSize {
		return nil, fmt.Errorf("image is %d bytes, limit is %d", len(data), config.MaxUploadSize)
	}
	if _, _, err := detect(data); err != nil {
		return nil, err
	}
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() > config.MaxWidth || b.Dy() > config.MaxHeight {
		img = imaging.Fit(img, config.MaxWidth, config.MaxHeight, imaging.Lanczos)
	}
	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(config.UploadQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return out.Bytes(), nil
}

// PrepareUpload normalizes an image and encodes it as base64 text, the form
// the image post expects after its data marker.
func PrepareUpload(data []byte) ([]byte, error) {
	jpeg, err := Normalize(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(jpeg)))
	base64.StdEncoding.Encode(out, jpeg)
	return out, nil
}

// Thumbnail returns a JPEG thumbnail that fits the configured thumbnail size,
// preserving aspect ratio.
func Thumbnail(data []byte) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	thumb := imaging.Fit(img, config.ThumbnailWidth, config.ThumbnailHeight, imaging.Lanczos)
	var out bytes.Buffer
	if err := imaging.Encode(&out, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return out.Bytes(), nil
}
