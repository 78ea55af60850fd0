// Package imageproc sniffs uploaded image content and shrinks photos
// before they are sent to the vision model.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// MaxVisionSide is the longest side, in pixels, of an image sent to the model.
const MaxVisionSide = 1568

// Accepted image content types.
const (
	TypeJPEG = "image/jpeg"
	TypePNG  = "image/png"
	TypeHEIC = "image/heic"
)

// ErrUnsupportedType is returned for content that is not JPEG, PNG or HEIC.
var ErrUnsupportedType = errors.New("unsupported image type")

var extensions = map[string]string{
	TypeJPEG: ".jpg",
	TypePNG:  ".png",
	TypeHEIC: ".heic",
}

// Detect sniffs data and returns its content type and file extension.
func Detect(data []byte) (contentType, ext string, err error) {
	detected := mimetype.Detect(data)
	for candidate := detected; candidate != nil; candidate = candidate.Parent() {
		if ext, ok := extensions[candidate.String()]; ok {
			return candidate.String(), ext, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, detected.String())
}

// Downscale fits a JPEG or PNG within maxSide x maxSide, respecting EXIF
// orientation. Images already small enough, HEIC images and anything that
// fails to decode are returned unchanged.
func Downscale(data []byte, contentType string, maxSide int) ([]byte, error) {
	var format imaging.Format
	switch contentType {
	case TypeJPEG:
		format = imaging.JPEG
	case TypePNG:
		format = imaging.PNG
	default:
		return data, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, nil
	}
	if cfg.Width <= maxSide && cfg.Height <= maxSide {
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data, nil
	}
	img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}
