package assets

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"mailroom/internal/constants"
	"mailroom/pkg/metrics"
)

// DerivedImage is one re-encoded variant with its final dimensions.
type DerivedImage struct {
	Data   []byte
	Width  int
	Height int
}

// DeriveWeb re-encodes an image for inline display: auto-rotated,
// width-capped at 1600px, WebP quality 85. Never upscales.
func DeriveWeb(buf []byte) (*DerivedImage, error) {
	start := time.Now()

	img, err := decodeAndOrient(buf)
	if err != nil {
		return nil, err
	}

	if img.Bounds().Dx() > constants.WebImageMaxWidth {
		img = imaging.Resize(img, constants.WebImageMaxWidth, 0, imaging.Lanczos)
	}

	out, err := encodeWebP(img, constants.WebImageQuality)
	if err != nil {
		return nil, err
	}

	metrics.ObserveImageDerivationDuration(constants.VariantWeb, time.Since(start))
	return &DerivedImage{
		Data:   out,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// DeriveThumb fits the image within 320x320 preserving aspect ratio,
// WebP quality 75. Never upscales.
func DeriveThumb(buf []byte) (*DerivedImage, error) {
	start := time.Now()

	img, err := decodeAndOrient(buf)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if bounds.Dx() > constants.ThumbImageMaxDim || bounds.Dy() > constants.ThumbImageMaxDim {
		img = imaging.Fit(img, constants.ThumbImageMaxDim, constants.ThumbImageMaxDim, imaging.Lanczos)
	}

	out, err := encodeWebP(img, constants.ThumbImageQuality)
	if err != nil {
		return nil, err
	}

	metrics.ObserveImageDerivationDuration(constants.VariantThumb, time.Since(start))
	return &DerivedImage{
		Data:   out,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// decodeAndOrient decodes the image and applies the EXIF orientation so
// derived variants render upright regardless of how the camera stored
// the pixels.
func decodeAndOrient(buf []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return applyOrientation(img, readOrientation(buf)), nil
}

// readOrientation returns the EXIF orientation tag, or 1 (upright) when
// the image has no usable EXIF data.
func readOrientation(buf []byte) int {
	meta, err := exif.Decode(bytes.NewReader(buf))
	if err != nil {
		return 1
	}

	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return 1
	}

	orientation, err := tag.Int(0)
	if err != nil || orientation < 1 || orientation > 8 {
		return 1
	}
	return orientation
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, fmt.Errorf("failed to encode webp: %w", err)
	}
	return buf.Bytes(), nil
}
