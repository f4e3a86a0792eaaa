package imageproc

import (
	"bytes"
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

var (
	ErrImageTooLarge      = errors.New("image exceeds maximum size")
	ErrImageTooManyPixels = errors.New("image exceeds maximum pixel count")
	ErrSizeInvalid        = errors.New("target size is invalid")
)

type Limits struct {
	MaxBytes  int64
	MaxPixels int
}

func DecodeImage(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

func ValidateImage(img image.Image, maxPixels int) error {
	// Guard against images that are valid but too large for memory/time budgets.
	if maxPixels <= 0 {
		return nil
	}
	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels > maxPixels {
		return ErrImageTooManyPixels
	}
	return nil
}

// FitSize scales src to the largest size that fits inside the w x h box
// while keeping the aspect ratio.
func FitSize(srcW, srcH, w, h int) (int, int) {
	scale := math.Min(float64(w)/float64(srcW), float64(h)/float64(srcH))
	fw := int(math.Round(float64(srcW) * scale))
	fh := int(math.Round(float64(srcH) * scale))
	return max(fw, 1), max(fh, 1)
}

func ResizeImage(img image.Image, w, h int) (image.Image, error) {
	if w <= 0 || h <= 0 {
		return nil, ErrSizeInvalid
	}
	b := img.Bounds()
	fw, fh := FitSize(b.Dx(), b.Dy(), w, h)
	return imaging.Resize(img, fw, fh, imaging.Lanczos), nil
}

// CropResizeImage covers the w x h box and crops the overflow around the
// center.
func CropResizeImage(img image.Image, w, h int) (image.Image, error) {
	if w <= 0 || h <= 0 {
		return nil, ErrSizeInvalid
	}
	return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos), nil
}

func Encode(img image.Image, format imaging.Format, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
