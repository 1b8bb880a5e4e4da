package transform

import (
	"fmt"
	"image"

	"github.com/dunamismax/pixelfix/internal/raster"
)

// Fit computes proportional dimensions for a width x height source.
//
// Width only or height only scales the other side in proportion. Both set is a
// bounding box: landscape sources wider than the box scale to its width,
// portrait or square sources taller than the box scale to its height, and
// anything else is left as is. Results are rounded to the nearest pixel.
func Fit(width, height, targetWidth, targetHeight int) (int, int) {
	w, h := float64(width), float64(height)
	switch {
	case targetWidth > 0 && targetHeight <= 0:
		h = h * float64(targetWidth) / w
		w = float64(targetWidth)
	case targetWidth <= 0 && targetHeight > 0:
		w = w * float64(targetHeight) / h
		h = float64(targetHeight)
	case targetWidth > 0 && targetHeight > 0:
		if w > h {
			if w > float64(targetWidth) {
				h *= float64(targetWidth) / w
				w = float64(targetWidth)
			}
		} else if h > float64(targetHeight) {
			w *= float64(targetHeight) / h
			h = float64(targetHeight)
		}
	}
	return round(w), round(h)
}

// Resize scales src to the dimensions Fit picks for the given constraints.
func Resize(alloc raster.Allocator, src *raster.NormalizedImage, targetWidth, targetHeight int) (*image.RGBA, error) {
	if targetWidth <= 0 && targetHeight <= 0 {
		return nil, fmt.Errorf("%w: resize requires width or height", ErrInvalidTransformRequest)
	}
	if src == nil || src.Width <= 0 || src.Height <= 0 {
		return nil, fmt.Errorf("%w: empty source", ErrInvalidTransformRequest)
	}

	w, h := Fit(src.Width, src.Height, targetWidth, targetHeight)
	return render(alloc, src, src.Bounds(), w, h)
}
