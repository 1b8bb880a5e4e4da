package transform

import (
	"fmt"
	"image"
	"math"

	"github.com/dunamismax/pixelfix/internal/raster"
)

// SquareRegion returns the centered square of a width x height image.
func SquareRegion(width, height int) image.Rectangle {
	var sx, sy, side float64
	if width > height {
		sx = float64(width-height) / 2
		side = float64(height)
	} else {
		sy = float64(height-width) / 2
		side = float64(width)
	}

	x, y, s := int(math.Round(sx)), int(math.Round(sy)), int(math.Round(side))
	return image.Rect(x, y, x+s, y+s)
}

// Crop scales the centered square of src to exactly size x size.
func Crop(alloc raster.Allocator, src *raster.NormalizedImage, size int) (*image.RGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: crop requires size > 0", ErrInvalidTransformRequest)
	}
	if src == nil || src.Width <= 0 || src.Height <= 0 {
		return nil, fmt.Errorf("%w: empty source", ErrInvalidTransformRequest)
	}
	return render(alloc, src, SquareRegion(src.Width, src.Height), size, size)
}
