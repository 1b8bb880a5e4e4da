package normalize

import (
	"fmt"

	"github.com/dunamismax/pixelfix/internal/raster"
)

// SubsamplingThreshold is the pixel count above which decoders may subsample.
const SubsamplingThreshold = 1024 * 1024

// DetectSubsampling reports whether the decoder rendered img at reduced
// resolution. It draws the image into a 1x1 surface so that only the natural
// right edge column can land there; an empty pixel means the rendered raster
// stops short of that edge.
func DetectSubsampling(alloc raster.Allocator, img *raster.DecodedImage) (bool, error) {
	iw, ih := img.NaturalWidth, img.NaturalHeight
	if iw*ih <= SubsamplingThreshold {
		return false, nil
	}

	probe, err := alloc.Allocate(1, 1)
	if err != nil {
		return false, fmt.Errorf("%w: subsampling probe: %v", ErrCompositeFailure, err)
	}
	img.DrawAt(probe, -iw+1, 0)
	return probe.AlphaAt(0, 0) == 0, nil
}

// DetectVerticalSquash returns the fraction of sourceHeight that actually
// carries image content in the decoder's rendering. The edge is found by
// binary search over the first column; a zero ratio is reported as 1.
func DetectVerticalSquash(alloc raster.Allocator, img *raster.DecodedImage, sourceWidth, sourceHeight int) (float64, error) {
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return 1, nil
	}

	column, err := alloc.Allocate(1, sourceHeight)
	if err != nil {
		return 0, fmt.Errorf("%w: squash probe: %v", ErrCompositeFailure, err)
	}
	img.DrawAt(column, 0, 0)

	return squashRatio(column.AlphaAt, sourceHeight), nil
}

func squashRatio(alphaAt func(x, y int) uint8, height int) float64 {
	low, high, row := 0, height, height
	for row > low {
		if alphaAt(0, row-1) == 0 {
			high = row
		} else {
			low = row
		}
		row = (high + low) >> 1
	}

	ratio := float64(row) / float64(height)
	if ratio == 0 {
		return 1
	}
	return ratio
}
