// Package transform derives resized and square-cropped variants from a
// normalized image.
package transform

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/dunamismax/pixelfix/internal/raster"
)

var ErrInvalidTransformRequest = errors.New("invalid transform request")

const (
	ActionResize = "resize"
	ActionCrop   = "crop"
)

// Request is one derived variant. Resize uses Width and/or Height, zero
// meaning unset; Crop uses Size.
type Request struct {
	Action string
	Width  int
	Height int
	Size   int
}

func (r Request) Validate() error {
	switch strings.ToLower(strings.TrimSpace(r.Action)) {
	case ActionResize:
		if r.Width < 0 || r.Height < 0 {
			return fmt.Errorf("%w: resize dimensions must not be negative", ErrInvalidTransformRequest)
		}
		if r.Width == 0 && r.Height == 0 {
			return fmt.Errorf("%w: resize requires width or height", ErrInvalidTransformRequest)
		}
	case ActionCrop:
		if r.Size <= 0 {
			return fmt.Errorf("%w: crop requires size > 0", ErrInvalidTransformRequest)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidTransformRequest, r.Action)
	}
	return nil
}

// Apply runs the variant r describes against src.
func Apply(alloc raster.Allocator, src *raster.NormalizedImage, r Request) (*image.RGBA, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(r.Action)) {
	case ActionCrop:
		return Crop(alloc, src, r.Size)
	default:
		return Resize(alloc, src, r.Width, r.Height)
	}
}

func render(alloc raster.Allocator, src *raster.NormalizedImage, sr image.Rectangle, w, h int) (*image.RGBA, error) {
	if src == nil || src.Buffer == nil {
		return nil, fmt.Errorf("%w: no normalized image", ErrInvalidTransformRequest)
	}
	dst, err := alloc.Allocate(w, h)
	if err != nil {
		return nil, fmt.Errorf("allocate %dx%d: %w", w, h, err)
	}
	dst.CompositeFrom(src.Buffer, sr, image.Rect(0, 0, w, h), raster.Identity())
	return dst.Image(), nil
}

func round(v float64) int {
	return max(1, int(math.Round(v)))
}
