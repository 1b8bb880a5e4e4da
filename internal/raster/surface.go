package raster

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
)

var (
	ErrSurfaceExhausted = errors.New("drawing surface exhausted")
	ErrInvalidSize      = errors.New("invalid surface size")
)

// Surface is an RGBA drawing target. Coordinates passed to CompositeFrom are
// in user space and mapped to device pixels through m.
type Surface interface {
	Bounds() image.Rectangle
	Clear(r image.Rectangle)
	// CompositeFrom draws src's sr region into dr (user space), transformed by m,
	// using source-over composition.
	CompositeFrom(src image.Image, sr, dr image.Rectangle, m Affine)
	AlphaAt(x, y int) uint8
	Image() *image.RGBA
}

type Allocator interface {
	Allocate(width, height int) (Surface, error)
}

// RGBAAllocator hands out in-memory surfaces. MaxPixels bounds a single
// allocation; zero means unbounded.
type RGBAAllocator struct {
	Interpolator xdraw.Interpolator
	MaxPixels    int
}

func (a RGBAAllocator) Allocate(width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if a.MaxPixels > 0 && int64(width)*int64(height) > int64(a.MaxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrSurfaceExhausted, width, height, a.MaxPixels)
	}

	interp := a.Interpolator
	if interp == nil {
		interp = xdraw.BiLinear
	}
	return &rgbaSurface{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		interp: interp,
	}, nil
}

type rgbaSurface struct {
	img    *image.RGBA
	interp xdraw.Interpolator
}

func (s *rgbaSurface) Bounds() image.Rectangle {
	return s.img.Bounds()
}

func (s *rgbaSurface) Clear(r image.Rectangle) {
	draw.Draw(s.img, r.Intersect(s.img.Bounds()), image.Transparent, image.Point{}, draw.Src)
}

func (s *rgbaSurface) CompositeFrom(src image.Image, sr, dr image.Rectangle, m Affine) {
	sr = sr.Intersect(src.Bounds())
	if sr.Empty() || dr.Empty() {
		return
	}

	sx := float64(dr.Dx()) / float64(sr.Dx())
	sy := float64(dr.Dy()) / float64(sr.Dy())
	toUser := Affine{
		A: sx,
		D: sy,
		E: float64(dr.Min.X) - float64(sr.Min.X)*sx,
		F: float64(dr.Min.Y) - float64(sr.Min.Y)*sy,
	}
	full := m.Multiply(toUser)

	if dx, dy, ok := full.integerOffset(); ok {
		target := sr.Add(image.Pt(dx, dy))
		draw.Draw(s.img, target, src, sr.Min, draw.Over)
		return
	}

	if full.axisAligned() {
		x0, y0 := full.Apply(float64(sr.Min.X), float64(sr.Min.Y))
		x1, y1 := full.Apply(float64(sr.Max.X), float64(sr.Max.Y))
		if isWhole(x0) && isWhole(y0) && isWhole(x1) && isWhole(y1) {
			target := image.Rect(int(x0), int(y0), int(x1), int(y1))
			s.interp.Scale(s.img, target, src, sr, xdraw.Over, nil)
			return
		}
	}

	s.interp.Transform(s.img, full.aff3(), src, sr, xdraw.Over, nil)
}

func (s *rgbaSurface) AlphaAt(x, y int) uint8 {
	if !(image.Point{X: x, Y: y}).In(s.img.Bounds()) {
		return 0
	}
	return s.img.RGBAAt(x, y).A
}

func (s *rgbaSurface) Image() *image.RGBA {
	return s.img
}

func isWhole(v float64) bool {
	return v == math.Trunc(v)
}

// ParseInterpolator maps a configuration name to an x/image/draw interpolator.
func ParseInterpolator(name string) (xdraw.Interpolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest", "nearestneighbor":
		return xdraw.NearestNeighbor, nil
	case "approxbilinear":
		return xdraw.ApproxBiLinear, nil
	case "", "bilinear":
		return xdraw.BiLinear, nil
	case "catmullrom":
		return xdraw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("unsupported interpolator: %s", name)
	}
}
