package raster

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	xdraw "golang.org/x/image/draw"
)

func TestAllocateRejectsInvalidAndOversizedSurfaces(t *testing.T) {
	alloc := RGBAAllocator{MaxPixels: 100}

	if _, err := alloc.Allocate(0, 10); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
	if _, err := alloc.Allocate(11, 10); !errors.Is(err, ErrSurfaceExhausted) {
		t.Fatalf("expected ErrSurfaceExhausted, got %v", err)
	}
	s, err := alloc.Allocate(10, 10)
	if err != nil {
		t.Fatalf("allocate 10x10: %v", err)
	}
	if got := s.Bounds(); got != image.Rect(0, 0, 10, 10) {
		t.Fatalf("unexpected bounds %v", got)
	}
}

func TestCompositeFromNegativeOffsetLandsEdgeColumn(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 4))
	src.SetRGBA(7, 0, color.RGBA{R: 10, A: 255})

	s, err := RGBAAllocator{}.Allocate(1, 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	s.CompositeFrom(src, src.Bounds(), src.Bounds().Add(image.Pt(-7, 0)), Identity())

	if got := s.AlphaAt(0, 0); got != 255 {
		t.Fatalf("expected edge pixel alpha 255, got %d", got)
	}
}

func TestCompositeFromScalesIntoDestination(t *testing.T) {
	src := solid(4, 4, color.RGBA{G: 200, A: 255})

	s, err := RGBAAllocator{Interpolator: xdraw.NearestNeighbor}.Allocate(8, 8)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	s.CompositeFrom(src, src.Bounds(), image.Rect(0, 0, 8, 2), Identity())

	if s.AlphaAt(7, 1) != 255 {
		t.Fatal("expected scaled pixel at (7,1)")
	}
	if s.AlphaAt(0, 2) != 0 {
		t.Fatal("expected nothing drawn below the destination rect")
	}
}

func TestCompositeFromHorizontalFlip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})

	s, err := RGBAAllocator{Interpolator: xdraw.NearestNeighbor}.Allocate(4, 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	m := Identity().Translate(4, 0).Scale(-1, 1)
	s.CompositeFrom(src, src.Bounds(), src.Bounds(), m)

	if got := s.Image().RGBAAt(3, 0); got.R != 255 || got.A != 255 {
		t.Fatalf("expected red pixel mirrored to x=3, got %+v", got)
	}
	if s.AlphaAt(0, 0) != 0 {
		t.Fatal("expected x=0 to be empty after flip")
	}
}

func TestClearResetsRegion(t *testing.T) {
	s, err := RGBAAllocator{}.Allocate(2, 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	src := solid(2, 2, color.RGBA{B: 90, A: 255})
	s.CompositeFrom(src, src.Bounds(), src.Bounds(), Identity())
	s.Clear(image.Rect(0, 0, 1, 2))

	if s.AlphaAt(0, 1) != 0 || s.AlphaAt(1, 1) != 255 {
		t.Fatal("expected only the left column to be cleared")
	}
}

func TestAffineRotateSnapsRightAngles(t *testing.T) {
	m := Identity().Rotate(math.Pi / 2)
	if m.A != 0 || m.B != 1 || m.C != -1 || m.D != 0 {
		t.Fatalf("expected exact quarter turn, got %+v", m)
	}

	x, y := Compose([]DrawOp{Rotate(math.Pi / 2), Translate(0, -200)}).Apply(0, 0)
	if x != 200 || y != 0 {
		t.Fatalf("expected (200,0), got (%v,%v)", x, y)
	}
}

func TestParseInterpolator(t *testing.T) {
	if _, err := ParseInterpolator("catmullrom"); err != nil {
		t.Fatalf("expected catmullrom to parse: %v", err)
	}
	if _, err := ParseInterpolator("lanczos9"); err == nil {
		t.Fatal("expected unsupported interpolator error")
	}
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
