package transform

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/dunamismax/pixelfix/internal/raster"
	xdraw "golang.org/x/image/draw"
)

var alloc = raster.RGBAAllocator{Interpolator: xdraw.NearestNeighbor}

func TestFitWidthOnly(t *testing.T) {
	w, h := Fit(400, 200, 100, 0)
	if w != 100 || h != 50 {
		t.Fatalf("expected 100x50, got %dx%d", w, h)
	}
}

func TestFitHeightOnly(t *testing.T) {
	w, h := Fit(400, 200, 0, 100)
	if w != 200 || h != 100 {
		t.Fatalf("expected 200x100, got %dx%d", w, h)
	}
}

func TestFitBoundingBox(t *testing.T) {
	w, h := Fit(400, 200, 100, 100)
	if w != 100 || h != 50 {
		t.Fatalf("landscape: expected 100x50, got %dx%d", w, h)
	}

	w, h = Fit(300, 600, 100, 200)
	if w != 100 || h != 200 {
		t.Fatalf("portrait: expected 100x200, got %dx%d", w, h)
	}

	w, h = Fit(80, 60, 100, 100)
	if w != 80 || h != 60 {
		t.Fatalf("fits already: expected 80x60, got %dx%d", w, h)
	}

	// Landscape inside the box width is not scaled even when taller than the box.
	w, h = Fit(400, 300, 500, 100)
	if w != 400 || h != 300 {
		t.Fatalf("landscape within width: expected 400x300, got %dx%d", w, h)
	}
}

func TestFitRoundsToNearest(t *testing.T) {
	w, h := Fit(333, 100, 100, 0)
	if w != 100 || h != 30 {
		t.Fatalf("expected 100x30, got %dx%d", w, h)
	}
}

func TestResizeProducesFittedBuffer(t *testing.T) {
	src := normalized(400, 200)

	out, err := Resize(alloc, src, 100, 0)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if out.Bounds() != image.Rect(0, 0, 100, 50) {
		t.Fatalf("expected 100x50, got %v", out.Bounds())
	}
	if out.RGBAAt(99, 49).A != 255 {
		t.Fatal("expected resized buffer to be fully covered")
	}
}

func TestResizeRequiresAConstraint(t *testing.T) {
	if _, err := Resize(alloc, normalized(10, 10), 0, 0); !errors.Is(err, ErrInvalidTransformRequest) {
		t.Fatalf("expected ErrInvalidTransformRequest, got %v", err)
	}
}

func TestSquareRegion(t *testing.T) {
	if got := SquareRegion(300, 500); got != image.Rect(0, 100, 300, 400) {
		t.Fatalf("portrait: expected sx=0 sy=100 side=300, got %v", got)
	}
	if got := SquareRegion(500, 300); got != image.Rect(100, 0, 400, 300) {
		t.Fatalf("landscape: expected sx=100 sy=0 side=300, got %v", got)
	}
	if got := SquareRegion(64, 64); got != image.Rect(0, 0, 64, 64) {
		t.Fatalf("square: expected whole image, got %v", got)
	}
}

func TestCropScalesCenteredSquare(t *testing.T) {
	src := normalized(300, 500)
	// Paint the crop region's top rows so they are distinguishable from the margin.
	for y := 100; y < 102; y++ {
		for x := 0; x < 300; x++ {
			src.Buffer.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	out, err := Crop(alloc, src, 150)
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if out.Bounds() != image.Rect(0, 0, 150, 150) {
		t.Fatalf("expected 150x150, got %v", out.Bounds())
	}
	if got := out.RGBAAt(75, 0); got.R != 255 {
		t.Fatalf("expected first row of the region at the top, got %+v", got)
	}
}

func TestCropRejectsNonPositiveSize(t *testing.T) {
	if _, err := Crop(alloc, normalized(10, 10), 0); !errors.Is(err, ErrInvalidTransformRequest) {
		t.Fatalf("expected ErrInvalidTransformRequest, got %v", err)
	}
}

func TestApplyDispatchesByAction(t *testing.T) {
	src := normalized(400, 200)

	out, err := Apply(alloc, src, Request{Action: "Resize", Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("apply resize: %v", err)
	}
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 50 {
		t.Fatalf("expected 100x50, got %v", out.Bounds())
	}

	out, err = Apply(alloc, src, Request{Action: "crop", Size: 64})
	if err != nil {
		t.Fatalf("apply crop: %v", err)
	}
	if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 64 {
		t.Fatalf("expected 64x64, got %v", out.Bounds())
	}

	if _, err := Apply(alloc, src, Request{Action: "blur"}); !errors.Is(err, ErrInvalidTransformRequest) {
		t.Fatalf("expected ErrInvalidTransformRequest for unknown action, got %v", err)
	}
	if _, err := Apply(alloc, src, Request{Action: "resize", Width: -4}); !errors.Is(err, ErrInvalidTransformRequest) {
		t.Fatalf("expected ErrInvalidTransformRequest for negative width, got %v", err)
	}
}

func normalized(w, h int) *raster.NormalizedImage {
	buf := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf.SetRGBA(x, y, color.RGBA{G: 90, B: 200, A: 255})
		}
	}
	return &raster.NormalizedImage{Buffer: buf, Width: w, Height: h, PixelRatio: 1}
}
