package normalize

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/dunamismax/pixelfix/internal/orientation"
	"github.com/dunamismax/pixelfix/internal/raster"
	xdraw "golang.org/x/image/draw"
)

var nearest = raster.RGBAAllocator{Interpolator: xdraw.NearestNeighbor}

func TestDetectSubsamplingSkipsSmallImages(t *testing.T) {
	alloc := &countingAllocator{next: nearest}
	img := &raster.DecodedImage{
		Raster:        image.NewRGBA(image.Rect(0, 0, 1, 1)),
		NaturalWidth:  1024,
		NaturalHeight: 1024,
	}

	subsampled, err := DetectSubsampling(alloc, img)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if subsampled {
		t.Fatal("expected images at the megapixel threshold to never be subsampled")
	}
	if alloc.calls != 0 {
		t.Fatalf("expected no probe surface, got %d allocations", alloc.calls)
	}
}

func TestDetectSubsamplingFindsHalfSizeRaster(t *testing.T) {
	full := &raster.DecodedImage{
		Raster:        opaque(2048, 1024, 1024),
		NaturalWidth:  2048,
		NaturalHeight: 1024,
	}
	subsampled, err := DetectSubsampling(nearest, full)
	if err != nil {
		t.Fatalf("detect full raster: %v", err)
	}
	if subsampled {
		t.Fatal("expected full-resolution raster to cover the right edge")
	}

	half := &raster.DecodedImage{
		Raster:        opaque(1024, 512, 512),
		NaturalWidth:  2048,
		NaturalHeight: 1024,
	}
	subsampled, err = DetectSubsampling(nearest, half)
	if err != nil {
		t.Fatalf("detect half raster: %v", err)
	}
	if !subsampled {
		t.Fatal("expected half-size raster to be flagged as subsampled")
	}
}

func TestDetectVerticalSquashConvergesOnContentEdge(t *testing.T) {
	for _, k := range []int{1, 30, 50, 99} {
		img := raster.NewDecodedImage(opaque(4, 100, k))
		ratio, err := DetectVerticalSquash(nearest, img, 4, 100)
		if err != nil {
			t.Fatalf("detect k=%d: %v", k, err)
		}
		want := float64(k) / 100
		if diff := ratio - want; diff > 0.01 || diff < -0.01 {
			t.Fatalf("k=%d: expected ratio %.2f, got %.4f", k, want, ratio)
		}
	}
}

func TestDetectVerticalSquashTreatsEmptyAsUnsquashed(t *testing.T) {
	img := raster.NewDecodedImage(image.NewRGBA(image.Rect(0, 0, 4, 64)))
	ratio, err := DetectVerticalSquash(nearest, img, 4, 64)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if ratio != 1 {
		t.Fatalf("expected ratio 1 for transparent column, got %v", ratio)
	}

	full := raster.NewDecodedImage(opaque(4, 64, 64))
	ratio, err = DetectVerticalSquash(nearest, full, 4, 64)
	if err != nil {
		t.Fatalf("detect opaque: %v", err)
	}
	if ratio != 1 {
		t.Fatalf("expected ratio 1 for opaque column, got %v", ratio)
	}
}

func TestPlanTransformIdentity(t *testing.T) {
	p := PlanTransform(orientation.Normal, 100, 200)
	if len(p.Ops) != 0 {
		t.Fatalf("expected no ops, got %v", p.Ops)
	}
	if p.CanvasWidth != 100 || p.CanvasHeight != 200 {
		t.Fatalf("expected 100x200 canvas, got %dx%d", p.CanvasWidth, p.CanvasHeight)
	}
	if !p.Matrix().IsIdentity() {
		t.Fatalf("expected identity matrix, got %+v", p.Matrix())
	}

	unknown := PlanTransform(orientation.Unknown, 100, 200)
	if unknown.Orientation != orientation.Normal || len(unknown.Ops) != 0 {
		t.Fatalf("expected unknown orientation to plan as identity, got %+v", unknown)
	}
}

func TestPlanTransformRotateRightSwapsCanvas(t *testing.T) {
	p := PlanTransform(orientation.RotateRight, 100, 200)
	if p.CanvasWidth != 200 || p.CanvasHeight != 100 {
		t.Fatalf("expected 200x100 canvas, got %dx%d", p.CanvasWidth, p.CanvasHeight)
	}
	if len(p.Ops) != 2 || p.Ops[0].Kind != raster.OpRotate || p.Ops[1].Kind != raster.OpTranslate {
		t.Fatalf("expected rotate then translate, got %v", p.Ops)
	}
	if p.Ops[1].X != 0 || p.Ops[1].Y != -200 {
		t.Fatalf("expected translate(0,-200), got (%v,%v)", p.Ops[1].X, p.Ops[1].Y)
	}
}

func TestPlanTransformMapsSourceOntoCanvas(t *testing.T) {
	const w, h = 100, 200
	for code := orientation.Normal; code <= orientation.RotateLeft; code++ {
		p := PlanTransform(code, w, h)
		m := p.Matrix()
		for _, pt := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
			x, y := m.Apply(pt[0], pt[1])
			if x < 0 || y < 0 || x > float64(p.CanvasWidth) || y > float64(p.CanvasHeight) {
				t.Fatalf("orientation %d maps corner %v to (%v,%v) outside %dx%d",
					code, pt, x, y, p.CanvasWidth, p.CanvasHeight)
			}
		}
	}
}

func TestComposeSingleTileIsBitIdentical(t *testing.T) {
	src := gradient(300, 200)
	img := raster.NewDecodedImage(src)

	comp, err := Compositor{Alloc: nearest}.Compose(context.Background(), img, PlanTransform(orientation.Normal, 300, 200), 1, 300, 200)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if comp.Tiles != 1 {
		t.Fatalf("expected a single tile, got %d", comp.Tiles)
	}

	out := comp.Surface.Image()
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			if out.RGBAAt(x, y) != src.RGBAAt(x, y) {
				t.Fatalf("pixel (%d,%d) differs: got %+v want %+v", x, y, out.RGBAAt(x, y), src.RGBAAt(x, y))
			}
		}
	}
}

func TestComposeStitchesMultipleTiles(t *testing.T) {
	src := gradient(250, 90)
	img := raster.NewDecodedImage(src)

	comp, err := Compositor{Alloc: nearest, TileSize: 64}.Compose(context.Background(), img, PlanTransform(orientation.Normal, 250, 90), 1, 250, 90)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if comp.Tiles != 4*2 {
		t.Fatalf("expected 8 tiles, got %d", comp.Tiles)
	}

	out := comp.Surface.Image()
	for _, pt := range []image.Point{{0, 0}, {63, 63}, {64, 64}, {128, 10}, {249, 89}} {
		if out.RGBAAt(pt.X, pt.Y) != src.RGBAAt(pt.X, pt.Y) {
			t.Fatalf("pixel %v differs across tile seam", pt)
		}
	}
}

func TestComposeRotatesRight(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	src.SetRGBA(0, 0, red)
	src.SetRGBA(2, 1, blue)

	comp, err := Compositor{Alloc: nearest, TileSize: 4}.Compose(
		context.Background(), raster.NewDecodedImage(src), PlanTransform(orientation.RotateRight, 3, 2), 1, 3, 2,
	)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	out := comp.Surface.Image()
	if out.Bounds() != image.Rect(0, 0, 2, 3) {
		t.Fatalf("expected 2x3 canvas, got %v", out.Bounds())
	}
	if out.RGBAAt(1, 0) != red {
		t.Fatalf("expected top-left source pixel at top-right, got %+v", out.RGBAAt(1, 0))
	}
	if out.RGBAAt(0, 2) != blue {
		t.Fatalf("expected bottom-right source pixel at bottom-left, got %+v", out.RGBAAt(0, 2))
	}
}

func TestComposeMapsEveryOrientation(t *testing.T) {
	const w, h = 3, 2
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(40 + 60*x), G: uint8(50 + 100*y), B: uint8(1 + x + w*y), A: 255})
		}
	}

	// Destination of source pixel (x, y) on the upright canvas.
	dest := map[orientation.Code]func(x, y int) (int, int){
		orientation.Normal:      func(x, y int) (int, int) { return x, y },
		orientation.FlipH:       func(x, y int) (int, int) { return w - 1 - x, y },
		orientation.Rotate180:   func(x, y int) (int, int) { return w - 1 - x, h - 1 - y },
		orientation.FlipV:       func(x, y int) (int, int) { return x, h - 1 - y },
		orientation.Transpose:   func(x, y int) (int, int) { return y, x },
		orientation.RotateRight: func(x, y int) (int, int) { return h - 1 - y, x },
		orientation.Transverse:  func(x, y int) (int, int) { return h - 1 - y, w - 1 - x },
		orientation.RotateLeft:  func(x, y int) (int, int) { return y, w - 1 - x },
	}

	for code := orientation.Normal; code <= orientation.RotateLeft; code++ {
		comp, err := Compositor{Alloc: nearest, TileSize: 4}.Compose(
			context.Background(), raster.NewDecodedImage(src), PlanTransform(code, w, h), 1, w, h,
		)
		if err != nil {
			t.Fatalf("orientation %d: compose: %v", code, err)
		}

		out := comp.Surface.Image()
		wantBounds := image.Rect(0, 0, w, h)
		if code.Swaps() {
			wantBounds = image.Rect(0, 0, h, w)
		}
		if out.Bounds() != wantBounds {
			t.Fatalf("orientation %d: expected canvas %v, got %v", code, wantBounds, out.Bounds())
		}

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dx, dy := dest[code](x, y)
				if got, want := out.RGBAAt(dx, dy), src.RGBAAt(x, y); got != want {
					t.Fatalf("orientation %d: source (%d,%d) expected at (%d,%d) as %+v, got %+v",
						code, x, y, dx, dy, want, got)
				}
			}
		}
	}
}

func TestComposeReportsSurfaceExhaustion(t *testing.T) {
	img := raster.NewDecodedImage(gradient(10, 10))
	alloc := raster.RGBAAllocator{MaxPixels: 50}

	_, err := Compositor{Alloc: alloc, TileSize: 4}.Compose(context.Background(), img, PlanTransform(orientation.Normal, 10, 10), 1, 10, 10)
	if !errors.Is(err, ErrCompositeFailure) {
		t.Fatalf("expected ErrCompositeFailure, got %v", err)
	}
}

func TestComposeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	img := raster.NewDecodedImage(gradient(10, 10))
	if _, err := (Compositor{Alloc: nearest}).Compose(ctx, img, PlanTransform(orientation.Normal, 10, 10), 1, 10, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNormalizerCorrectsSubsampledDecoder(t *testing.T) {
	img := &raster.DecodedImage{
		Raster:        opaque(1024, 512, 512),
		NaturalWidth:  2048,
		NaturalHeight: 1024,
		DisplayWidth:  2048,
		DisplayHeight: 1024,
	}

	n := &Normalizer{Alloc: nearest, PixelRatio: 2}
	out, report, err := n.Normalize(context.Background(), img, orientation.Normal)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !report.Subsampled {
		t.Fatal("expected subsampling to be detected")
	}
	if out.Width != 2048 || out.Height != 1024 || out.PixelRatio != 2 {
		t.Fatalf("unexpected normalized image %dx%d ratio=%v", out.Width, out.Height, out.PixelRatio)
	}
	if out.Buffer.RGBAAt(2047, 1023).A != 255 {
		t.Fatal("expected corrected raster to reach the bottom-right corner")
	}
}

func TestNormalizerUndoesVerticalSquash(t *testing.T) {
	img := raster.NewDecodedImage(opaque(10, 100, 50))

	n := &Normalizer{Alloc: nearest}
	out, report, err := n.Normalize(context.Background(), img, orientation.Normal)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if report.SquashRatio != 0.5 {
		t.Fatalf("expected squash ratio 0.5, got %v", report.SquashRatio)
	}
	if out.Buffer.RGBAAt(5, 99).A != 255 {
		t.Fatal("expected squashed content to be stretched to the full height")
	}
}

func TestNormalizerRejectsMissingImage(t *testing.T) {
	n := &Normalizer{Alloc: nearest}
	if _, _, err := n.Normalize(context.Background(), nil, orientation.Normal); !errors.Is(err, ErrCompositeFailure) {
		t.Fatalf("expected ErrCompositeFailure, got %v", err)
	}
}

func BenchmarkComposeMegapixel(b *testing.B) {
	img := raster.NewDecodedImage(gradient(2048, 1536))
	plan := PlanTransform(orientation.RotateRight, 2048, 1536)
	c := Compositor{Alloc: raster.RGBAAllocator{}}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Compose(context.Background(), img, plan, 1, 2048, 1536); err != nil {
			b.Fatalf("compose: %v", err)
		}
	}
}

type countingAllocator struct {
	next  raster.Allocator
	calls int
}

func (a *countingAllocator) Allocate(w, h int) (raster.Surface, error) {
	a.calls++
	return a.next.Allocate(w, h)
}

// opaque returns a w x h raster whose first rows are opaque and the rest transparent.
func opaque(w, h, rows int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < rows && y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 120, G: 80, B: 40, A: 255})
		}
	}
	return img
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}
	return img
}
