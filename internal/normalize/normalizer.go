// Package normalize turns a decoded image into an upright, full-resolution
// buffer, correcting for decoder subsampling and vertical squash on the way.
package normalize

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/dunamismax/pixelfix/internal/orientation"
	"github.com/dunamismax/pixelfix/internal/raster"
)

type Normalizer struct {
	Alloc      raster.Allocator
	TileSize   int
	PixelRatio float64
	Logger     *log.Logger
}

// Report carries what the normalization pass found and did.
type Report struct {
	Subsampled  bool
	SquashRatio float64
	Tiles       int
	Plan        Plan
}

func (n *Normalizer) Normalize(ctx context.Context, img *raster.DecodedImage, code orientation.Code) (*raster.NormalizedImage, Report, error) {
	var report Report
	if img == nil || img.Raster == nil {
		return nil, report, fmt.Errorf("%w: no decoded image", ErrCompositeFailure)
	}
	if img.DisplayWidth <= 0 || img.DisplayHeight <= 0 {
		return nil, report, fmt.Errorf("%w: display size %dx%d", ErrCompositeFailure, img.DisplayWidth, img.DisplayHeight)
	}

	ratio := n.PixelRatio
	if ratio <= 0 {
		ratio = 1
	}

	iw, ih := img.NaturalWidth, img.NaturalHeight
	subsampled, err := DetectSubsampling(n.Alloc, img)
	if err != nil {
		return nil, report, err
	}
	if subsampled {
		iw = max(1, int(math.Round(float64(iw)/ratio)))
		ih = max(1, int(math.Round(float64(ih)/ratio)))
	}
	report.Subsampled = subsampled

	plan := PlanTransform(code, img.DisplayWidth, img.DisplayHeight)
	report.Plan = plan

	squash, err := DetectVerticalSquash(n.Alloc, img, iw, ih)
	if err != nil {
		return nil, report, err
	}
	report.SquashRatio = squash

	comp, err := Compositor{Alloc: n.Alloc, TileSize: n.TileSize}.Compose(ctx, img, plan, squash, iw, ih)
	if err != nil {
		return nil, report, err
	}
	report.Tiles = comp.Tiles

	if n.Logger != nil {
		n.Logger.Printf(
			"normalized natural=%dx%d display=%dx%d canvas=%dx%d orientation=%s subsampled=%t squash=%.4f tiles=%d pixel_ratio=%.2f",
			img.NaturalWidth, img.NaturalHeight,
			img.DisplayWidth, img.DisplayHeight,
			plan.CanvasWidth, plan.CanvasHeight,
			plan.Orientation, subsampled, squash, comp.Tiles, ratio,
		)
	}

	return &raster.NormalizedImage{
		Buffer:     comp.Surface.Image(),
		Width:      plan.CanvasWidth,
		Height:     plan.CanvasHeight,
		PixelRatio: ratio,
	}, report, nil
}
