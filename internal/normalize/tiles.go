package normalize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/dunamismax/pixelfix/internal/raster"
)

const DefaultTileSize = 1024

var ErrCompositeFailure = errors.New("composite failure")

// Compositor redraws a decoded image through fixed-size scratch tiles so that
// no single draw call asks the decoder for more than TileSize x TileSize pixels.
type Compositor struct {
	Alloc    raster.Allocator
	TileSize int
}

// Composition is the destination buffer plus the number of tiles drawn into it.
type Composition struct {
	Surface raster.Surface
	Tiles   int
}

// Compose draws src onto a canvas sized by plan, scaling the naturalWidth x
// naturalHeight source to plan.Width x plan.Height and stretching rows by
// 1/squashRatio to undo vertical squash.
func (c Compositor) Compose(ctx context.Context, src *raster.DecodedImage, plan Plan, squashRatio float64, naturalWidth, naturalHeight int) (*Composition, error) {
	if naturalWidth <= 0 || naturalHeight <= 0 {
		return nil, fmt.Errorf("%w: natural size %dx%d", ErrCompositeFailure, naturalWidth, naturalHeight)
	}
	if squashRatio <= 0 || squashRatio > 1 {
		squashRatio = 1
	}

	d := c.TileSize
	if d <= 0 {
		d = DefaultTileSize
	}

	dst, err := c.Alloc.Allocate(plan.CanvasWidth, plan.CanvasHeight)
	if err != nil {
		return nil, fmt.Errorf("%w: destination: %v", ErrCompositeFailure, err)
	}
	tile, err := c.Alloc.Allocate(d, d)
	if err != nil {
		return nil, fmt.Errorf("%w: tile: %v", ErrCompositeFailure, err)
	}

	m := plan.Matrix()
	dw := int(math.Ceil(float64(d) * float64(plan.Width) / float64(naturalWidth)))
	dh := int(math.Ceil(float64(d) * float64(plan.Height) / float64(naturalHeight) / squashRatio))
	tileRect := image.Rect(0, 0, d, d)

	tiles := 0
	for sy, dy := 0, 0; sy < naturalHeight; sy, dy = sy+d, dy+dh {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for sx, dx := 0, 0; sx < naturalWidth; sx, dx = sx+d, dx+dw {
			tile.Clear(tileRect)
			src.DrawAt(tile, -sx, -sy)
			dst.CompositeFrom(tile.Image(), tileRect, image.Rect(dx, dy, dx+dw, dy+dh), m)
			tiles++
		}
	}

	return &Composition{Surface: dst, Tiles: tiles}, nil
}
