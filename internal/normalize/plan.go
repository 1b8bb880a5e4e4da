package normalize

import (
	"math"

	"github.com/dunamismax/pixelfix/internal/orientation"
	"github.com/dunamismax/pixelfix/internal/raster"
)

// Plan describes how to draw a Width x Height image onto a canvas so that it
// appears upright.
type Plan struct {
	Orientation  orientation.Code
	Width        int
	Height       int
	CanvasWidth  int
	CanvasHeight int
	Ops          []raster.DrawOp
}

func (p Plan) Matrix() raster.Affine {
	return raster.Compose(p.Ops)
}

// PlanTransform returns the canvas size and the draw ops that undo code.
// Unknown codes are treated as identity.
func PlanTransform(code orientation.Code, width, height int) Plan {
	code = code.OrDefault()
	p := Plan{
		Orientation:  code,
		Width:        width,
		Height:       height,
		CanvasWidth:  width,
		CanvasHeight: height,
	}
	if code.Swaps() {
		p.CanvasWidth, p.CanvasHeight = height, width
	}

	w, h := float64(width), float64(height)
	switch code {
	case orientation.FlipH:
		p.Ops = []raster.DrawOp{raster.Translate(w, 0), raster.Scale(-1, 1)}
	case orientation.Rotate180:
		p.Ops = []raster.DrawOp{raster.Translate(w, h), raster.Rotate(math.Pi)}
	case orientation.FlipV:
		p.Ops = []raster.DrawOp{raster.Translate(0, h), raster.Scale(1, -1)}
	case orientation.Transpose:
		p.Ops = []raster.DrawOp{raster.Rotate(0.5 * math.Pi), raster.Scale(1, -1)}
	case orientation.RotateRight:
		p.Ops = []raster.DrawOp{raster.Rotate(0.5 * math.Pi), raster.Translate(0, -h)}
	case orientation.Transverse:
		p.Ops = []raster.DrawOp{raster.Rotate(0.5 * math.Pi), raster.Translate(w, -h), raster.Scale(-1, 1)}
	case orientation.RotateLeft:
		p.Ops = []raster.DrawOp{raster.Rotate(-0.5 * math.Pi), raster.Translate(-w, 0)}
	default:
		p.Ops = []raster.DrawOp{}
	}
	return p
}
