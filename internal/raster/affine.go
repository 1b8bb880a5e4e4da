package raster

import (
	"math"

	"golang.org/x/image/math/f64"
)

// Affine is a 2D affine matrix using the canvas convention:
//
//	x' = A*x + C*y + E
//	y' = B*x + D*y + F
type Affine struct {
	A, B, C, D, E, F float64
}

func Identity() Affine {
	return Affine{A: 1, D: 1}
}

// Multiply returns m*n, so n is applied to a point before m.
func (m Affine) Multiply(n Affine) Affine {
	return Affine{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

func (m Affine) Translate(tx, ty float64) Affine {
	return m.Multiply(Affine{A: 1, D: 1, E: tx, F: ty})
}

func (m Affine) Scale(sx, sy float64) Affine {
	return m.Multiply(Affine{A: sx, D: sy})
}

func (m Affine) Rotate(theta float64) Affine {
	sin, cos := snap(math.Sin(theta)), snap(math.Cos(theta))
	return m.Multiply(Affine{A: cos, B: sin, C: -sin, D: cos})
}

func (m Affine) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.C*y + m.E, m.B*x + m.D*y + m.F
}

func (m Affine) IsIdentity() bool {
	return m == Identity()
}

// integerOffset reports whether m is a pure translation by whole pixels.
func (m Affine) integerOffset() (int, int, bool) {
	if m.A != 1 || m.B != 0 || m.C != 0 || m.D != 1 {
		return 0, 0, false
	}
	if m.E != math.Trunc(m.E) || m.F != math.Trunc(m.F) {
		return 0, 0, false
	}
	return int(m.E), int(m.F), true
}

// axisAligned reports whether m only scales (positively) and translates.
func (m Affine) axisAligned() bool {
	return m.B == 0 && m.C == 0 && m.A > 0 && m.D > 0
}

func (m Affine) aff3() f64.Aff3 {
	return f64.Aff3{m.A, m.C, m.E, m.B, m.D, m.F}
}

// snap removes floating point residue from sin/cos of right angles.
func snap(v float64) float64 {
	const eps = 1e-12
	if r := math.Round(v); math.Abs(v-r) < eps {
		return r
	}
	return v
}

type OpKind int

const (
	OpTranslate OpKind = iota + 1
	OpScale
	OpRotate
)

func (k OpKind) String() string {
	switch k {
	case OpTranslate:
		return "translate"
	case OpScale:
		return "scale"
	case OpRotate:
		return "rotate"
	default:
		return "unknown"
	}
}

// DrawOp is one affine step applied to a surface before drawing.
// X/Y carry translate offsets or scale factors; Angle is in radians.
type DrawOp struct {
	Kind  OpKind
	X, Y  float64
	Angle float64
}

func Translate(x, y float64) DrawOp { return DrawOp{Kind: OpTranslate, X: x, Y: y} }
func Scale(x, y float64) DrawOp     { return DrawOp{Kind: OpScale, X: x, Y: y} }
func Rotate(angle float64) DrawOp   { return DrawOp{Kind: OpRotate, Angle: angle} }

// Compose folds ops left to right the way successive canvas calls do.
func Compose(ops []DrawOp) Affine {
	m := Identity()
	for _, op := range ops {
		switch op.Kind {
		case OpTranslate:
			m = m.Translate(op.X, op.Y)
		case OpScale:
			m = m.Scale(op.X, op.Y)
		case OpRotate:
			m = m.Rotate(op.Angle)
		}
	}
	return m
}
