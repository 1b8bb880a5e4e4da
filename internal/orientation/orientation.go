// Package orientation resolves the EXIF orientation of raw image bytes.
package orientation

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
)

// Code is an EXIF orientation value.
type Code int

const (
	Unknown     Code = 0
	Normal      Code = 1
	FlipH       Code = 2
	Rotate180   Code = 3
	FlipV       Code = 4
	Transpose   Code = 5
	RotateRight Code = 6
	Transverse  Code = 7
	RotateLeft  Code = 8
)

var ErrInvalidCode = errors.New("invalid orientation code")

func (c Code) Valid() bool {
	return c >= Normal && c <= RotateLeft
}

// Swaps reports whether presenting the image upright exchanges width and height.
func (c Code) Swaps() bool {
	switch c {
	case Transpose, RotateRight, Transverse, RotateLeft:
		return true
	default:
		return false
	}
}

// OrDefault maps Unknown and out-of-range values to Normal.
func (c Code) OrDefault() Code {
	if !c.Valid() {
		return Normal
	}
	return c
}

func (c Code) String() string {
	switch c {
	case Normal:
		return "normal"
	case FlipH:
		return "flip_horizontal"
	case Rotate180:
		return "rotate_180"
	case FlipV:
		return "flip_vertical"
	case Transpose:
		return "transpose"
	case RotateRight:
		return "rotate_right"
	case Transverse:
		return "transverse"
	case RotateLeft:
		return "rotate_left"
	default:
		return "unknown"
	}
}

type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Code, error)
}

// ExifResolver reads the Orientation tag with goexif.
type ExifResolver struct{}

func (ExifResolver) Resolve(ctx context.Context, data []byte) (Code, error) {
	if err := ctx.Err(); err != nil {
		return Unknown, err
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return Unknown, fmt.Errorf("decode exif: %w", err)
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return Unknown, fmt.Errorf("read orientation tag: %w", err)
	}
	if tag.Count == 0 {
		return Unknown, fmt.Errorf("%w: empty tag", ErrInvalidCode)
	}
	v, err := tag.Int(0)
	if err != nil {
		return Unknown, fmt.Errorf("parse orientation tag: %w", err)
	}

	code := Code(v)
	if !code.Valid() {
		return Unknown, fmt.Errorf("%w: %d", ErrInvalidCode, v)
	}
	return code, nil
}

// Fixed always resolves to the same code.
type Fixed Code

func (f Fixed) Resolve(context.Context, []byte) (Code, error) {
	return Code(f), nil
}
