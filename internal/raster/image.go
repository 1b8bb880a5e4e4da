package raster

import "image"

// DecodedImage is a rasterized image as handed back by a decoder.
//
// Raster is what the decoder actually renders when the image is drawn at the
// origin. A well-behaved decoder renders NaturalWidth x NaturalHeight pixels;
// a defective one may render a subsampled or vertically squashed raster while
// still reporting the natural size. DisplayWidth/DisplayHeight are the bounded
// draw size the pipeline asked for.
type DecodedImage struct {
	Raster        image.Image
	NaturalWidth  int
	NaturalHeight int
	DisplayWidth  int
	DisplayHeight int
}

// NewDecodedImage describes a raster rendered at its own bounds.
func NewDecodedImage(img image.Image) *DecodedImage {
	b := img.Bounds()
	return &DecodedImage{
		Raster:        img,
		NaturalWidth:  b.Dx(),
		NaturalHeight: b.Dy(),
		DisplayWidth:  b.Dx(),
		DisplayHeight: b.Dy(),
	}
}

// DrawAt composites the decoder's raster onto s with its top-left corner at
// (x, y), at rendered size.
func (d *DecodedImage) DrawAt(s Surface, x, y int) {
	b := d.Raster.Bounds()
	s.CompositeFrom(d.Raster, b, b.Sub(b.Min).Add(image.Pt(x, y)), Identity())
}

// NormalizedImage is the upright, defect-corrected buffer that every
// downstream transform reads. It must not be mutated once published.
type NormalizedImage struct {
	Buffer     *image.RGBA
	Width      int
	Height     int
	PixelRatio float64
}

func (n *NormalizedImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, n.Width, n.Height)
}
