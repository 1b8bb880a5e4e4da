package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
)

const (
	DefaultJPEGQuality = 85
	DefaultWebPQuality = 80
	DefaultAVIFQuality = 60
	DefaultAVIFSpeed   = 6
)

// Encode writes img in format. Quality applies to lossy formats and falls
// back to the per-format default when outside 1..100.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatGIF:
		if err := imaging.Encode(&buf, img, imaging.GIF); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	case FormatBMP:
		if err := imaging.Encode(&buf, img, imaging.BMP); err != nil {
			return nil, fmt.Errorf("encode bmp: %w", err)
		}
	case FormatTIFF:
		if err := imaging.Encode(&buf, img, imaging.TIFF); err != nil {
			return nil, fmt.Errorf("encode tiff: %w", err)
		}
	case FormatWebP:
		if quality <= 0 || quality > 100 {
			quality = DefaultWebPQuality
		}
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case FormatAVIF:
		if quality <= 0 || quality > 100 {
			quality = DefaultAVIFQuality
		}
		opts := avif.Options{Quality: quality, QualityAlpha: quality, Speed: DefaultAVIFSpeed}
		if err := avif.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOutputType, format)
	}

	return buf.Bytes(), nil
}
