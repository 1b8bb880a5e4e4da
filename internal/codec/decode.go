package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelfix/internal/raster"
	"github.com/gen2brain/avif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type Decoder interface {
	Decode(ctx context.Context, src Source) (*raster.DecodedImage, error)
}

// ImagingDecoder decodes with the registered Go image codecs. EXIF
// orientation is left alone; the normalizer applies it.
type ImagingDecoder struct {
	MaxPixels int
}

func (d ImagingDecoder) Decode(ctx context.Context, src Source) (*raster.DecodedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, ok := FormatForMime(src.MimeType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMimeType, src.MimeType)
	}
	if len(src.Data) == 0 {
		return nil, fmt.Errorf("%w: empty source", ErrDecodeFailure)
	}

	cfg, err := decodeConfig(format, src.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s header: %v", ErrDecodeFailure, format, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrDecodeFailure, cfg.Width, cfg.Height)
	}
	if d.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(d.MaxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecodeFailure, cfg.Width, cfg.Height, d.MaxPixels)
	}

	var img image.Image
	if format == FormatAVIF {
		img, err = avif.Decode(bytes.NewReader(src.Data))
	} else {
		img, err = imaging.Decode(bytes.NewReader(src.Data), imaging.AutoOrientation(false))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrDecodeFailure, format, err)
	}

	return raster.NewDecodedImage(img), nil
}

func decodeConfig(format string, data []byte) (image.Config, error) {
	if format == FormatAVIF {
		return avif.DecodeConfig(bytes.NewReader(data))
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	return cfg, err
}
