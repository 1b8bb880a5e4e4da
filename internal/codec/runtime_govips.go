//go:build govips && cgo

package codec

import (
	"context"
	"fmt"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelfix/internal/orientation"
	"github.com/dunamismax/pixelfix/internal/raster"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func NewDecoder(maxPixels int) Decoder {
	return vipsDecoder{maxPixels: maxPixels}
}

func NewResolver() orientation.Resolver {
	return vipsResolver{}
}

// vipsDecoder loads through libvips without autorotation and hands the
// pixels over as a Go image.
type vipsDecoder struct {
	maxPixels int
}

func (d vipsDecoder) Decode(ctx context.Context, src Source) (*raster.DecodedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := FormatForMime(src.MimeType); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMimeType, src.MimeType)
	}

	img, err := vips.NewImageFromBuffer(src.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: vips load: %v", ErrDecodeFailure, err)
	}
	defer img.Close()

	if d.maxPixels > 0 && int64(img.Width())*int64(img.Height()) > int64(d.maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecodeFailure, img.Width(), img.Height(), d.maxPixels)
	}

	out, err := img.ToImage(vips.NewDefaultExportParams())
	if err != nil {
		return nil, fmt.Errorf("%w: vips export: %v", ErrDecodeFailure, err)
	}
	return raster.NewDecodedImage(out), nil
}

type vipsResolver struct{}

func (vipsResolver) Resolve(ctx context.Context, data []byte) (orientation.Code, error) {
	if err := ctx.Err(); err != nil {
		return orientation.Unknown, err
	}

	img, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return orientation.Unknown, fmt.Errorf("vips load: %w", err)
	}
	defer img.Close()

	code := orientation.Code(img.Orientation())
	if !code.Valid() {
		return orientation.Unknown, fmt.Errorf("%w: %d", orientation.ErrInvalidCode, code)
	}
	return code, nil
}
