package pipeline

import (
	"fmt"

	"github.com/dunamismax/pixelfix/internal/codec"
	"github.com/dunamismax/pixelfix/internal/config"
	"github.com/dunamismax/pixelfix/internal/raster"
)

// OptionsFromConfig resolves the env-driven normalization settings.
func OptionsFromConfig(cfg config.NormalizeConfig) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, err
	}

	interp, err := raster.ParseInterpolator(cfg.Interpolator)
	if err != nil {
		return Options{}, err
	}

	if cfg.OutputType != "" {
		if _, ok := codec.ParseOutputType(cfg.OutputType); !ok {
			return Options{}, fmt.Errorf("%w: %s", codec.ErrUnsupportedOutputType, cfg.OutputType)
		}
	}

	return Options{
		MaxWidth:         cfg.MaxWidth,
		MaxHeight:        cfg.MaxHeight,
		TileSize:         cfg.TileSize,
		OutputType:       cfg.OutputType,
		PixelRatio:       cfg.PixelRatio(),
		Interpolator:     interp,
		MaxSurfacePixels: cfg.MaxSurfacePixels,
		Concurrency:      cfg.TransformConcurrency,
		Quality:          cfg.JPEGQuality,
	}, nil
}
