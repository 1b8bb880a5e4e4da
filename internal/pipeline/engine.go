package pipeline

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"

	"github.com/dunamismax/pixelfix/internal/codec"
	"github.com/dunamismax/pixelfix/internal/domain"
	"github.com/dunamismax/pixelfix/internal/normalize"
	"github.com/dunamismax/pixelfix/internal/orientation"
	"github.com/dunamismax/pixelfix/internal/raster"
	"github.com/dunamismax/pixelfix/internal/transform"
	xdraw "golang.org/x/image/draw"
)

// Options is the normalization configuration surface.
type Options struct {
	MaxWidth         int
	MaxHeight        int
	TileSize         int
	OutputType       string
	PixelRatio       float64
	Interpolator     xdraw.Interpolator
	MaxSurfacePixels int
	Concurrency      int
	Quality          int
}

func (o Options) withDefaults() Options {
	if o.MaxWidth <= 0 {
		o.MaxWidth = 2048
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = 2048
	}
	if o.TileSize <= 0 {
		o.TileSize = normalize.DefaultTileSize
	}
	if o.PixelRatio <= 0 {
		o.PixelRatio = 1
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

// Engine runs decode, orientation and normalization for one source at a time
// and derives variants from the result. It holds no per-image state.
type Engine struct {
	decoder  codec.Decoder
	resolver orientation.Resolver
	alloc    raster.Allocator
	opts     Options
	logger   *log.Logger
}

func NewEngine(opts Options, decoder codec.Decoder, resolver orientation.Resolver, logger *log.Logger) *Engine {
	opts = opts.withDefaults()
	if decoder == nil {
		decoder = codec.NewDecoder(opts.MaxSurfacePixels)
	}
	if resolver == nil {
		resolver = codec.NewResolver()
	}
	return &Engine{
		decoder:  decoder,
		resolver: resolver,
		alloc: raster.RGBAAllocator{
			Interpolator: opts.Interpolator,
			MaxPixels:    opts.MaxSurfacePixels,
		},
		opts:   opts,
		logger: logger,
	}
}

// Normalized is the once-per-source normalization artifact.
type Normalized struct {
	Image       *raster.NormalizedImage
	Orientation orientation.Code
	Report      normalize.Report
}

func (e *Engine) normalize(ctx context.Context, src codec.Source) (*Normalized, error) {
	decoded, err := e.decoder.Decode(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("decode stage: %w", err)
	}

	code := e.resolveOrientation(ctx, src)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decoded.DisplayWidth, decoded.DisplayHeight = transform.Fit(
		decoded.NaturalWidth, decoded.NaturalHeight, e.opts.MaxWidth, e.opts.MaxHeight,
	)

	n := &normalize.Normalizer{
		Alloc:      e.alloc,
		TileSize:   e.opts.TileSize,
		PixelRatio: e.opts.PixelRatio,
		Logger:     e.logger,
	}
	img, report, err := n.Normalize(ctx, decoded, code)
	if err != nil {
		return nil, fmt.Errorf("normalize stage: %w", err)
	}
	return &Normalized{Image: img, Orientation: code, Report: report}, nil
}

// resolveOrientation never fails the pipeline; any resolver error degrades
// to the identity orientation.
func (e *Engine) resolveOrientation(ctx context.Context, src codec.Source) orientation.Code {
	code, err := e.resolver.Resolve(ctx, src.Data)
	if err != nil {
		if e.logger != nil {
			e.logger.Printf("orientation unresolved mime=%s err=%v", src.MimeType, err)
		}
		return orientation.Normal
	}
	return code.OrDefault()
}

// Session is the caller-owned context for one source image. The source is
// normalized at most once; every variant reads the same immutable result.
type Session struct {
	engine *Engine
	source codec.Source

	once       sync.Once
	normalized *Normalized
	err        error
}

func (e *Engine) NewSession(src codec.Source) *Session {
	return &Session{engine: e, source: src}
}

// Normalized returns the normalization result, computing it on first use.
// A failure is terminal for the session.
func (s *Session) Normalized(ctx context.Context) (*Normalized, error) {
	s.once.Do(func() {
		s.normalized, s.err = s.engine.normalize(ctx, s.source)
	})
	return s.normalized, s.err
}

// Variant is one rendered and encoded transform result.
type Variant struct {
	Step   domain.TransformStep
	Image  *image.RGBA
	Data   []byte
	Format string
	Width  int
	Height int
	Err    error
}

// Render derives and encodes the variant step describes. Errors are
// returned in the Variant so siblings are unaffected.
func (s *Session) Render(ctx context.Context, outputType string, step domain.TransformStep) Variant {
	v := Variant{Step: step}

	norm, err := s.Normalized(ctx)
	if err != nil {
		v.Err = err
		return v
	}
	if err := ctx.Err(); err != nil {
		v.Err = err
		return v
	}

	if step.Quality < 0 || step.Quality > 100 {
		v.Err = fmt.Errorf("%w: step=%s quality %d outside 0..100", transform.ErrInvalidTransformRequest, step.ID, step.Quality)
		return v
	}
	format, err := codec.OutputFormat(step.Type, outputType, s.source.MimeType)
	if err != nil {
		v.Err = fmt.Errorf("step=%s: %w", step.ID, err)
		return v
	}

	img, err := transform.Apply(s.engine.alloc, norm.Image, step.Request())
	if err != nil {
		v.Err = fmt.Errorf("transform step=%s action=%s: %w", step.ID, strings.ToLower(step.Action), err)
		return v
	}

	data, err := codec.Encode(img, format, s.quality(step.Quality))
	if err != nil {
		v.Err = fmt.Errorf("encode step=%s: %w", step.ID, err)
		return v
	}

	v.Image = img
	v.Data = data
	v.Format = format
	v.Width = img.Bounds().Dx()
	v.Height = img.Bounds().Dy()
	return v
}

// EncodeNormalized encodes the normalized buffer itself.
func (s *Session) EncodeNormalized(ctx context.Context, outputType string) (Variant, error) {
	norm, err := s.Normalized(ctx)
	if err != nil {
		return Variant{}, err
	}
	format, err := codec.OutputFormat("", outputType, s.source.MimeType)
	if err != nil {
		return Variant{}, err
	}
	data, err := codec.Encode(norm.Image.Buffer, format, s.quality(0))
	if err != nil {
		return Variant{}, fmt.Errorf("encode normalized: %w", err)
	}
	return Variant{
		Step:   domain.TransformStep{ID: NormalizedStepID, Action: ActionNormalize},
		Image:  norm.Image.Buffer,
		Data:   data,
		Format: format,
		Width:  norm.Image.Width,
		Height: norm.Image.Height,
	}, nil
}

func (s *Session) quality(stepQuality int) int {
	if stepQuality > 0 && stepQuality <= 100 {
		return stepQuality
	}
	return s.engine.opts.Quality
}
