package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelfix/internal/codec"
	"github.com/dunamismax/pixelfix/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	SourceTypeLocalFile = domain.SourceTypeLocalFile

	NormalizedStepID = "normalized"
	ActionNormalize  = "normalize"
)

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	MimeType   string
	OutputType string
	Transforms []domain.TransformStep
}

// Output is one emitted image. PixelRatio is set on the normalized output
// only.
type Output struct {
	StepID     string  `json:"step_id"`
	Action     string  `json:"action"`
	Format     string  `json:"format,omitempty"`
	Path       string  `json:"path,omitempty"`
	Bytes      int     `json:"bytes"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	PixelRatio float64 `json:"pixel_ratio,omitempty"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
}

type Result struct {
	SourceBytes int
	Normalized  Output
	Outputs     []Output
	Report      Normalized
}

// Failed counts transform outputs that did not succeed.
func (r Result) Failed() int {
	n := 0
	for _, o := range r.Outputs {
		if !o.Success {
			n++
		}
	}
	return n
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, step domain.TransformStep, data []byte, format string, width, height int) (Output, error)
}

type Processor struct {
	fetcher Fetcher
	engine  *Engine
	emitter Emitter
	opts    Options
}

func NewProcessor(fetcher Fetcher, engine *Engine, emitter Emitter) *Processor {
	return &Processor{fetcher: fetcher, engine: engine, emitter: emitter, opts: engine.opts}
}

func NewLocalProcessor(outputDir string, opts Options, logger *log.Logger) *Processor {
	return NewProcessor(
		LocalFileFetcher{},
		NewEngine(opts, nil, nil, logger),
		LocalFileEmitter{OutputDir: outputDir},
	)
}

// Process fetches the source, normalizes it once, emits the normalized
// image and then every requested variant in request order. Variants are
// computed concurrently; a failed variant is reported in its Output and
// does not affect its siblings. Fetch, normalization and emit failures
// abort the whole request.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	session := p.engine.NewSession(codec.NewSource(sourceBytes, req.MimeType))
	outputType := req.OutputType
	if strings.TrimSpace(outputType) == "" {
		outputType = p.opts.OutputType
	}

	norm, err := session.Normalized(ctx)
	if err != nil {
		return Result{}, err
	}

	base, err := session.EncodeNormalized(ctx, outputType)
	if err != nil {
		return Result{}, fmt.Errorf("encode stage: %w", err)
	}
	normalizedOut, err := p.emitter.Emit(ctx, req, base.Step, base.Data, base.Format, base.Width, base.Height)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage step=%s: %w", base.Step.ID, err)
	}
	normalizedOut.PixelRatio = norm.Image.PixelRatio

	variants, err := p.render(ctx, session, outputType, req.Transforms)
	if err != nil {
		return Result{}, err
	}

	out := Result{
		SourceBytes: len(sourceBytes),
		Normalized:  normalizedOut,
		Outputs:     make([]Output, 0, len(variants)),
		Report:      *norm,
	}
	for _, v := range variants {
		if v.Err != nil {
			out.Outputs = append(out.Outputs, Output{
				StepID: v.Step.ID,
				Action: strings.ToLower(v.Step.Action),
				Error:  v.Err.Error(),
			})
			continue
		}

		written, err := p.emitter.Emit(ctx, req, v.Step, v.Data, v.Format, v.Width, v.Height)
		if err != nil {
			return Result{}, fmt.Errorf("emit stage step=%s action=%s: %w", v.Step.ID, v.Step.Action, err)
		}
		out.Outputs = append(out.Outputs, written)
	}

	return out, nil
}

func (p *Processor) render(ctx context.Context, session *Session, outputType string, steps []domain.TransformStep) ([]Variant, error) {
	variants := make([]Variant, len(steps))
	if len(steps) == 0 {
		return variants, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, step := range steps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			variants[i] = session.Render(gctx, outputType, step)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return variants, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, step domain.TransformStep, data []byte, format string, width, height int) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, errors.New("transform step id is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, outputName(step.ID, format))
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return successOutput(step, fullPath, data, format, width, height), nil
}

func successOutput(step domain.TransformStep, path string, data []byte, format string, width, height int) Output {
	return Output{
		StepID:  step.ID,
		Action:  strings.ToLower(step.Action),
		Format:  format,
		Path:    path,
		Bytes:   len(data),
		Width:   width,
		Height:  height,
		Success: true,
	}
}

func outputName(stepID, format string) string {
	ext := format
	if ext == codec.FormatJPEG {
		ext = "jpg"
	}
	return fmt.Sprintf("%s.%s", sanitizePathToken(stepID), ext)
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
