package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/dunamismax/pixelfix/internal/codec"
	"github.com/dunamismax/pixelfix/internal/domain"
	"github.com/dunamismax/pixelfix/internal/storage"
)

const SourceTypeS3Presigned = domain.SourceTypeS3Presigned

// ObjectStore is the subset of the storage client the stages need.
type ObjectStore interface {
	ReadObject(ctx context.Context, key string) ([]byte, error)
	WriteObject(ctx context.Context, key string, data []byte, contentType string) error
}

var _ ObjectStore = (*storage.Client)(nil)

func NewObjectStoreProcessor(store ObjectStore, outputPrefix string, opts Options, logger *log.Logger) *Processor {
	return NewProcessor(
		ObjectStoreFetcher{Storage: store},
		NewEngine(opts, nil, nil, logger),
		ObjectStoreEmitter{Storage: store, OutputPrefix: outputPrefix},
	)
}

type ObjectStoreFetcher struct {
	Storage ObjectStore
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey)
}

type ObjectStoreEmitter struct {
	Storage      ObjectStore
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, step domain.TransformStep, data []byte, format string, width, height int) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, errors.New("transform step id is required")
	}

	objectKey := path.Join(
		defaultOutputPrefix(e.OutputPrefix),
		sanitizePathToken(req.JobID),
		outputName(step.ID, format),
	)

	if err := e.Storage.WriteObject(ctx, objectKey, data, codec.MimeForFormat(format)); err != nil {
		return Output{}, err
	}

	return successOutput(step, objectKey, data, format, width, height), nil
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "outputs"
	}
	return prefix
}
