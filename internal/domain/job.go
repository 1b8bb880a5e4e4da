package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/pixelfix/internal/codec"
	"github.com/dunamismax/pixelfix/internal/transform"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"

	MaxTransforms = 32
)

var ErrInvalidJobRequest = errors.New("invalid job request")

type CreateJobRequest struct {
	SourceType string          `json:"source_type"`
	WebhookURL string          `json:"webhook_url,omitempty"`
	ObjectKey  string          `json:"object_key,omitempty"`
	MimeType   string          `json:"mime_type,omitempty"`
	OutputType string          `json:"output_type,omitempty"`
	Transforms []TransformStep `json:"transforms,omitempty"`
}

// TransformStep is one requested variant of the normalized image. Type and
// Quality override the job's output encoding for this variant only.
type TransformStep struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Size    int    `json:"size,omitempty"`
	Type    string `json:"type,omitempty"`
	Quality int    `json:"quality,omitempty"`
}

func (s TransformStep) Request() transform.Request {
	return transform.Request{
		Action: strings.ToLower(strings.TrimSpace(s.Action)),
		Width:  s.Width,
		Height: s.Height,
		Size:   s.Size,
	}
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	MimeType   string
	OutputType string
	Transforms []TransformStep
	ObjectKey  string
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (j Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// Validate checks the job as a whole and the identity of each step. Step
// parameters are checked when the variant is rendered, so one bad step fails
// only its own output.
func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return fmt.Errorf("%w: source_type is required", ErrInvalidJobRequest)
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("%w: unsupported source_type: %s", ErrInvalidJobRequest, r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return fmt.Errorf("%w: object_key is required for source_type=local_file", ErrInvalidJobRequest)
	}
	if mime := strings.TrimSpace(r.MimeType); mime != "" {
		if _, ok := codec.FormatForMime(mime); !ok {
			return fmt.Errorf("%w: unsupported mime_type: %s", ErrInvalidJobRequest, mime)
		}
	}
	if t := strings.TrimSpace(r.OutputType); t != "" {
		if _, ok := codec.ParseOutputType(t); !ok {
			return fmt.Errorf("%w: unsupported output_type: %s", ErrInvalidJobRequest, t)
		}
	}
	if len(r.Transforms) > MaxTransforms {
		return fmt.Errorf("%w: at most %d transforms are allowed", ErrInvalidJobRequest, MaxTransforms)
	}

	seen := make(map[string]struct{}, len(r.Transforms))
	for i, step := range r.Transforms {
		id := strings.TrimSpace(step.ID)
		if id == "" {
			return fmt.Errorf("%w: transforms[%d].id is required", ErrInvalidJobRequest, i)
		}
		if strings.EqualFold(id, "normalized") {
			return fmt.Errorf("%w: transforms[%d].id %q is reserved", ErrInvalidJobRequest, i, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: transforms[%d].id %q is duplicated", ErrInvalidJobRequest, i, id)
		}
		seen[id] = struct{}{}

		if strings.TrimSpace(step.Action) == "" {
			return fmt.Errorf("%w: transforms[%d].action is required", ErrInvalidJobRequest, i)
		}
	}
	return nil
}
