package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/pixelfix/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeNormalizeImage = "image:normalize"

type NormalizeImagePayload struct {
	JobID       string                 `json:"job_id"`
	UserID      string                 `json:"user_id,omitempty"`
	SourceType  string                 `json:"source_type"`
	WebhookURL  string                 `json:"webhook_url,omitempty"`
	ObjectKey   string                 `json:"object_key"`
	MimeType    string                 `json:"mime_type,omitempty"`
	OutputType  string                 `json:"output_type,omitempty"`
	Transforms  []domain.TransformStep `json:"transforms,omitempty"`
	RequestedAt time.Time              `json:"requested_at"`
}

func PayloadForJob(job domain.Job, requestedAt time.Time) NormalizeImagePayload {
	return NormalizeImagePayload{
		JobID:       job.ID,
		UserID:      job.UserID,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		MimeType:    job.MimeType,
		OutputType:  job.OutputType,
		Transforms:  job.Transforms,
		RequestedAt: requestedAt,
	}
}

func NewNormalizeImageTask(payload NormalizeImagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal normalize payload: %w", err)
	}
	return asynq.NewTask(TypeNormalizeImage, body), nil
}

func ParseNormalizeImagePayload(task *asynq.Task) (NormalizeImagePayload, error) {
	var payload NormalizeImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NormalizeImagePayload{}, fmt.Errorf("unmarshal normalize payload: %w", err)
	}
	if payload.JobID == "" {
		return NormalizeImagePayload{}, fmt.Errorf("normalize payload is missing job_id")
	}
	return payload, nil
}
