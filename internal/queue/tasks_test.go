package queue

import (
	"testing"
	"time"

	"github.com/dunamismax/pixelfix/internal/domain"
	"github.com/hibiken/asynq"
)

func TestNormalizeImageTaskRoundTrip(t *testing.T) {
	job := domain.Job{
		ID:         "job-123",
		UserID:     "user-9",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-123/source",
		MimeType:   "image/jpeg",
		OutputType: "webp",
		Transforms: []domain.TransformStep{
			{ID: "thumb_small", Action: "resize", Width: 120},
			{ID: "avatar", Action: "crop", Size: 64},
		},
	}

	task, err := NewNormalizeImageTask(PayloadForJob(job, time.Now().UTC()))
	if err != nil {
		t.Fatalf("NewNormalizeImageTask returned error: %v", err)
	}
	if task.Type() != TypeNormalizeImage {
		t.Fatalf("expected task type %s, got %s", TypeNormalizeImage, task.Type())
	}

	parsed, err := ParseNormalizeImagePayload(task)
	if err != nil {
		t.Fatalf("ParseNormalizeImagePayload returned error: %v", err)
	}

	if parsed.JobID != job.ID || parsed.UserID != job.UserID {
		t.Fatalf("expected job %q user %q, got %q %q", job.ID, job.UserID, parsed.JobID, parsed.UserID)
	}
	if len(parsed.Transforms) != 2 || parsed.Transforms[1].Size != 64 {
		t.Fatalf("unexpected transforms %+v", parsed.Transforms)
	}
}

func TestParseNormalizeImagePayloadRejectsMissingJobID(t *testing.T) {
	if _, err := ParseNormalizeImagePayload(asynq.NewTask(TypeNormalizeImage, []byte(`{}`))); err == nil {
		t.Fatal("expected error for payload without job_id")
	}
	if _, err := ParseNormalizeImagePayload(asynq.NewTask(TypeNormalizeImage, []byte(`{`))); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
