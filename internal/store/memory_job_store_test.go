package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dunamismax/pixelfix/internal/domain"
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	job := domain.Job{
		ID:         "job-1",
		Status:     domain.JobStatusCreated,
		Transforms: []domain.TransformStep{{ID: "thumb", Action: "resize", Width: 10}},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	job.Transforms[0].Width = 999

	got, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%t err=%v", ok, err)
	}
	if got.Transforms[0].Width != 10 {
		t.Fatalf("expected stored transforms to be isolated from caller, got width %d", got.Transforms[0].Width)
	}

	failed, err := s.MarkFailed(ctx, "job-1", "decode failure")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if failed.Status != domain.JobStatusFailed || failed.Error != "decode failure" || !failed.Terminal() {
		t.Fatalf("unexpected failed job %+v", failed)
	}

	requeued, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusQueued)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if requeued.Error != "" {
		t.Fatalf("expected error to be cleared, got %q", requeued.Error)
	}

	if _, err := s.UpdateStatus(ctx, "missing", domain.JobStatusQueued); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("expected missing job to be absent")
	}
}

func TestMemoryJobStoreRecordsUsage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	if err := s.RecordUsage(ctx, domain.UsageLog{JobID: "a", PixelsProcessed: 10}); err != nil {
		t.Fatalf("record usage: %v", err)
	}
	if err := s.RecordUsage(ctx, domain.UsageLog{JobID: "b", PixelsProcessed: 20}); err != nil {
		t.Fatalf("record usage: %v", err)
	}

	rows := s.Usage("b")
	if len(rows) != 1 || rows[0].PixelsProcessed != 20 {
		t.Fatalf("unexpected usage rows %+v", rows)
	}
}
