package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCreateJobRequestValidate(t *testing.T) {
	valid := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
		OutputType: "webp",
		Transforms: []TransformStep{
			{ID: "thumb_small", Action: "resize", Width: 120},
			{ID: "avatar", Action: "crop", Size: 64, Type: "jpg", Quality: 70},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	normalizeOnly := CreateJobRequest{SourceType: SourceTypeS3Presigned}
	if err := normalizeOnly.Validate(); err != nil {
		t.Fatalf("expected request without transforms to be valid, got %v", err)
	}

	cases := map[string]CreateJobRequest{
		"empty": {},
		"missing object key": {
			SourceType: SourceTypeLocalFile,
		},
		"unsupported source type": {
			SourceType: "http_url",
		},
		"unsupported mime type": {
			SourceType: SourceTypeS3Presigned,
			MimeType:   "application/pdf",
		},
		"unsupported output type": {
			SourceType: SourceTypeS3Presigned,
			OutputType: "heic",
		},
		"missing step id": {
			SourceType: SourceTypeS3Presigned,
			Transforms: []TransformStep{{Action: "resize", Width: 10}},
		},
		"reserved step id": {
			SourceType: SourceTypeS3Presigned,
			Transforms: []TransformStep{{ID: "normalized", Action: "resize", Width: 10}},
		},
		"duplicate step id": {
			SourceType: SourceTypeS3Presigned,
			Transforms: []TransformStep{
				{ID: "a", Action: "resize", Width: 10},
				{ID: "a", Action: "crop", Size: 10},
			},
		},
		"missing action": {
			SourceType: SourceTypeS3Presigned,
			Transforms: []TransformStep{{ID: "a", Width: 10}},
		},
		"too many transforms": {
			SourceType: SourceTypeS3Presigned,
			Transforms: make([]TransformStep, MaxTransforms+1),
		},
	}
	for name, req := range cases {
		if err := req.Validate(); !errors.Is(err, ErrInvalidJobRequest) {
			t.Fatalf("%s: expected ErrInvalidJobRequest, got %v", name, err)
		}
	}
}

func TestCreateJobRequestLeavesStepParametersToRender(t *testing.T) {
	req := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
		Transforms: []TransformStep{
			{ID: "thumb", Action: "resize", Width: 120},
			{ID: "no_dims", Action: "resize"},
			{ID: "no_size", Action: "crop"},
			{ID: "filter", Action: "watermark"},
			{ID: "hq", Action: "crop", Size: 10, Quality: 101, Type: "heic"},
		},
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected step parameter errors to be deferred, got %v", err)
	}
}

func TestTransformStepRequestNormalizesAction(t *testing.T) {
	r := TransformStep{ID: "x", Action: " Crop ", Size: 32}.Request()
	if r.Action != "crop" || r.Size != 32 {
		t.Fatalf("unexpected request %+v", r)
	}
}

func TestNewUsageLog(t *testing.T) {
	job := Job{ID: "job-1", UserID: "user-1"}
	usage := NewUsageLog(job, 2_000_000, 9000, 7000, 3, 1500*time.Millisecond)
	if usage.BytesSaved != 2000 {
		t.Fatalf("expected 2000 bytes saved, got %d", usage.BytesSaved)
	}
	if usage.ComputeTimeMS != 1500 || usage.Outputs != 3 || usage.UserID != "user-1" {
		t.Fatalf("unexpected usage %+v", usage)
	}

	grown := NewUsageLog(Job{ID: "job-2"}, 10, 100, 400, 1, 0)
	if grown.BytesSaved != 0 {
		t.Fatalf("expected bytes saved to floor at zero, got %d", grown.BytesSaved)
	}
	if grown.ComputeTimeMS != 1 {
		t.Fatalf("expected compute time of at least 1ms, got %d", grown.ComputeTimeMS)
	}
	if grown.UserID != "anonymous" {
		t.Fatalf("expected anonymous user, got %q", grown.UserID)
	}
}
