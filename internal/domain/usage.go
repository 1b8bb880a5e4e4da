package domain

import "time"

// UsageLog records the work one job consumed. BytesSaved is the source size
// minus the total size of everything emitted, floored at zero.
type UsageLog struct {
	UserID          string
	JobID           string
	PixelsProcessed int64
	BytesSaved      int64
	ComputeTimeMS   int64
	Outputs         int
	CreatedAt       time.Time
}

func NewUsageLog(job Job, pixels int64, sourceBytes, emittedBytes int, outputs int, elapsed time.Duration) UsageLog {
	userID := job.UserID
	if userID == "" {
		userID = "anonymous"
	}
	return UsageLog{
		UserID:          userID,
		JobID:           job.ID,
		PixelsProcessed: pixels,
		BytesSaved:      max(0, int64(sourceBytes)-int64(emittedBytes)),
		ComputeTimeMS:   max(1, elapsed.Milliseconds()),
		Outputs:         outputs,
		CreatedAt:       time.Now().UTC(),
	}
}
