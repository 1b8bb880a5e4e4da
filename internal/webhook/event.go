package webhook

import "time"

// OutputSummary describes one emitted image in a job event.
type OutputSummary struct {
	ID         string  `json:"id"`
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

type JobEvent struct {
	JobID       string          `json:"job_id"`
	Status      string          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Orientation int             `json:"orientation,omitempty"`
	Subsampled  bool            `json:"subsampled,omitempty"`
	SquashRatio float64         `json:"squash_ratio,omitempty"`
	PixelRatio  float64         `json:"pixel_ratio,omitempty"`
	Outputs     []OutputSummary `json:"outputs,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
