package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/pixelfix/internal/codec"
	"github.com/dunamismax/pixelfix/internal/config"
	"github.com/dunamismax/pixelfix/internal/domain"
	"github.com/dunamismax/pixelfix/internal/normalize"
	"github.com/dunamismax/pixelfix/internal/pipeline"
	"github.com/dunamismax/pixelfix/internal/queue"
	"github.com/dunamismax/pixelfix/internal/store"
	"github.com/dunamismax/pixelfix/internal/telemetry"
	"github.com/dunamismax/pixelfix/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  processor
	objectProcessor processor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	opts pipeline.Options,
	objectStore pipeline.ObjectStore,
	webhookClient webhookSender,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if objectStore == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		localProcessor:  pipeline.NewLocalProcessor(workerCfg.LocalOutputDir, opts, logger),
		objectProcessor: pipeline.NewObjectStoreProcessor(objectStore, workerCfg.OutputPrefix, opts, logger),
		webhookClient:   webhookClient,
		jobStore:        jobStore,
		usageStore:      usageStore,
		metrics:         newMetrics(),
		tracer:          telemetry.Tracer(),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeNormalizeImage, s.handleNormalizeImage)
	return s.server.Run(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleNormalizeImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseNormalizeImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	if s.alreadyFinished(ctx, payload.JobID) {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "worker.normalize_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Int("job.transforms", len(payload.Transforms)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"normalizing job_id=%s source_type=%s transforms=%d object_key=%s",
		payload.JobID,
		payload.SourceType,
		len(payload.Transforms),
		payload.ObjectKey,
	)

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	request := pipeline.Request{
		JobID:      payload.JobID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		MimeType:   payload.MimeType,
		OutputType: payload.OutputType,
		Transforms: payload.Transforms,
	}

	stageCtx, endStage := telemetry.StartStage(ctx, s.tracer, "pipeline.process",
		attribute.String("job.mime_type", payload.MimeType),
	)
	var result pipeline.Result
	switch payload.SourceType {
	case domain.SourceTypeLocalFile:
		result, err = s.localProcessor.Process(stageCtx, request)
	default:
		result, err = s.objectProcessor.Process(stageCtx, request)
	}
	endStage(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		return s.fail(ctx, payload, err)
	}

	s.observeNormalization(result)
	span.SetAttributes(
		attribute.Int("normalize.orientation", int(result.Report.Orientation)),
		attribute.Bool("normalize.subsampled", result.Report.Report.Subsampled),
		attribute.Float64("normalize.squash_ratio", result.Report.Report.SquashRatio),
		attribute.Int("normalize.tiles", result.Report.Report.Tiles),
		attribute.Int("job.failed_transforms", result.Failed()),
	)

	s.logger.Printf(
		"normalized job_id=%s outputs=%d failed=%d orientation=%s subsampled=%t squash=%.4f pixel_ratio=%.2f",
		payload.JobID,
		len(result.Outputs),
		result.Failed(),
		result.Report.Orientation,
		result.Report.Report.Subsampled,
		result.Report.Report.SquashRatio,
		result.Normalized.PixelRatio,
	)
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusSucceeded)
	s.recordUsage(ctx, payload.JobID, result, time.Since(startedAt))

	s.dispatchWebhook(ctx, payload, webhook.EventJobCompleted, completedEvent(payload, result))

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "normalized")
	return nil
}

// fail records a pipeline failure. Failures that would repeat on retry are
// terminal: the job is marked failed, the webhook fires and retries stop.
func (s *Server) fail(ctx context.Context, payload queue.NormalizeImagePayload, err error) error {
	if !isTerminal(err) && !lastAttempt(ctx) {
		s.logger.Printf("pipeline attempt failed job_id=%s err=%v", payload.JobID, err)
		return fmt.Errorf("run pipeline: %w", err)
	}

	s.markFailed(ctx, payload.JobID, err.Error())
	s.dispatchWebhook(ctx, payload, webhook.EventJobFailed, webhook.JobEvent{
		JobID:      payload.JobID,
		Status:     domain.JobStatusFailed,
		Error:      err.Error(),
		OccurredAt: time.Now().UTC(),
	})
	if isTerminal(err) {
		return fmt.Errorf("run pipeline: %v: %w", err, asynq.SkipRetry)
	}
	return fmt.Errorf("run pipeline: %w", err)
}

func isTerminal(err error) bool {
	return errors.Is(err, codec.ErrDecodeFailure) ||
		errors.Is(err, codec.ErrUnsupportedMimeType) ||
		errors.Is(err, codec.ErrUnsupportedOutputType) ||
		errors.Is(err, normalize.ErrCompositeFailure) ||
		errors.Is(err, pipeline.ErrUnsupportedSourceType)
}

func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func (s *Server) observeNormalization(result pipeline.Result) {
	report := result.Report.Report
	s.metrics.orientationTotal.WithLabelValues(strconv.Itoa(int(result.Report.Orientation))).Inc()
	if report.Subsampled {
		s.metrics.subsampledTotal.Inc()
	}
	if report.SquashRatio < 1 {
		s.metrics.squashedTotal.Inc()
	}
	s.metrics.tilesTotal.Add(float64(report.Tiles))

	s.metrics.outputsTotal.WithLabelValues(pipeline.ActionNormalize, "success").Inc()
	for _, output := range result.Outputs {
		label := "success"
		if !output.Success {
			label = "failure"
		}
		s.metrics.outputsTotal.WithLabelValues(output.Action, label).Inc()
	}
}

// alreadyFinished reports whether a redelivered task belongs to a job that
// has already reached a terminal status.
func (s *Server) alreadyFinished(ctx context.Context, jobID string) bool {
	if s.jobStore == nil {
		return false
	}
	job, ok, err := s.jobStore.Get(ctx, jobID)
	if err != nil || !ok || !job.Terminal() {
		return false
	}
	s.logger.Printf("skipping finished job job_id=%s status=%s", jobID, job.Status)
	return true
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) markFailed(ctx context.Context, jobID, reason string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.MarkFailed(ctx, jobID, reason); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, domain.JobStatusFailed, err)
	}
}

// dispatchWebhook logs delivery failures instead of returning them; the job
// outcome is already persisted and a retry would redo the normalization.
func (s *Server) dispatchWebhook(ctx context.Context, payload queue.NormalizeImagePayload, event string, body webhook.JobEvent) {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.metrics.webhookFailures.WithLabelValues(event).Inc()
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
	}
}

func completedEvent(payload queue.NormalizeImagePayload, result pipeline.Result) webhook.JobEvent {
	outputs := make([]webhook.OutputSummary, 0, len(result.Outputs)+1)
	for _, o := range append([]pipeline.Output{result.Normalized}, result.Outputs...) {
		outputs = append(outputs, webhook.OutputSummary{
			ID:         o.StepID,
			Action:     o.Action,
			Format:     o.Format,
			Path:       o.Path,
			Bytes:      o.Bytes,
			Width:      o.Width,
			Height:     o.Height,
			PixelRatio: o.PixelRatio,
			Success:    o.Success,
			Error:      o.Error,
		})
	}
	return webhook.JobEvent{
		JobID:       payload.JobID,
		Status:      domain.JobStatusSucceeded,
		Orientation: int(result.Report.Orientation),
		Subsampled:  result.Report.Report.Subsampled,
		SquashRatio: result.Report.Report.SquashRatio,
		PixelRatio:  result.Normalized.PixelRatio,
		Outputs:     outputs,
		OccurredAt:  time.Now().UTC(),
	}
}

func (s *Server) recordUsage(ctx context.Context, jobID string, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	job := domain.Job{ID: jobID}
	if s.jobStore != nil {
		stored, ok, err := s.jobStore.Get(ctx, jobID)
		if err != nil {
			s.logger.Printf("usage lookup failed job_id=%s err=%v", jobID, err)
		} else if ok {
			job = stored
		}
	}

	var (
		pixelsProcessed  int64
		totalOutputBytes int
		outputs          int
	)
	for _, output := range append([]pipeline.Output{result.Normalized}, result.Outputs...) {
		if !output.Success {
			continue
		}
		pixelsProcessed += int64(output.Width) * int64(output.Height)
		totalOutputBytes += output.Bytes
		outputs++
	}

	usage := domain.NewUsageLog(job, pixelsProcessed, result.SourceBytes, totalOutputBytes, outputs, computeDuration)
	if err := s.usageStore.RecordUsage(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", jobID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(usage.PixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(usage.BytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(usage.ComputeTimeMS))
}
