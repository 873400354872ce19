package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pixelgrid/pixelgrid/internal/config"
	"github.com/pixelgrid/pixelgrid/internal/domain"
	"github.com/pixelgrid/pixelgrid/internal/pipeline"
	"github.com/pixelgrid/pixelgrid/internal/queue"
	"github.com/pixelgrid/pixelgrid/internal/storage"
	"github.com/pixelgrid/pixelgrid/internal/store"
	"github.com/pixelgrid/pixelgrid/internal/webhook"
)

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  *pipeline.Processor
	objectProcessor *pipeline.Processor
	webhookClient   webhookSender
	jobStore        store.JobStore
	metrics         *metrics
	tracer          trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	progress := func(p domain.Progress) {
		logger.Printf("render progress %d/%d derivative=%s", p.Current, p.Total, p.Label)
	}

	localProcessor, err := pipeline.NewLocalProcessor(workerCfg.LocalOutputDir, workerCfg.RenderWorkers, progress)
	if err != nil {
		return nil, fmt.Errorf("initialize local processor: %w", err)
	}

	objectProcessor, err := pipeline.NewProcessor(
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		pipeline.ObjectStoreEmitter{Storage: storageClient},
		workerCfg.RenderWorkers,
		progress,
	)
	if err != nil {
		return nil, fmt.Errorf("initialize object-store processor: %w", err)
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
		localProcessor:  localProcessor,
		objectProcessor: objectProcessor,
		webhookClient:   webhookClient,
		jobStore:        jobStore,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("pixelgrid/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeGenerateDerivatives, s.handleGenerateDerivatives)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleGenerateDerivatives(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseGenerateDerivativesPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.generate_derivatives", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Int("job.formats", len(payload.Options.Formats)),
		attribute.Int("job.breakpoints", len(payload.Options.Breakpoints)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"Working... job_id=%s source_type=%s formats=%d breakpoints=%d object_key=%s",
		payload.JobID,
		payload.SourceType,
		len(payload.Options.Formats),
		len(payload.Options.Breakpoints),
		payload.ObjectKey,
	)

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	request := pipeline.Request{
		JobID:      payload.JobID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		SourceName: payload.SourceName,
		Options:    payload.Options,
	}

	var result pipeline.Result
	switch payload.SourceType {
	case domain.SourceTypeLocalFile:
		result, err = s.localProcessor.Process(ctx, request)
	default:
		result, err = s.objectProcessor.Process(ctx, request)
	}
	if err != nil {
		s.updateJobStatus(ctx, payload.JobID, domain.JobStatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		s.dispatchWebhook(ctx, payload, webhook.EventJobFailed, map[string]any{
			"job_id":       payload.JobID,
			"status":       domain.JobStatusFailed,
			"source_type":  payload.SourceType,
			"source_name":  payload.SourceName,
			"object_key":   payload.ObjectKey,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		return fmt.Errorf("run pipeline: %w", err)
	}

	s.logger.Printf(
		"Processed job_id=%s derivatives=%d sharpness=%.1f blur_class=%s",
		payload.JobID,
		len(result.Outputs),
		result.Metrics.SharpnessScore,
		result.Metrics.BlurClass,
	)
	s.storeResult(ctx, payload.JobID, result)
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusSucceeded)
	s.recordResult(result)

	if err := s.dispatchWebhook(ctx, payload, webhook.EventJobCompleted, map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusSucceeded,
		"source_type":  payload.SourceType,
		"source_name":  payload.SourceName,
		"object_key":   payload.ObjectKey,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"derivatives":  result.Outputs,
		"quality":      result.Metrics,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) storeResult(ctx context.Context, jobID string, result pipeline.Result) {
	if s.jobStore == nil {
		return
	}
	if err := s.jobStore.SetResult(ctx, jobID, result.Metrics, result.Outputs); err != nil {
		s.logger.Printf("job result write failed job_id=%s err=%v", jobID, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.GenerateDerivativesPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

// recordResult feeds the batch outcome into the worker metrics.
func (s *Server) recordResult(result pipeline.Result) {
	var pixels int64
	for _, out := range result.Outputs {
		pixels += int64(out.Width) * int64(out.Height)
		s.metrics.derivativeBytes.WithLabelValues(out.Format).Add(float64(out.Bytes))
		s.metrics.derivativesTotal.WithLabelValues(out.Format).Inc()
	}
	s.metrics.pixelsEmittedTotal.Add(float64(pixels))
	s.metrics.sharpnessScore.Observe(result.Metrics.SharpnessScore)
	s.metrics.blurClassTotal.WithLabelValues(string(result.Metrics.BlurClass)).Inc()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
