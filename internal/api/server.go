package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pixelgrid/pixelgrid/internal/domain"
	"github.com/pixelgrid/pixelgrid/internal/id"
	"github.com/pixelgrid/pixelgrid/internal/queue"
	"github.com/pixelgrid/pixelgrid/internal/store"
)

type Enqueuer interface {
	EnqueueGenerateDerivatives(ctx context.Context, payload queue.GenerateDerivativesPayload) (*asynq.TaskInfo, error)
}

type ObjectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type Options struct {
	Logger     *log.Logger
	Queue      Enqueuer
	JobStore   store.JobStore
	Storage    ObjectStorage
	PresignTTL time.Duration

	// RateLimiter may be nil, which disables request throttling.
	RateLimiter   RateLimiter
	SubjectHeader string

	// TracingEnabled installs the otel middleware around every route.
	TracingEnabled bool
}

type Server struct {
	logger        *log.Logger
	queueClient   Enqueuer
	jobStore      store.JobStore
	storage       ObjectStorage
	presignTTL    time.Duration
	rateLimiter   RateLimiter
	subjectHeader string
	tracer        trace.Tracer
	metrics       *metrics
	mux           *http.ServeMux
}

func NewServer(opts Options) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.Storage == nil {
		opts.Storage = unavailableObjectStorage{}
	}
	if opts.SubjectHeader == "" {
		opts.SubjectHeader = "X-Pixelgrid-User"
	}

	s := &Server{
		logger:        opts.Logger,
		queueClient:   opts.Queue,
		jobStore:      opts.JobStore,
		storage:       opts.Storage,
		presignTTL:    opts.PresignTTL,
		rateLimiter:   opts.RateLimiter,
		subjectHeader: opts.SubjectHeader,
		metrics:       newMetrics(),
		mux:           http.NewServeMux(),
	}
	if opts.TracingEnabled {
		s.tracer = otel.Tracer("pixelgrid/api")
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) PresignedGetURL(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(context.Context, string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withRateLimit(h)
	h = s.withTracing(h)
	h = s.metrics.withHTTPMetrics(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("POST /v1/jobs/{id}/start", s.handleStartJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	jobID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = fmt.Sprintf("uploads/%s/source", jobID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("generate presigned url failed for job %s: %v", jobID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.Job{
		ID:         jobID,
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		SourceName: strings.TrimSpace(req.SourceName),
		WebhookURL: req.WebhookURL,
		ObjectKey:  objectKey,
		Options:    req.Options,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Printf("create job failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create job"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"upload": map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url":  fmt.Sprintf("/v1/jobs/%s/start", job.ID),
		"status_url": fmt.Sprintf("/v1/jobs/%s", job.ID),
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed for job %s: %v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	if err := s.verifySourceExists(r.Context(), job); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	payload := queue.GenerateDerivativesPayload{
		JobID:       job.ID,
		SourceType:  job.SourceType,
		SourceName:  job.SourceName,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		Options:     job.Options,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueGenerateDerivatives(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue job"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Printf("update status failed for job %s: %v", job.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

type derivativeView struct {
	Name        string `json:"name"`
	Format      string `json:"format"`
	Width       int    `json:"width_px"`
	Height      int    `json:"height_px"`
	Bytes       int    `json:"bytes"`
	DownloadURL string `json:"download_url,omitempty"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed for job %s: %v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	derivatives := make([]derivativeView, 0, len(job.Outputs))
	for _, out := range job.Outputs {
		view := derivativeView{
			Name:   out.Name,
			Format: out.Format,
			Width:  out.Width,
			Height: out.Height,
			Bytes:  out.Bytes,
		}
		if job.SourceType == domain.SourceTypeS3Presigned && out.Path != "" {
			url, err := s.storage.PresignedGetURL(r.Context(), out.Path, s.presignTTL)
			if err != nil {
				s.logger.Printf("presign download failed for job %s object %s: %v", job.ID, out.Path, err)
			} else {
				view.DownloadURL = url
			}
		}
		derivatives = append(derivatives, view)
	}

	resp := map[string]any{
		"job_id":      job.ID,
		"status":      job.Status,
		"source_name": job.SourceName,
		"created_at":  job.CreatedAt,
		"updated_at":  job.UpdatedAt,
		"derivatives": derivatives,
	}
	if job.Metrics != nil {
		resp["quality"] = job.Metrics
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) verifySourceExists(ctx context.Context, job domain.Job) error {
	switch job.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := os.Stat(job.ObjectKey); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source image is missing: %s", path.Base(job.ObjectKey))
			}
			return fmt.Errorf("source image check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, job.ObjectKey)
		if err != nil {
			return fmt.Errorf("source image check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source image is missing: %s", job.ObjectKey)
		}
		return nil
	}
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
