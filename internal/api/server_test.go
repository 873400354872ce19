package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pixelgrid/pixelgrid/internal/domain"
	"github.com/pixelgrid/pixelgrid/internal/queue"
	"github.com/pixelgrid/pixelgrid/internal/store"
)

type fakeEnqueuer struct {
	payloads []queue.GenerateDerivativesPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueGenerateDerivatives(_ context.Context, payload queue.GenerateDerivativesPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{
		ID:    "task-1",
		Queue: "default",
		State: asynq.TaskStatePending,
	}, nil
}

type fakeStorage struct {
	objects map[string]bool
}

func (f *fakeStorage) PresignedPutURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://upload.test/" + objectKey, nil
}

func (f *fakeStorage) PresignedGetURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://download.test/" + objectKey, nil
}

func (f *fakeStorage) ObjectExists(_ context.Context, objectKey string) (bool, error) {
	return f.objects[objectKey], nil
}

func newTestServer(t *testing.T, jobStore store.JobStore, enqueuer *fakeEnqueuer, storage *fakeStorage) *Server {
	t.Helper()
	if storage == nil {
		storage = &fakeStorage{objects: map[string]bool{}}
	}
	return NewServer(Options{
		Logger:   log.New(os.Stderr, "[api-test] ", log.LstdFlags),
		Queue:    enqueuer,
		JobStore: jobStore,
		Storage:  storage,
	})
}

func testOptions() domain.Options {
	return domain.Options{
		Quality: 80,
		Formats: []domain.Format{domain.FormatWEBP, domain.FormatJPEG},
		Breakpoints: []domain.Breakpoint{
			{Name: "Desktop", WidthPx: 1920},
			{Name: "Mobile", WidthPx: 768},
		},
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndStartLocalJob(t *testing.T) {
	srcPath := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(srcPath, []byte("not-a-real-png"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	jobStore := store.NewMemoryJobStore()
	enqueuer := &fakeEnqueuer{}
	handler := newTestServer(t, jobStore, enqueuer, nil).Handler()

	rec := postJSON(t, handler, "/v1/jobs", domain.CreateJobRequest{
		SourceType: domain.SourceTypeLocalFile,
		SourceName: "photo.png",
		ObjectKey:  srcPath,
		Options:    testOptions(),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d body=%s", rec.Code, rec.Body.String())
	}

	var created struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Status != domain.JobStatusCreated {
		t.Fatalf("expected status created, got %s", created.Status)
	}

	rec = postJSON(t, handler, "/v1/jobs/"+created.JobID+"/start", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start: expected 202, got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(enqueuer.payloads) != 1 {
		t.Fatalf("expected 1 enqueued payload, got %d", len(enqueuer.payloads))
	}
	if enqueuer.payloads[0].ObjectKey != srcPath {
		t.Fatalf("payload object key mismatch: %s", enqueuer.payloads[0].ObjectKey)
	}

	job, ok, err := jobStore.Get(context.Background(), created.JobID)
	if err != nil || !ok {
		t.Fatalf("load job: ok=%v err=%v", ok, err)
	}
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("expected queued, got %s", job.Status)
	}
}

func TestCreateJobPresignedUpload(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	handler := newTestServer(t, jobStore, &fakeEnqueuer{}, nil).Handler()

	rec := postJSON(t, handler, "/v1/jobs", domain.CreateJobRequest{
		SourceType: domain.SourceTypeS3Presigned,
		Options:    testOptions(),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rec.Code, rec.Body.String())
	}

	var created struct {
		Upload struct {
			ObjectKey string `json:"object_key"`
			PutURL    string `json:"presigned_put_url"`
			State     string `json:"presigned_url_state"`
		} `json:"upload"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Upload.State != "ready" {
		t.Fatalf("expected upload state ready, got %s", created.Upload.State)
	}
	if created.Upload.PutURL == "" || created.Upload.ObjectKey == "" {
		t.Fatalf("expected presigned upload fields, got %+v", created.Upload)
	}
}

func TestCreateJobRejectsInvalidRequest(t *testing.T) {
	handler := newTestServer(t, store.NewMemoryJobStore(), &fakeEnqueuer{}, nil).Handler()

	rec := postJSON(t, handler, "/v1/jobs", domain.CreateJobRequest{
		SourceType: "carrier_pigeon",
		Options:    testOptions(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStartJobMissingSourceConflicts(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	handler := newTestServer(t, jobStore, &fakeEnqueuer{}, nil).Handler()

	rec := postJSON(t, handler, "/v1/jobs", domain.CreateJobRequest{
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  filepath.Join(t.TempDir(), "missing.png"),
		Options:    testOptions(),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d", rec.Code)
	}
	var created struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	rec = postJSON(t, handler, "/v1/jobs/"+created.JobID+"/start", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for missing source, got %d", rec.Code)
	}
}

func TestGetJobReturnsManifest(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	now := time.Now().UTC()
	job := domain.Job{
		ID:         "job-42",
		Status:     domain.JobStatusSucceeded,
		SourceType: domain.SourceTypeS3Presigned,
		SourceName: "hero.png",
		ObjectKey:  "uploads/job-42/source",
		Options:    testOptions(),
		Metrics: &domain.QualityMetrics{
			SharpnessScore: 1342.5,
			BlurClass:      domain.BlurSharp,
			Confidence:     0.9,
		},
		Outputs: []domain.DerivativeRecord{
			{Name: "image-1920.webp", Format: "webp", Path: "derivatives/job-42/webp/image-1920.webp", Bytes: 1000, Width: 1920, Height: 1080},
			{Name: "image-1920.jpg", Format: "jpg", Path: "derivatives/job-42/jpg/image-1920.jpg", Bytes: 2000, Width: 1920, Height: 1080},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := jobStore.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	handler := newTestServer(t, jobStore, &fakeEnqueuer{}, nil).Handler()
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-42", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status      string `json:"status"`
		Derivatives []struct {
			Name        string `json:"name"`
			DownloadURL string `json:"download_url"`
		} `json:"derivatives"`
		Quality *domain.QualityMetrics `json:"quality"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != domain.JobStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", resp.Status)
	}
	if len(resp.Derivatives) != 2 {
		t.Fatalf("expected 2 derivatives, got %d", len(resp.Derivatives))
	}
	if resp.Derivatives[0].Name != "image-1920.webp" {
		t.Fatalf("unexpected first derivative: %s", resp.Derivatives[0].Name)
	}
	if resp.Derivatives[0].DownloadURL == "" {
		t.Fatal("expected a presigned download URL for object-backed jobs")
	}
	if resp.Quality == nil || resp.Quality.BlurClass != domain.BlurSharp {
		t.Fatalf("expected quality metrics in response, got %+v", resp.Quality)
	}
}

func TestGetJobNotFound(t *testing.T) {
	handler := newTestServer(t, store.NewMemoryJobStore(), &fakeEnqueuer{}, nil).Handler()
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/jobs":              "/v1/jobs",
		"/v1/jobs/abc123":       "/v1/jobs/{id}",
		"/v1/jobs/abc123/start": "/v1/jobs/{id}/start",
		"/healthz":              "/healthz",
		"/metrics":              "/metrics",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
