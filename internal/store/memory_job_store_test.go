package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pixelgrid/pixelgrid/internal/domain"
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	job := domain.Job{
		ID:         "job-1",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  "input.png",
		Options: domain.Options{
			Quality:     80,
			Formats:     []domain.Format{domain.FormatWEBP},
			Breakpoints: []domain.Breakpoint{{Name: "Desktop", WidthPx: 1920}},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusProcessing)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.JobStatusProcessing {
		t.Fatalf("expected processing, got %s", updated.Status)
	}

	metrics := domain.QualityMetrics{SharpnessScore: 1234, BlurClass: domain.BlurSharp, Confidence: 0.9}
	outputs := []domain.DerivativeRecord{{Name: "image-1920.webp", Format: "webp", Bytes: 100, Width: 1920, Height: 1080}}
	if err := s.SetResult(ctx, "job-1", metrics, outputs); err != nil {
		t.Fatalf("set result: %v", err)
	}

	got, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Metrics == nil || got.Metrics.BlurClass != domain.BlurSharp {
		t.Fatalf("expected metrics to be stored, got %+v", got.Metrics)
	}
	if len(got.Outputs) != 1 || got.Outputs[0].Name != "image-1920.webp" {
		t.Fatalf("expected stored manifest, got %+v", got.Outputs)
	}

	if _, err := s.UpdateStatus(ctx, "missing", domain.JobStatusFailed); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := s.SetResult(ctx, "missing", metrics, nil); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
