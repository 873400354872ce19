package store

import (
	"context"

	"github.com/pixelgrid/pixelgrid/internal/domain"
)

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	// SetResult attaches the finished batch to the job: the quality metrics
	// of the source and the manifest of emitted derivatives.
	SetResult(ctx context.Context, id string, metrics domain.QualityMetrics, outputs []domain.DerivativeRecord) error
}
