package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
	JobStatusCanceled   = "canceled"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

// CreateJobRequest is the API payload registering one derivative job.
type CreateJobRequest struct {
	SourceType string  `json:"source_type"`
	SourceName string  `json:"source_name,omitempty"`
	WebhookURL string  `json:"webhook_url,omitempty"`
	ObjectKey  string  `json:"object_key,omitempty"`
	Options    Options `json:"options"`
}

// Job is one registered derivative-generation job. Metrics and Outputs are
// populated by the worker once the batch finishes.
type Job struct {
	ID         string
	Status     string
	SourceType string
	SourceName string
	WebhookURL string
	ObjectKey  string
	Options    Options
	Metrics    *QualityMetrics
	Outputs    []DerivativeRecord
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	return r.Options.Validate()
}
