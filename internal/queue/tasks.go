package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pixelgrid/pixelgrid/internal/domain"
)

const TypeGenerateDerivatives = "derivatives:generate"

type GenerateDerivativesPayload struct {
	JobID       string         `json:"job_id"`
	SourceType  string         `json:"source_type"`
	SourceName  string         `json:"source_name,omitempty"`
	WebhookURL  string         `json:"webhook_url,omitempty"`
	ObjectKey   string         `json:"object_key"`
	Options     domain.Options `json:"options"`
	RequestedAt time.Time      `json:"requested_at"`
}

func NewGenerateDerivativesTask(payload GenerateDerivativesPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal derivatives payload: %w", err)
	}
	return asynq.NewTask(TypeGenerateDerivatives, body), nil
}

func ParseGenerateDerivativesPayload(task *asynq.Task) (GenerateDerivativesPayload, error) {
	var payload GenerateDerivativesPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return GenerateDerivativesPayload{}, fmt.Errorf("unmarshal derivatives payload: %w", err)
	}
	return payload, nil
}
