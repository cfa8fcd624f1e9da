package llm

import (
	"context"
	"strings"
)

// Status is the normalised state of a provider job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobSpec describes one image-to-image request.
type JobSpec struct {
	// ImageURL is an http(s) URL or a data URL of the conditioning image.
	ImageURL       string
	Prompt         string
	InferenceSteps int
	GuidanceScale  float64
	ImageSize      string
}

// PollResult is the only shape callers ever see from PollStatus.
type PollResult struct {
	Status    Status `json:"status"`
	OutputURL string `json:"output_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

func processing() PollResult {
	return PollResult{Status: StatusProcessing}
}

func failed(message string) PollResult {
	return PollResult{Status: StatusFailed, Error: message}
}

// Provider submits jobs and reports their status. PollStatus never returns an
// error: transient trouble is reported as StatusProcessing.
type Provider interface {
	Submit(ctx context.Context, spec JobSpec) (string, error)
	PollStatus(ctx context.Context, requestID string) PollResult
}

// normalizeStatus maps provider-specific status strings onto Status.
// Unknown values keep the job processing.
func normalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "succeeded", "success", "completed", "done", "ok":
		return StatusCompleted
	case "failed", "failure", "error", "cancelled", "canceled", "aborted":
		return StatusFailed
	default:
		// in_queue, in_progress, pending, running ...
		return StatusProcessing
	}
}
