package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job tracks one generation run: a stored log sample in, one rule out.
// StartedAt is set on the first transition to processing and kept across
// retries so the timeout budget spans all attempts.
type Job struct {
	ID              uuid.UUID  `json:"id"`
	LogFileID       uuid.UUID  `json:"log_file_id"`
	Status          JobStatus  `json:"status"`
	RetryCount      int        `json:"retry_count"`
	RequestedRuleID *int       `json:"requested_rule_id,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
