package entity

import (
	"time"

	"github.com/google/uuid"
)

// Rule is the generated detection definition for a completed job.
// Exactly one rule may exist per job; it is created only when the job
// transitions to completed.
type Rule struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	RuleXML   string    `json:"rule_xml"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
