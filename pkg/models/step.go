package models

import (
	"encoding/json"
	"time"
)

// StepKind distinguishes checkpointed work from checkpointed sleeps.
type StepKind string

const (
	StepKindStep  StepKind = "step"
	StepKindSleep StepKind = "sleep"
)

// StepRecord is one entry in the durable step log for a node invocation.
// Records are keyed by (ExecutionID, NodeID, Seq), are immutable once
// written, and are only removed together with the owning execution.
//
// For StepKindStep, Result holds the marshaled return value of the step's
// work function. For StepKindSleep, WakeAt holds the earliest resume time.
type StepRecord struct {
	ExecutionID string          `json:"execution_id" validate:"required"`
	NodeID      string          `json:"node_id"      validate:"required"`
	Seq         int             `json:"seq"          validate:"min=0"`
	Key         string          `json:"key"          validate:"required"`
	Kind        StepKind        `json:"kind"         validate:"required"`
	Result      json.RawMessage `json:"result,omitempty"`
	WakeAt      *time.Time      `json:"wake_at,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}
