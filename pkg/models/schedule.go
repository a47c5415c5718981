package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// cronParser accepts the standard 5-field form (minute hour dom month dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron checks a cron expression against the 5-field parser without
// building a schedule.
func ValidateCron(expression string) error {
	_, err := cronParser.Parse(expression)

	return err
}

// Schedule is a stored cron entry backing a schedule trigger node. NextDueAt
// is precomputed so the activator can poll for due schedules with a single
// range query instead of keeping per-entry timers.
type Schedule struct {
	ID             string    `json:"id"              validate:"required"`
	DeploymentID   string    `json:"deployment_id"   validate:"required"`
	NodeID         string    `json:"node_id"         validate:"required"`
	CronExpression string    `json:"cron_expression" validate:"required"`
	NextDueAt      time.Time `json:"next_due_at"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewSchedule creates an active schedule with its first due time computed
// from now.
func NewSchedule(id, deploymentID, nodeID, cronExpression string) (*Schedule, error) {
	now := time.Now().UTC()
	schedule := &Schedule{
		ID:             id,
		DeploymentID:   deploymentID,
		NodeID:         nodeID,
		CronExpression: cronExpression,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := schedule.advance(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// Advance recomputes NextDueAt from the current time, typically right after
// a firing was recorded.
func (s *Schedule) Advance() error {
	return s.advance(time.Now().UTC())
}

func (s *Schedule) advance(from time.Time) error {
	parsed, err := cronParser.Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = parsed.Next(from)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue reports whether the schedule should fire at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate checks identity fields and the cron expression syntax.
func (s *Schedule) Validate() error {
	if s.ID == "" || s.DeploymentID == "" || s.NodeID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	_, err := cronParser.Parse(s.CronExpression)

	return err
}
