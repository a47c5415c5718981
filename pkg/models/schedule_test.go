package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedule_ComputesNextDueAt(t *testing.T) {
	schedule, err := NewSchedule("schedule-1", "deployment-1", "cron-node", "*/5 * * * *")
	require.NoError(t, err)

	assert.True(t, schedule.Active)
	assert.False(t, schedule.NextDueAt.IsZero())
	assert.True(t, schedule.NextDueAt.After(time.Now().UTC().Add(-time.Second)))
}

func TestNewSchedule_RejectsBadExpression(t *testing.T) {
	_, err := NewSchedule("schedule-1", "deployment-1", "cron-node", "not a cron line")
	assert.Error(t, err)
}

func TestSchedule_IsDue(t *testing.T) {
	schedule, err := NewSchedule("schedule-1", "deployment-1", "cron-node", "0 * * * *")
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Minute)
	schedule.NextDueAt = past

	assert.True(t, schedule.IsDue(time.Now().UTC()))

	schedule.Active = false
	assert.False(t, schedule.IsDue(time.Now().UTC()))
}

func TestSchedule_Advance(t *testing.T) {
	schedule, err := NewSchedule("schedule-1", "deployment-1", "cron-node", "0 0 * * *")
	require.NoError(t, err)

	first := schedule.NextDueAt
	require.NoError(t, schedule.Advance())

	// Advancing from now keeps the same upcoming midnight
	assert.Equal(t, first, schedule.NextDueAt)
	assert.True(t, schedule.NextDueAt.After(time.Now().UTC()))
}

func TestSchedule_Validate(t *testing.T) {
	schedule, err := NewSchedule("schedule-1", "deployment-1", "cron-node", "30 6 * * 1")
	require.NoError(t, err)
	assert.NoError(t, schedule.Validate())

	schedule.DeploymentID = ""
	assert.ErrorIs(t, schedule.Validate(), ErrInvalidSchedule)

	schedule.DeploymentID = "deployment-1"
	schedule.CronExpression = "61 * * * *"
	assert.Error(t, schedule.Validate())
}
