package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
	"github.com/strandhq/strand/pkg/protocol"
	"github.com/strandhq/strand/pkg/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type firingRecorder struct {
	mu    sync.Mutex
	fired []protocol.FiredTrigger
	err   error
}

func (r *firingRecorder) callback(_ context.Context, fired protocol.FiredTrigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fired = append(r.fired, fired)

	return r.err
}

func (r *firingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.fired)
}

func (r *firingRecorder) first() protocol.FiredTrigger {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.fired[0]
}

// seedDue stores a schedule whose NextDueAt is already in the past.
func seedDue(t *testing.T, repo persistence.ScheduleRepository, id string) *models.Schedule {
	t.Helper()

	schedule := &models.Schedule{
		ID:             id,
		DeploymentID:   "dep-1",
		NodeID:         "cron",
		CronExpression: "*/5 * * * *",
		NextDueAt:      time.Now().UTC().Add(-time.Minute),
		Active:         true,
	}
	require.NoError(t, repo.Save(context.Background(), schedule))

	return schedule
}

func startPoller(t *testing.T, repo persistence.ScheduleRepository, recorder *firingRecorder) *Poller {
	t.Helper()

	poller := NewPoller(repo, testLogger(), WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, poller.Start(ctx, recorder.callback))
	t.Cleanup(func() {
		_ = poller.Stop(context.Background())
	})

	return poller
}

func TestPollerFiresDueSchedule(t *testing.T) {
	repo := testutil.NewMemoryPersistence().ScheduleRepository()
	seeded := seedDue(t, repo, "dep-1:cron")

	recorder := &firingRecorder{}
	startPoller(t, repo, recorder)

	require.Eventually(t, func() bool {
		return recorder.count() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	fired := recorder.first()
	assert.Equal(t, "dep-1", fired.DeploymentID)
	assert.Equal(t, "cron", fired.NodeID)
	assert.Equal(t, models.TriggerKindSchedule, fired.Kind)

	require.NotNil(t, fired.Schedule)
	assert.Equal(t, "dep-1:cron", fired.Schedule.ScheduleID)
	assert.Equal(t, "*/5 * * * *", fired.Schedule.CronExpression)
	assert.True(t, fired.Schedule.ScheduledFor.Equal(seeded.NextDueAt))
	assert.False(t, fired.Schedule.FiredAt.IsZero())

	// The schedule advanced to a future slot, so it does not re-fire.
	advanced, err := repo.GetByID(context.Background(), "dep-1:cron")
	require.NoError(t, err)
	assert.True(t, advanced.NextDueAt.After(time.Now().UTC()))
}

func TestPollerAdvancesOnCallbackError(t *testing.T) {
	repo := testutil.NewMemoryPersistence().ScheduleRepository()
	seedDue(t, repo, "dep-1:cron")

	recorder := &firingRecorder{err: errors.New("persistence unavailable")}
	startPoller(t, repo, recorder)

	require.Eventually(t, func() bool {
		return recorder.count() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	// A rejected firing is skipped, not retried: the next due time moves on.
	advanced, err := repo.GetByID(context.Background(), "dep-1:cron")
	require.NoError(t, err)
	assert.True(t, advanced.NextDueAt.After(time.Now().UTC()))
}

func TestPollerIgnoresInactiveAndFutureSchedules(t *testing.T) {
	repo := testutil.NewMemoryPersistence().ScheduleRepository()

	inactive := seedDue(t, repo, "dep-1:off")
	inactive.Active = false
	require.NoError(t, repo.Save(context.Background(), inactive))

	future := seedDue(t, repo, "dep-1:later")
	future.NextDueAt = time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.Save(context.Background(), future))

	recorder := &firingRecorder{}
	startPoller(t, repo, recorder)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, recorder.count())
}

func TestPollerValidate(t *testing.T) {
	poller := NewPoller(nil, testLogger())
	require.Error(t, poller.Validate())

	err := poller.Start(context.Background(), (&firingRecorder{}).callback)
	require.Error(t, err)
}

func TestRegisterAndDeregister(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemoryPersistence().ScheduleRepository()

	schedule, err := Register(ctx, repo, "dep-1", "cron", "0 9 * * *")
	require.NoError(t, err)
	assert.Equal(t, "dep-1:cron", schedule.ID)
	assert.True(t, schedule.Active)
	assert.True(t, schedule.NextDueAt.After(time.Now().UTC().Add(-time.Minute)))

	// Re-registering upserts the same row.
	again, err := Register(ctx, repo, "dep-1", "cron", "0 18 * * *")
	require.NoError(t, err)
	assert.Equal(t, schedule.ID, again.ID)

	stored, err := repo.GetByID(ctx, "dep-1:cron")
	require.NoError(t, err)
	assert.Equal(t, "0 18 * * *", stored.CronExpression)

	require.NoError(t, Deregister(ctx, repo, "dep-1"))

	_, err = repo.GetByID(ctx, "dep-1:cron")
	require.ErrorIs(t, err, persistence.ErrScheduleNotFound)
}

func TestRegisterRejectsBadCron(t *testing.T) {
	repo := testutil.NewMemoryPersistence().ScheduleRepository()

	_, err := Register(context.Background(), repo, "dep-1", "cron", "every tuesday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule for node cron")
}
