// Package schedule fires executions for stored cron schedules. Schedules
// are declarative rows with a precomputed NextDueAt; one poller per
// activator sweeps the due set instead of keeping a timer per entry.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
	"github.com/strandhq/strand/pkg/protocol"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 100
)

// Poller implements protocol.Trigger for every schedule at once: Start it
// one time and it fires each due schedule, then advances its NextDueAt.
type Poller struct {
	repo     persistence.ScheduleRepository
	interval time.Duration
	batch    int
	logger   *slog.Logger

	callback protocol.TriggerCallback
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type PollerOption func(*Poller)

// WithPollInterval sets how often the due set is swept.
func WithPollInterval(interval time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = interval
	}
}

// WithBatchSize caps how many due schedules one sweep fires.
func WithBatchSize(batch int) PollerOption {
	return func(p *Poller) {
		p.batch = batch
	}
}

func NewPoller(repo persistence.ScheduleRepository, logger *slog.Logger, opts ...PollerOption) *Poller {
	poller := &Poller{
		repo:     repo,
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
		logger:   logger.With("module", "schedule_poller"),
		stopCh:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(poller)
	}

	return poller
}

func (p *Poller) Validate() error {
	if p.repo == nil {
		return errors.New("schedule poller requires a schedule repository")
	}

	if p.interval <= 0 {
		return errors.New("schedule poller interval must be positive")
	}

	return nil
}

// Start begins sweeping. A stopped poller may be started again.
func (p *Poller) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	if err := p.Validate(); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "Starting schedule poller", "interval", p.interval)
	p.callback = callback
	p.stopCh = make(chan struct{})
	p.wg.Add(1)

	go p.run(ctx, p.stopCh)

	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	p.logger.InfoContext(ctx, "Stopping schedule poller")
	close(p.stopCh)
	p.wg.Wait()

	return nil
}

func (p *Poller) run(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Poller) sweep(ctx context.Context) {
	now := time.Now().UTC()

	due, err := p.repo.Due(ctx, now, p.batch)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to load due schedules", "error", err)

		return
	}

	for _, schedule := range due {
		p.fire(ctx, schedule, now)
	}
}

// fire invokes the callback for one due schedule and advances it. A failed
// firing is not retried; the schedule moves on to its next cron slot so a
// persistent callback error cannot wedge the sweep.
func (p *Poller) fire(ctx context.Context, schedule *models.Schedule, now time.Time) {
	firing := &models.ScheduleFiring{
		ScheduleID:     schedule.ID,
		CronExpression: schedule.CronExpression,
		ScheduledFor:   schedule.NextDueAt,
		FiredAt:        now,
	}

	fired := protocol.FiredTrigger{
		DeploymentID: schedule.DeploymentID,
		NodeID:       schedule.NodeID,
		Kind:         models.TriggerKindSchedule,
		Schedule:     firing,
	}

	if err := p.callback(ctx, fired); err != nil {
		p.logger.ErrorContext(ctx, "Schedule firing rejected",
			"schedule_id", schedule.ID, "error", err)
	}

	if err := schedule.Advance(); err != nil {
		// The stored expression no longer parses; deactivate instead of
		// re-firing it every sweep.
		p.logger.ErrorContext(ctx, "Deactivating schedule with invalid cron expression",
			"schedule_id", schedule.ID, "error", err)

		schedule.Active = false
	}

	if err := p.repo.Save(ctx, schedule); err != nil {
		p.logger.ErrorContext(ctx, "Failed to advance schedule",
			"schedule_id", schedule.ID, "error", err)
	}
}
