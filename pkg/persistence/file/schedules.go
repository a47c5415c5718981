package file

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

const schedulesDir = "schedules"

// ScheduleRepository stores cron schedules backing schedule trigger nodes.
type ScheduleRepository struct {
	base *Persistence
}

// GetByID retrieves a schedule by its ID.
func (sr *ScheduleRepository) GetByID(_ context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule

	found, err := sr.base.readRecord(sr.base.recordPath(schedulesDir, id), &schedule)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrScheduleNotFound
	}

	return &schedule, nil
}

// Save writes a schedule document.
func (sr *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	sr.base.mu.Lock()
	defer sr.base.mu.Unlock()

	return sr.base.writeRecord(sr.base.recordPath(schedulesDir, schedule.ID), schedule)
}

// Due returns active schedules whose NextDueAt is at or before now, ordered
// by due time. The file backend scans every schedule; the PostgreSQL backend
// does this with an indexed range query.
func (sr *ScheduleRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.Schedule, error) {
	ids, err := sr.base.recordIDs(schedulesDir)
	if err != nil {
		return nil, err
	}

	var due []*models.Schedule

	for _, id := range ids {
		schedule, err := sr.GetByID(ctx, id)
		if err != nil {
			if persistence.IsScheduleNotFound(err) {
				continue
			}

			return nil, err
		}

		if schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].NextDueAt.Before(due[j].NextDueAt) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

// DeleteByDeployment removes every schedule created for a deployment.
func (sr *ScheduleRepository) DeleteByDeployment(ctx context.Context, deploymentID string) error {
	ids, err := sr.base.recordIDs(schedulesDir)
	if err != nil {
		return err
	}

	for _, id := range ids {
		schedule, err := sr.GetByID(ctx, id)
		if err != nil {
			if persistence.IsScheduleNotFound(err) {
				continue
			}

			return err
		}

		if schedule.DeploymentID != deploymentID {
			continue
		}

		sr.base.mu.Lock()
		err = os.Remove(sr.base.recordPath(schedulesDir, id))
		sr.base.mu.Unlock()

		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}
