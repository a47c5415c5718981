package schedule

import (
	"context"
	"fmt"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

// ScheduleID builds the deterministic row ID for a deployment's schedule
// node, so re-registering a deployment upserts instead of duplicating.
func ScheduleID(deploymentID, nodeID string) string {
	return deploymentID + ":" + nodeID
}

// Register stores (or refreshes) the schedule row backing one trigger node.
// The poller picks it up on its next sweep.
func Register(ctx context.Context, repo persistence.ScheduleRepository, deploymentID, nodeID, cronExpression string) (*models.Schedule, error) {
	schedule, err := models.NewSchedule(ScheduleID(deploymentID, nodeID), deploymentID, nodeID, cronExpression)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule for node %s: %w", nodeID, err)
	}

	if err := repo.Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("save schedule %s: %w", schedule.ID, err)
	}

	return schedule, nil
}

// Deregister removes every schedule row of a deployment, typically when a
// newer deployment supersedes it.
func Deregister(ctx context.Context, repo persistence.ScheduleRepository, deploymentID string) error {
	if err := repo.DeleteByDeployment(ctx, deploymentID); err != nil {
		return fmt.Errorf("delete schedules for deployment %s: %w", deploymentID, err)
	}

	return nil
}
