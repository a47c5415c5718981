package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

// ScheduleRepository handles cron schedule database operations.
type ScheduleRepository struct {
	db *sql.DB
}

const scheduleColumns = `
			id
		  , deployment_id
		  , node_id
		  , cron_expression
		  , next_due_at
		  , active
		  , created_at
		  , updated_at
`

// GetByID retrieves a schedule by its ID.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := `
		SELECT` + scheduleColumns + `
		FROM schedules
		WHERE id = $1
	`

	schedule, err := scanSchedule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrScheduleNotFound
		}

		return nil, fmt.Errorf("failed to scan schedule %s: %w", id, err)
	}

	return schedule, nil
}

// Save upserts a schedule.
func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	query := `
		INSERT INTO schedules (
			id, deployment_id, node_id, cron_expression, next_due_at,
			active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			deployment_id = EXCLUDED.deployment_id
		  , node_id = EXCLUDED.node_id
		  , cron_expression = EXCLUDED.cron_expression
		  , next_due_at = EXCLUDED.next_due_at
		  , active = EXCLUDED.active
		  , updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID, schedule.DeploymentID, schedule.NodeID, schedule.CronExpression,
		schedule.NextDueAt, schedule.Active, schedule.CreatedAt, schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", schedule.ID, err)
	}

	return nil
}

// Due returns active schedules with next_due_at at or before now, ordered by
// due time. The partial index on (next_due_at) WHERE active backs this query.
func (r *ScheduleRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.Schedule, error) {
	query := `
		SELECT` + scheduleColumns + `
		FROM schedules
		WHERE active AND next_due_at <= $1
		ORDER BY next_due_at
	`

	args := []any{now}

	if limit > 0 {
		query += " LIMIT $2"

		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var schedules []*models.Schedule

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

// DeleteByDeployment removes every schedule created for a deployment.
func (r *ScheduleRepository) DeleteByDeployment(ctx context.Context, deploymentID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE deployment_id = $1", deploymentID)
	if err != nil {
		return fmt.Errorf("failed to delete schedules of deployment %s: %w", deploymentID, err)
	}

	return nil
}

func scanSchedule(row interface{ Scan(...any) error }) (*models.Schedule, error) {
	var schedule models.Schedule

	err := row.Scan(&schedule.ID, &schedule.DeploymentID, &schedule.NodeID,
		&schedule.CronExpression, &schedule.NextDueAt, &schedule.Active,
		&schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	schedule.NextDueAt = schedule.NextDueAt.UTC()

	return &schedule, nil
}
