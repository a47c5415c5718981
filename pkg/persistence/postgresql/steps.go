package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

// StepRepository handles durable step log database operations. The table's
// (execution_id, node_id, seq) primary key carries the append-once guarantee
// that replay correctness depends on.
type StepRepository struct {
	db *sql.DB
}

// ListSteps returns a node's recorded steps in sequence order.
func (r *StepRepository) ListSteps(ctx context.Context, executionID, nodeID string) ([]*models.StepRecord, error) {
	query := `
		SELECT execution_id, node_id, seq, key, kind, result, wake_at, completed_at
		FROM execution_steps
		WHERE execution_id = $1 AND node_id = $2
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, executionID, nodeID)
	if err != nil {
		return nil, persistence.NewStepError("ListSteps", executionID, nodeID, 0, err)
	}

	defer func() { _ = rows.Close() }()

	records := make([]*models.StepRecord, 0)

	for rows.Next() {
		var (
			record StepRow
			wakeAt sql.NullTime
			result []byte
		)

		err := rows.Scan(&record.ExecutionID, &record.NodeID, &record.Seq,
			&record.Key, &record.Kind, &result, &wakeAt, &record.CompletedAt)
		if err != nil {
			return nil, persistence.NewStepError("ListSteps", executionID, nodeID, 0, err)
		}

		records = append(records, record.model(result, wakeAt))
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStepError("ListSteps", executionID, nodeID, 0, err)
	}

	return records, nil
}

// AppendStep inserts one step record. A sequence number already taken for
// the (execution, node) pair fails with ErrStepConflict.
func (r *StepRepository) AppendStep(ctx context.Context, record *models.StepRecord) error {
	query := `
		INSERT INTO execution_steps (
			execution_id, node_id, seq, key, kind, result, wake_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var result any
	if len(record.Result) > 0 {
		result = []byte(record.Result)
	}

	_, err := r.db.ExecContext(ctx, query,
		record.ExecutionID, record.NodeID, record.Seq, record.Key, record.Kind,
		result, record.WakeAt, record.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewStepError("AppendStep", record.ExecutionID, record.NodeID, record.Seq,
				persistence.ErrStepConflict)
		}

		return persistence.NewStepError("AppendStep", record.ExecutionID, record.NodeID, record.Seq, err)
	}

	return nil
}

// DeleteSteps removes every step log recorded for an execution.
func (r *StepRepository) DeleteSteps(ctx context.Context, executionID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM execution_steps WHERE execution_id = $1", executionID)
	if err != nil {
		return fmt.Errorf("failed to delete step logs for execution %s: %w", executionID, err)
	}

	return nil
}

// StepRow mirrors the scalar columns of execution_steps.
type StepRow struct {
	ExecutionID string
	NodeID      string
	Seq         int
	Key         string
	Kind        models.StepKind
	CompletedAt sql.NullTime
}

func (row StepRow) model(result []byte, wakeAt sql.NullTime) *models.StepRecord {
	record := &models.StepRecord{
		ExecutionID: row.ExecutionID,
		NodeID:      row.NodeID,
		Seq:         row.Seq,
		Key:         row.Key,
		Kind:        row.Kind,
		WakeAt:      timePtr(wakeAt),
	}

	if len(result) > 0 {
		record.Result = result
	}

	if row.CompletedAt.Valid {
		record.CompletedAt = row.CompletedAt.Time.UTC()
	}

	return record
}
