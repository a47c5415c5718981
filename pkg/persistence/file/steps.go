package file

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

const stepsDir = "steps"

// StepRepository stores durable step logs, one JSON array per
// (execution, node) pair under steps/{execution_id}/{node_id}.json.
type StepRepository struct {
	base *Persistence
}

func (sr *StepRepository) logPath(executionID, nodeID string) string {
	return filepath.Clean(path.Join(sr.base.root, stepsDir, executionID, nodeID+".json"))
}

// ListSteps returns a node's recorded steps in sequence order. A node with
// no recorded steps yields an empty slice.
func (sr *StepRepository) ListSteps(_ context.Context, executionID, nodeID string) ([]*models.StepRecord, error) {
	sr.base.mu.Lock()
	defer sr.base.mu.Unlock()

	return sr.load(executionID, nodeID)
}

// AppendStep appends one step record. The record's sequence number must be
// the next free slot for its (execution, node) pair; anything else means a
// concurrent replay already recorded it and is rejected with ErrStepConflict.
func (sr *StepRepository) AppendStep(_ context.Context, record *models.StepRecord) error {
	sr.base.mu.Lock()
	defer sr.base.mu.Unlock()

	records, err := sr.load(record.ExecutionID, record.NodeID)
	if err != nil {
		return err
	}

	if record.Seq != len(records) {
		return persistence.NewStepError("AppendStep", record.ExecutionID, record.NodeID, record.Seq,
			persistence.ErrStepConflict)
	}

	records = append(records, record)

	if err := sr.base.writeRecord(sr.logPath(record.ExecutionID, record.NodeID), records); err != nil {
		return persistence.NewStepError("AppendStep", record.ExecutionID, record.NodeID, record.Seq, err)
	}

	return nil
}

// DeleteSteps removes every step log recorded for an execution.
func (sr *StepRepository) DeleteSteps(_ context.Context, executionID string) error {
	sr.base.mu.Lock()
	defer sr.base.mu.Unlock()

	dir := filepath.Clean(path.Join(sr.base.root, stepsDir, executionID))

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete step logs for execution %s: %w", executionID, err)
	}

	return nil
}

func (sr *StepRepository) load(executionID, nodeID string) ([]*models.StepRecord, error) {
	var records []*models.StepRecord

	found, err := sr.base.readRecord(sr.logPath(executionID, nodeID), &records)
	if err != nil {
		return nil, persistence.NewStepError("ListSteps", executionID, nodeID, 0, err)
	}

	if !found {
		return []*models.StepRecord{}, nil
	}

	return records, nil
}
