// Package file provides file-based persistence for workflows, deployments,
// executions, step logs, integrations and schedules. Each aggregate lives in
// its own directory under the configured root, one JSON document per record.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/strandhq/strand/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface on the local
// file system. It is meant for development and single-worker setups; writes
// are serialized with an in-process mutex, so two processes sharing a root
// can still race each other.
type Persistence struct {
	root string
	mu   sync.Mutex

	workflowRepo    *WorkflowRepository
	deploymentRepo  *DeploymentRepository
	executionRepo   *ExecutionRepository
	stepRepo        *StepRepository
	integrationRepo *IntegrationRepository
	scheduleRepo    *ScheduleRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// The root may be given as a plain path or a "file://" URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	fp := &Persistence{root: cleanRoot}
	fp.workflowRepo = &WorkflowRepository{base: fp}
	fp.deploymentRepo = &DeploymentRepository{base: fp}
	fp.executionRepo = &ExecutionRepository{base: fp}
	fp.stepRepo = &StepRepository{base: fp}
	fp.integrationRepo = &IntegrationRepository{base: fp}
	fp.scheduleRepo = &ScheduleRepository{base: fp}

	return fp
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists and is writable.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(fp.root, 0750); err != nil {
		return fmt.Errorf("persistence root %s is not writable: %w", fp.root, err)
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) DeploymentRepository() persistence.DeploymentRepository {
	return fp.deploymentRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) StepRepository() persistence.StepRepository {
	return fp.stepRepo
}

func (fp *Persistence) IntegrationRepository() persistence.IntegrationRepository {
	return fp.integrationRepo
}

func (fp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return fp.scheduleRepo
}

// recordPath returns the document path for one record of an aggregate.
func (fp *Persistence) recordPath(aggregate, id string) string {
	return filepath.Clean(path.Join(fp.root, aggregate, id+".json"))
}

// readRecord loads one JSON document into out. It reports false without an
// error when the document does not exist.
func (fp *Persistence) readRecord(filePath string, out any) (bool, error) {
	body, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", filePath, err)
	}

	return true, nil
}

// writeRecord marshals v and writes it, creating the aggregate directory on
// first use.
func (fp *Persistence) writeRecord(filePath string, v any) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filePath, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filePath, err)
	}

	return os.WriteFile(filePath, data, 0600)
}

// recordIDs lists the record IDs stored for an aggregate.
func (fp *Persistence) recordIDs(aggregate string) ([]string, error) {
	entries, err := os.ReadDir(path.Join(fp.root, aggregate))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", aggregate, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
