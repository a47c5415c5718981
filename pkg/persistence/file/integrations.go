package file

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

const integrationsDir = "integrations"

// IntegrationRepository stores third-party credentials. The file backend
// keeps tokens in plain JSON, which is acceptable for local development only.
type IntegrationRepository struct {
	base *Persistence
}

// GetByID retrieves an integration by its ID.
func (ir *IntegrationRepository) GetByID(_ context.Context, id string) (*models.Integration, error) {
	var integration models.Integration

	found, err := ir.base.readRecord(ir.base.recordPath(integrationsDir, id), &integration)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrIntegrationNotFound
	}

	return &integration, nil
}

// ListByOwner returns an owner's integrations ordered by ID.
func (ir *IntegrationRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Integration, error) {
	ids, err := ir.base.recordIDs(integrationsDir)
	if err != nil {
		return nil, err
	}

	var integrations []*models.Integration

	for _, id := range ids {
		integration, err := ir.GetByID(ctx, id)
		if err != nil {
			if persistence.IsIntegrationNotFound(err) {
				continue
			}

			return nil, err
		}

		if integration.OwnerID == ownerID {
			integrations = append(integrations, integration)
		}
	}

	sort.Slice(integrations, func(i, j int) bool { return integrations[i].ID < integrations[j].ID })

	return integrations, nil
}

// Save writes an integration, stamping CreatedAt on first save.
func (ir *IntegrationRepository) Save(_ context.Context, integration *models.Integration) error {
	ir.base.mu.Lock()
	defer ir.base.mu.Unlock()

	now := time.Now().UTC()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}

	integration.UpdatedAt = now

	return ir.base.writeRecord(ir.base.recordPath(integrationsDir, integration.ID), integration)
}

// Delete removes an integration by its ID.
func (ir *IntegrationRepository) Delete(_ context.Context, id string) error {
	ir.base.mu.Lock()
	defer ir.base.mu.Unlock()

	err := os.Remove(ir.base.recordPath(integrationsDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrIntegrationNotFound
		}

		return err
	}

	return nil
}
