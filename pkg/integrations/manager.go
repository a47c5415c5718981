// Package integrations manages third-party credentials and hands out valid
// access tokens to nodes.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

// ErrRefreshFailed is returned when an expired credential could not be
// refreshed. The node sees this as a regular execution error.
var ErrRefreshFailed = errors.New("integration token refresh failed")

// defaultLeeway refreshes tokens slightly before they expire so a token
// handed to a node does not die mid-request.
const defaultLeeway = 2 * time.Minute

// RefreshFunc exchanges an expired credential for a fresh one against the
// provider's token endpoint. Implementations must not persist the result;
// the manager does that.
type RefreshFunc func(ctx context.Context, integration *models.Integration) (*models.Integration, error)

// Manager resolves integration IDs to valid access tokens. Concurrent
// requests for the same expired integration share a single refresh.
type Manager struct {
	store   persistence.Persistence
	refresh RefreshFunc
	logger  *slog.Logger
	leeway  time.Duration
	group   singleflight.Group
}

// NewManager creates an integration manager. The refresh function may be nil,
// in which case expired credentials fail instead of refreshing.
func NewManager(store persistence.Persistence, refresh RefreshFunc, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		refresh: refresh,
		logger:  logger.With("module", "integrations"),
		leeway:  defaultLeeway,
	}
}

// GetValidAccessToken returns an access token for the integration that is
// valid for at least the leeway window, refreshing the credential first when
// necessary.
func (m *Manager) GetValidAccessToken(ctx context.Context, integrationID string) (string, error) {
	integration, err := m.store.IntegrationRepository().GetByID(ctx, integrationID)
	if err != nil {
		return "", fmt.Errorf("integration %s: %w", integrationID, err)
	}

	if !integration.ExpiresWithin(m.leeway) {
		return integration.AccessToken, nil
	}

	token, err, _ := m.group.Do(integrationID, func() (any, error) {
		return m.refreshLocked(ctx, integrationID)
	})
	if err != nil {
		return "", err
	}

	return token.(string), nil
}

// refreshLocked runs inside the singleflight slot for one integration ID.
func (m *Manager) refreshLocked(ctx context.Context, integrationID string) (string, error) {
	// A previous flight may have refreshed while this caller was queued
	integration, err := m.store.IntegrationRepository().GetByID(ctx, integrationID)
	if err != nil {
		return "", fmt.Errorf("integration %s: %w", integrationID, err)
	}

	if !integration.ExpiresWithin(m.leeway) {
		return integration.AccessToken, nil
	}

	if m.refresh == nil {
		return "", fmt.Errorf("%w: integration %s is expired and no refresher is configured",
			ErrRefreshFailed, integrationID)
	}

	m.logger.Info("Refreshing integration token",
		"integration_id", integrationID, "provider", integration.Provider)

	refreshed, err := m.refresh(ctx, integration)
	if err != nil {
		return "", fmt.Errorf("%w: integration %s: %s", ErrRefreshFailed, integrationID, err)
	}

	refreshed.ID = integration.ID
	refreshed.OwnerID = integration.OwnerID
	refreshed.Provider = integration.Provider

	if err := m.store.IntegrationRepository().Save(ctx, refreshed); err != nil {
		return "", fmt.Errorf("failed to persist refreshed integration %s: %w", integrationID, err)
	}

	return refreshed.AccessToken, nil
}
