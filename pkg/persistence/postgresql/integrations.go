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

// IntegrationRepository handles third-party credential database operations.
type IntegrationRepository struct {
	db *sql.DB
}

const integrationColumns = `
			id
		  , owner_id
		  , provider
		  , access_token
		  , refresh_token
		  , expires_at
		  , created_at
		  , updated_at
`

// GetByID retrieves an integration by its ID.
func (r *IntegrationRepository) GetByID(ctx context.Context, id string) (*models.Integration, error) {
	query := `
		SELECT` + integrationColumns + `
		FROM integrations
		WHERE id = $1
	`

	integration, err := scanIntegration(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrIntegrationNotFound
		}

		return nil, fmt.Errorf("failed to scan integration %s: %w", id, err)
	}

	return integration, nil
}

// ListByOwner returns an owner's integrations ordered by ID.
func (r *IntegrationRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Integration, error) {
	query := `
		SELECT` + integrationColumns + `
		FROM integrations
		WHERE owner_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations of %s: %w", ownerID, err)
	}

	defer func() { _ = rows.Close() }()

	var integrations []*models.Integration

	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}

		integrations = append(integrations, integration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating integrations: %w", err)
	}

	return integrations, nil
}

// Save upserts an integration, stamping CreatedAt on first save.
func (r *IntegrationRepository) Save(ctx context.Context, integration *models.Integration) error {
	now := time.Now().UTC()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}

	integration.UpdatedAt = now

	query := `
		INSERT INTO integrations (
			id, owner_id, provider, access_token, refresh_token,
			expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id
		  , provider = EXCLUDED.provider
		  , access_token = EXCLUDED.access_token
		  , refresh_token = EXCLUDED.refresh_token
		  , expires_at = EXCLUDED.expires_at
		  , updated_at = EXCLUDED.updated_at
	`

	var expiresAt any
	if !integration.ExpiresAt.IsZero() {
		expiresAt = integration.ExpiresAt
	}

	_, err := r.db.ExecContext(ctx, query,
		integration.ID, integration.OwnerID, integration.Provider,
		integration.AccessToken, nullString(integration.RefreshToken),
		expiresAt, integration.CreatedAt, integration.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save integration %s: %w", integration.ID, err)
	}

	return nil
}

// Delete removes an integration by its ID.
func (r *IntegrationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM integrations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete integration %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete integration %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.ErrIntegrationNotFound
	}

	return nil
}

func scanIntegration(row interface{ Scan(...any) error }) (*models.Integration, error) {
	var (
		integration  models.Integration
		refreshToken sql.NullString
		expiresAt    sql.NullTime
	)

	err := row.Scan(&integration.ID, &integration.OwnerID, &integration.Provider,
		&integration.AccessToken, &refreshToken, &expiresAt,
		&integration.CreatedAt, &integration.UpdatedAt)
	if err != nil {
		return nil, err
	}

	integration.RefreshToken = refreshToken.String

	if expiresAt.Valid {
		integration.ExpiresAt = expiresAt.Time.UTC()
	}

	return &integration, nil
}
