package integrations_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/integrations"
	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
	"github.com/strandhq/strand/pkg/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedIntegration(t *testing.T, store *testutil.MemoryPersistence, id string, expiresAt time.Time) {
	t.Helper()

	require.NoError(t, store.IntegrationRepository().Save(context.Background(), &models.Integration{
		ID:           id,
		OwnerID:      "owner-1",
		Provider:     "modelapi",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
	}))
}

func TestGetValidAccessToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("valid token is returned as is", func(t *testing.T) {
		t.Parallel()

		store := testutil.NewMemoryPersistence()
		seedIntegration(t, store, "int-1", time.Now().UTC().Add(time.Hour))

		manager := integrations.NewManager(store, nil, testLogger())

		token, err := manager.GetValidAccessToken(ctx, "int-1")
		require.NoError(t, err)
		assert.Equal(t, "stale-token", token)
	})

	t.Run("non-expiring token never refreshes", func(t *testing.T) {
		t.Parallel()

		store := testutil.NewMemoryPersistence()
		seedIntegration(t, store, "int-1", time.Time{})

		manager := integrations.NewManager(store, nil, testLogger())

		token, err := manager.GetValidAccessToken(ctx, "int-1")
		require.NoError(t, err)
		assert.Equal(t, "stale-token", token)
	})

	t.Run("unknown integration", func(t *testing.T) {
		t.Parallel()

		manager := integrations.NewManager(testutil.NewMemoryPersistence(), nil, testLogger())

		_, err := manager.GetValidAccessToken(ctx, "missing")
		assert.ErrorIs(t, err, persistence.ErrIntegrationNotFound)
	})

	t.Run("expired token without refresher fails", func(t *testing.T) {
		t.Parallel()

		store := testutil.NewMemoryPersistence()
		seedIntegration(t, store, "int-1", time.Now().UTC().Add(-time.Hour))

		manager := integrations.NewManager(store, nil, testLogger())

		_, err := manager.GetValidAccessToken(ctx, "int-1")
		assert.ErrorIs(t, err, integrations.ErrRefreshFailed)
	})

	t.Run("refresh errors are wrapped", func(t *testing.T) {
		t.Parallel()

		store := testutil.NewMemoryPersistence()
		seedIntegration(t, store, "int-1", time.Now().UTC().Add(-time.Hour))

		refresh := func(_ context.Context, _ *models.Integration) (*models.Integration, error) {
			return nil, errors.New("provider says no")
		}

		manager := integrations.NewManager(store, refresh, testLogger())

		_, err := manager.GetValidAccessToken(ctx, "int-1")
		require.ErrorIs(t, err, integrations.ErrRefreshFailed)
		assert.Contains(t, err.Error(), "provider says no")
	})
}

func TestConcurrentRefreshIsShared(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testutil.NewMemoryPersistence()
	seedIntegration(t, store, "int-1", time.Now().UTC().Add(-time.Hour))

	var refreshCalls atomic.Int32

	refresh := func(_ context.Context, integration *models.Integration) (*models.Integration, error) {
		refreshCalls.Add(1)
		time.Sleep(20 * time.Millisecond)

		fresh := *integration
		fresh.AccessToken = "fresh-token"
		fresh.ExpiresAt = time.Now().UTC().Add(time.Hour)

		return &fresh, nil
	}

	manager := integrations.NewManager(store, refresh, testLogger())

	const callers = 10

	var wg sync.WaitGroup

	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tokens[i], errs[i] = manager.GetValidAccessToken(ctx, "int-1")
		}()
	}

	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh-token", tokens[i])
	}

	assert.Equal(t, int32(1), refreshCalls.Load(), "concurrent callers share one refresh")

	stored, err := store.IntegrationRepository().GetByID(ctx, "int-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", stored.AccessToken, "refreshed credential is persisted")

	// A follow-up call sees the fresh token without another refresh
	token, err := manager.GetValidAccessToken(ctx, "int-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, int32(1), refreshCalls.Load())
}
