package integrations_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/integrations"
	"github.com/strandhq/strand/pkg/models"
)

func staleIntegration() *models.Integration {
	return &models.Integration{
		ID:           "int-1",
		OwnerID:      "owner-1",
		Provider:     "modelapi",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().UTC().Add(-time.Hour),
	}
}

func TestOAuthRefresher(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("refresh token grant", func(t *testing.T) {
		t.Parallel()

		var gotForm map[string]string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			gotForm = map[string]string{
				"grant_type":    r.PostFormValue("grant_type"),
				"refresh_token": r.PostFormValue("refresh_token"),
				"client_id":     r.PostFormValue("client_id"),
				"client_secret": r.PostFormValue("client_secret"),
			}

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "fresh-token",
				"refresh_token": "refresh-2",
				"expires_in":    3600,
			})
		}))
		t.Cleanup(server.Close)

		refresh := integrations.NewOAuthRefresher(map[string]integrations.Endpoint{
			"modelapi": {TokenURL: server.URL, ClientID: "strand-app", ClientSecret: "s3cret"},
		}, server.Client())

		refreshed, err := refresh(ctx, staleIntegration())
		require.NoError(t, err)

		assert.Equal(t, "fresh-token", refreshed.AccessToken)
		assert.Equal(t, "refresh-2", refreshed.RefreshToken)
		assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), refreshed.ExpiresAt, time.Minute)

		assert.Equal(t, map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": "refresh-1",
			"client_id":     "strand-app",
			"client_secret": "s3cret",
		}, gotForm)
	})

	t.Run("rotated refresh token is kept when omitted", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "fresh-token",
				"expires_in":   600,
			})
		}))
		t.Cleanup(server.Close)

		refresh := integrations.NewOAuthRefresher(map[string]integrations.Endpoint{
			"modelapi": {TokenURL: server.URL, ClientID: "strand-app"},
		}, server.Client())

		refreshed, err := refresh(ctx, staleIntegration())
		require.NoError(t, err)

		assert.Equal(t, "fresh-token", refreshed.AccessToken)
		assert.Equal(t, "refresh-1", refreshed.RefreshToken, "previous refresh token survives")
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Parallel()

		refresh := integrations.NewOAuthRefresher(map[string]integrations.Endpoint{}, nil)

		_, err := refresh(ctx, staleIntegration())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no oauth endpoint configured")
	})

	t.Run("denied grant", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		t.Cleanup(server.Close)

		refresh := integrations.NewOAuthRefresher(map[string]integrations.Endpoint{
			"modelapi": {TokenURL: server.URL, ClientID: "strand-app"},
		}, server.Client())

		_, err := refresh(ctx, staleIntegration())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid_grant")
	})

	t.Run("missing refresh token", func(t *testing.T) {
		t.Parallel()

		refresh := integrations.NewOAuthRefresher(map[string]integrations.Endpoint{
			"modelapi": {TokenURL: "http://localhost:0", ClientID: "strand-app"},
		}, nil)

		integration := staleIntegration()
		integration.RefreshToken = ""

		_, err := refresh(ctx, integration)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no refresh token")
	})
}
