package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/strandhq/strand/pkg/models"
)

// Endpoint locates one provider's OAuth2 token endpoint and the client
// credentials strand presents to it.
type Endpoint struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

const refreshTimeout = 30 * time.Second

// NewOAuthRefresher returns a RefreshFunc implementing the OAuth2
// refresh_token grant. Providers without an endpoint entry fail to refresh.
func NewOAuthRefresher(endpoints map[string]Endpoint, client *http.Client) RefreshFunc {
	if client == nil {
		client = &http.Client{Timeout: refreshTimeout}
	}

	return func(ctx context.Context, integration *models.Integration) (*models.Integration, error) {
		endpoint, ok := endpoints[integration.Provider]
		if !ok {
			return nil, fmt.Errorf("no oauth endpoint configured for provider %s", integration.Provider)
		}

		if integration.RefreshToken == "" {
			return nil, fmt.Errorf("integration has no refresh token")
		}

		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", integration.RefreshToken)
		form.Set("client_id", endpoint.ClientID)

		if endpoint.ClientSecret != "" {
			form.Set("client_secret", endpoint.ClientSecret)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TokenURL,
			strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("failed to build token request: %w", err)
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("token request failed: %w", err)
		}

		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read token response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
		}

		var grant struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int64  `json:"expires_in"`
		}

		if err := json.Unmarshal(body, &grant); err != nil {
			return nil, fmt.Errorf("failed to decode token response: %w", err)
		}

		if grant.AccessToken == "" {
			return nil, fmt.Errorf("token endpoint returned no access token")
		}

		refreshed := &models.Integration{
			AccessToken:  grant.AccessToken,
			RefreshToken: integration.RefreshToken,
			UpdatedAt:    time.Now().UTC(),
		}

		// Endpoints may rotate the refresh token on every grant
		if grant.RefreshToken != "" {
			refreshed.RefreshToken = grant.RefreshToken
		}

		if grant.ExpiresIn > 0 {
			refreshed.ExpiresAt = time.Now().UTC().Add(time.Duration(grant.ExpiresIn) * time.Second)
		}

		return refreshed, nil
	}
}
