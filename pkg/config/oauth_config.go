// Package config provides configuration loading for the strand binaries.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OAuthProvider configures token refresh for one integration provider. The
// client secret may be inlined or, preferably, named via ClientSecretEnv and
// resolved from the environment at load time.
type OAuthProvider struct {
	Provider        string `yaml:"provider"`
	TokenURL        string `yaml:"token_url"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	ClientSecretEnv string `yaml:"client_secret_env"`
}

// OAuthConfigFile represents the structure of the oauth.yaml file.
type OAuthConfigFile struct {
	Providers []OAuthProvider `yaml:"providers"`
}

// LoadOAuthConfig loads OAuth provider configuration from a YAML file.
func LoadOAuthConfig(path string) ([]OAuthProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var configFile OAuthConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	providers := configFile.Providers
	for i := range providers {
		if providers[i].ClientSecretEnv != "" {
			providers[i].ClientSecret = os.Getenv(providers[i].ClientSecretEnv)
		}
	}

	if err := validateOAuthProviders(providers); err != nil {
		return nil, err
	}

	return providers, nil
}

// LoadOAuthConfigOrDefault attempts to load OAuth config from a file, falling
// back to no providers if the file doesn't exist. Without providers, expired
// integrations fail instead of refreshing.
func LoadOAuthConfigOrDefault(path string) []OAuthProvider {
	providers, err := LoadOAuthConfig(path)
	if err != nil {
		return nil
	}

	return providers
}

func validateOAuthProviders(providers []OAuthProvider) error {
	seen := make(map[string]bool, len(providers))

	for _, p := range providers {
		if p.Provider == "" {
			return fmt.Errorf("oauth provider entry is missing a provider name")
		}

		if p.TokenURL == "" {
			return fmt.Errorf("oauth provider %s is missing token_url", p.Provider)
		}

		if seen[p.Provider] {
			return fmt.Errorf("oauth provider %s is configured twice", p.Provider)
		}

		seen[p.Provider] = true
	}

	return nil
}
