package models

import "time"

// Integration stores the credential material connecting a user account to an
// external provider. Tokens are mutated only by the integration token
// manager, which serializes refreshes per integration.
type Integration struct {
	ID           string    `json:"id"       validate:"required"`
	OwnerID      string    `json:"owner_id" validate:"required"`
	Provider     string    `json:"provider" validate:"required,min=2"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExpiresWithin reports whether the access token is expired, or will expire
// inside the given leeway window. A zero ExpiresAt means the token does not
// expire.
func (i *Integration) ExpiresWithin(leeway time.Duration) bool {
	if i.ExpiresAt.IsZero() {
		return false
	}

	return !time.Now().UTC().Add(leeway).Before(i.ExpiresAt)
}
