package entity

import "time"

// Credential is one row of the `user_credentials` table: the upstream tokens
// held for a subject. Subject is the primary key and never changes once written.
type Credential struct {
	Subject      string    `db:"subject"`
	Email        string    `db:"email"`
	DisplayName  string    `db:"display_name"`
	RefreshToken *string   `db:"refresh_token"` // nil when the provider withheld it
	AccessToken  string    `db:"access_token"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// Renewable reports whether an upstream refresh can be attempted.
func (c *Credential) Renewable() bool {
	return c.RefreshToken != nil && *c.RefreshToken != ""
}

// Fresh reports whether the cached access token is still usable at now.
func (c *Credential) Fresh(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.ExpiresAt)
}
