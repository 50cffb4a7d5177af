package models

import "time"

// Credential is the carrier OAuth access grant. At most one is current.
type Credential struct {
	AccessToken  string `db:"access_token"`
	RefreshToken string `db:"refresh_token"`
	ExpiresAt    int64  `db:"expires_at"` // Unix timestamp, safety margin already applied
	CreatedAt    int64  `db:"created_at"`
}

// IsValid reports whether the credential is usable at now.
func (c *Credential) IsValid(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return now.Unix() < c.ExpiresAt
}
