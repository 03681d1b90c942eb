// Package models defines server-side data models persisted by the account
// repositories.
package models

import "time"

// Avatar references an image kept in the image store.
type Avatar struct {
	// ID is the image store key, used for deletion.
	ID string
	// URL is where clients fetch the image from.
	URL string
}

// IsZero reports whether no image is referenced.
func (a Avatar) IsZero() bool {
	return a.ID == "" && a.URL == ""
}

// Challenge is a pending one-time code. A nil *Challenge means no code is
// outstanding on that track.
type Challenge struct {
	Code      int
	ExpiresAt time.Time
}

// Valid reports whether code matches and now is strictly before expiry.
func (c *Challenge) Valid(code int, now time.Time) bool {
	return c != nil && c.Code == code && now.Before(c.ExpiresAt)
}

// Account is a user account. PasswordHash is empty unless the repository
// was asked to load it.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Avatar       Avatar
	Verified     bool

	// Verification is the email-verification track.
	Verification *Challenge
	// Reset is the password-reset track.
	Reset *Challenge

	CreatedAt time.Time
}
