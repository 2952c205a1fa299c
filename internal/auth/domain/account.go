package domain

import "time"

// Account holds the fields of a user account that the second-factor login
// reads. Provisioning lives elsewhere; this service never mutates accounts.
type Account struct {
	ID          string
	DisplayName string
	Email       string
	AvatarURL   string
	DefaultRole string
	MFAEnabled  bool
	Active      bool
	OTPSecret   *string // base32 TOTP secret (nullable)
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasOTPSecret reports whether a non-empty shared secret is set.
func (a Account) HasOTPSecret() bool {
	return a.OTPSecret != nil && *a.OTPSecret != ""
}

// Profile projects the account into the public user shape returned with a session.
func (a Account) Profile() UserProfile {
	return UserProfile{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Email:       a.Email,
		AvatarURL:   a.AvatarURL,
	}
}
