package domain

import "time"

// UserProfile is the minimal user projection returned alongside a session.
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url"`
}

// Session is what a successful second-factor exchange hands back: a signed
// access token, its lifetime, and the opaque refresh token.
type Session struct {
	AccessToken     string
	AccessExpiresIn time.Duration // access token lifetime
	AccessExpiresAt time.Time
	RefreshToken    string
	SessionID       string
	User            UserProfile
}
