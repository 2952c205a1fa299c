package domain

import "time"

// RefreshToken models the stored refresh token record. There is at most one
// row per account; a new session replaces the previous token.
type RefreshToken struct {
	ID        string
	AccountID string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	SessionID string
	AMR       []string
	ExpiresAt time.Time
	CreatedAt time.Time
}
