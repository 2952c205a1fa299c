package authsdk

import (
	"time"

	"github.com/aussiebroadwan/ticketauth/pkg/jwtx"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TOTPLoginRequest is the body of POST /v1/mfa/totp.
type TOTPLoginRequest struct {
	// Ticket is the opaque ticket from the first-factor login.
	Ticket string `json:"ticket"`

	// Code is the 6 to 8 digit code from the authenticator app.
	Code string `json:"code"`

	// AccountID optionally pins the account the ticket must belong to.
	AccountID string `json:"account_id,omitempty"`
}

// UserProfile is the public projection of the logged in account.
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url"`
}

// SessionResponse is returned by a successful second-factor login.
type SessionResponse struct {
	// JWTToken is the signed access token.
	JWTToken string `json:"jwt_token"`

	// JWTExpiresIn is the access token lifetime in milliseconds.
	JWTExpiresIn int64 `json:"jwt_expires_in"`

	// ExpiresAt is when the access token stops being accepted.
	ExpiresAt time.Time `json:"expires_at"`

	// RefreshToken is opaque and replaces any previous one for the account.
	RefreshToken string `json:"refresh_token"`

	User UserProfile `json:"user"`
}

// ExpiresIn returns JWTExpiresIn as a duration.
func (s SessionResponse) ExpiresIn() time.Duration {
	return time.Duration(s.JWTExpiresIn) * time.Millisecond
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the readiness of each dependency.
type HealthChecks struct {
	Database    string `json:"database"`
	Signer      string `json:"signer"`
	ReplayCache string `json:"replay_cache,omitempty"`
}

// JWKSResponse is the JSON Web Key Set served at /.well-known/jwks.json.
type JWKSResponse jwtx.JWKS
