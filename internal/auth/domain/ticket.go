package domain

import "time"

// Ticket is a single-use login ticket produced by a first-factor login and
// redeemed once by the TOTP exchange.
type Ticket struct {
	ID         string     // ULID
	TokenHash  string     // deterministic fingerprint of the opaque ticket (base64url SHA-256)
	AccountID  string     // owning account
	Attempts   int        // failed code submissions against this ticket
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time // set exactly once on a successful exchange
}

// Consumed reports whether the ticket has already been redeemed.
func (t Ticket) Consumed() bool { return t.ConsumedAt != nil }

// Usable reports whether the ticket can still be redeemed at now.
func (t Ticket) Usable(now time.Time) bool {
	return !t.Consumed() && now.Before(t.ExpiresAt)
}
