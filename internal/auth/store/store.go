package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned by conditional writes that matched no row, e.g.
	// consuming a ticket that another request consumed first.
	ErrConflict = errors.New("store: conditional write lost")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and so that transactional code only ever touches the Tx-scoped
// repositories.
type Store interface {
	Accounts() Accounts
	Tickets() Tickets
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// GetAccountByID returns an account by id.
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountByTicketHash returns the account owning a ticket that is
	// unconsumed and not expired at now.
	GetAccountByTicketHash(ctx context.Context, ticketHash string, now time.Time) (domain.Account, error)

	// CreateAccount inserts a new account (id is provided by the caller via ULID).
	CreateAccount(ctx context.Context, a domain.Account) error
}

type Tickets interface {
	// CreateTicket stores a freshly minted ticket.
	CreateTicket(ctx context.Context, t domain.Ticket) error

	// GetTicketByHash fetches a ticket by fingerprint regardless of state.
	GetTicketByHash(ctx context.Context, hash string) (domain.Ticket, error)

	// ConsumeTicket sets consumed_at only if the ticket is still unconsumed
	// and unexpired at now. Returns ErrConflict when no row qualified.
	ConsumeTicket(ctx context.Context, hash string, now time.Time) error

	// IncrementTicketAttempts bumps the failed-attempt counter and returns the new value.
	IncrementTicketAttempts(ctx context.Context, hash string) (int, error)

	// DeleteTicket removes a ticket by fingerprint.
	DeleteTicket(ctx context.Context, hash string) error

	// DeleteExpiredTickets removes expired and consumed tickets (housekeeping).
	DeleteExpiredTickets(ctx context.Context, now time.Time) (int64, error)
}

type RefreshTokens interface {
	// UpsertRefreshToken stores the token as the account's only refresh token,
	// replacing any previous one in a single statement.
	UpsertRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByAccount returns the account's current refresh token.
	GetRefreshTokenByAccount(ctx context.Context, accountID string) (domain.RefreshToken, error)

	// GetRefreshTokenByHash returns the token by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}
