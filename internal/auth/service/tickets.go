package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
	"github.com/aussiebroadwan/ticketauth/pkg/cryptox"
	"github.com/aussiebroadwan/ticketauth/pkg/idx"
)

const (
	// DefaultTicketTTL is how long a freshly issued ticket can be redeemed.
	DefaultTicketTTL = 5 * time.Minute

	// DefaultMaxAttempts is the number of wrong codes a ticket tolerates.
	DefaultMaxAttempts = 5
)

// ErrTicketConsumed is returned by Rotate when the ticket was already
// consumed or has expired.
var ErrTicketConsumed = errors.New("ticket already consumed")

// TicketStore manages single-use login tickets. Only fingerprints of the
// opaque tokens are persisted.
type TicketStore struct {
	Store store.Store
	TTL   time.Duration

	// MaxAttempts is how many failed codes a ticket survives. Zero disables
	// the limit.
	MaxAttempts int

	now func() time.Time
}

// NewTicketStore returns a TicketStore with default TTL and attempt limit.
func NewTicketStore(s store.Store) *TicketStore {
	return &TicketStore{
		Store:       s,
		TTL:         DefaultTicketTTL,
		MaxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
}

func (t *TicketStore) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}

// Issue mints a ticket for accountID and returns the opaque token. The token
// is shown once; it cannot be recovered from the store.
func (t *TicketStore) Issue(ctx context.Context, accountID string) (string, domain.Ticket, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", domain.Ticket{}, fmt.Errorf("generate ticket: %w", err)
	}

	ttl := t.TTL
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}

	now := t.clock()
	ticket := domain.Ticket{
		ID:        idx.NewAt(now).String(),
		TokenHash: cryptox.FingerprintToken(token),
		AccountID: accountID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := t.Store.Tickets().CreateTicket(ctx, ticket); err != nil {
		return "", domain.Ticket{}, fmt.Errorf("store ticket: %w", err)
	}
	return token, ticket, nil
}

// IsValid reports whether token names a ticket that is unconsumed and
// unexpired.
func (t *TicketStore) IsValid(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	ticket, err := t.Store.Tickets().GetTicketByHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return ticket.Usable(t.clock()), nil
}

// Rotate consumes the ticket. Exactly one of any concurrent callers wins;
// the rest get ErrTicketConsumed.
func (t *TicketStore) Rotate(ctx context.Context, token string) error {
	return t.rotate(ctx, t.Store, token)
}

// RotateTx is Rotate inside a caller-owned transaction.
func (t *TicketStore) RotateTx(ctx context.Context, tx store.Tx, token string) error {
	return t.rotate(ctx, tx, token)
}

func (t *TicketStore) rotate(ctx context.Context, s store.Store, token string) error {
	hash := cryptox.FingerprintToken(token)

	err := s.Tickets().ConsumeTicket(ctx, hash, t.clock())
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("consume ticket: %w", err)
	}

	// Lost the compare-and-swap: distinguish unknown from spent.
	if _, gerr := s.Tickets().GetTicketByHash(ctx, hash); errors.Is(gerr, store.ErrNotFound) {
		return store.ErrNotFound
	}
	return ErrTicketConsumed
}

// RecordFailure counts a wrong code against the ticket. Once MaxAttempts is
// reached the ticket is deleted and ErrTicketConsumed is returned.
func (t *TicketStore) RecordFailure(ctx context.Context, token string) (int, error) {
	if t.MaxAttempts <= 0 {
		return 0, nil
	}

	hash := cryptox.FingerprintToken(token)
	attempts, err := t.Store.Tickets().IncrementTicketAttempts(ctx, hash)
	if err != nil {
		return 0, err
	}
	if attempts >= t.MaxAttempts {
		if err := t.Store.Tickets().DeleteTicket(ctx, hash); err != nil && !errors.Is(err, store.ErrNotFound) {
			return attempts, fmt.Errorf("delete exhausted ticket: %w", err)
		}
		return attempts, ErrTicketConsumed
	}
	return attempts, nil
}
