package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
	"github.com/aussiebroadwan/ticketauth/pkg/cryptox"
)

// AccountRepository resolves accounts for the login exchange. It never
// writes.
type AccountRepository struct {
	Store store.Store
	now   func() time.Time
}

// NewAccountRepository returns a repository reading from s.
func NewAccountRepository(s store.Store) *AccountRepository {
	return &AccountRepository{Store: s, now: time.Now}
}

// ResolveByTicket returns the account owning ticket. It returns
// store.ErrNotFound when the ticket is unknown, consumed or expired, or
// when accountID is non-empty and names a different account.
func (r *AccountRepository) ResolveByTicket(ctx context.Context, ticket, accountID string) (domain.Account, error) {
	if ticket == "" {
		return domain.Account{}, store.ErrNotFound
	}

	now := time.Now()
	if r.now != nil {
		now = r.now()
	}

	acc, err := r.Store.Accounts().GetAccountByTicketHash(ctx, cryptox.FingerprintToken(ticket), now)
	if err != nil {
		return domain.Account{}, err
	}
	if accountID != "" && !cryptox.EqualStrings(acc.ID, accountID) {
		return domain.Account{}, store.ErrNotFound
	}
	return acc, nil
}
