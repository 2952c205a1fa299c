package sqlstore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
)

type accountsRepo struct {
	q    *Queries
	opts Options
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	row, err := r.q.GetAccountByID(ctx, id)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return mapAccount(row), nil
}

func (r *accountsRepo) GetAccountByTicketHash(
	ctx context.Context,
	ticketHash string,
	now time.Time,
) (domain.Account, error) {
	row, err := r.q.GetAccountByTicketHash(ctx, ticketHash, toMillis(now))
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return mapAccount(row), nil
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}

	err := r.q.CreateAccount(ctx, AccountRow{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Email:       a.Email,
		AvatarURL:   a.AvatarURL,
		DefaultRole: a.DefaultRole,
		MFAEnabled:  a.MFAEnabled,
		Active:      a.Active,
		OTPSecret:   mapOptionalString(a.OTPSecret),
		CreatedAt:   toMillis(a.CreatedAt),
		UpdatedAt:   toMillis(a.UpdatedAt),
	})
	return mapInsert(r.opts, err)
}

func mapAccount(row AccountRow) domain.Account {
	return domain.Account{
		ID:          row.ID,
		DisplayName: row.DisplayName,
		Email:       row.Email,
		AvatarURL:   row.AvatarURL,
		DefaultRole: row.DefaultRole,
		MFAEnabled:  row.MFAEnabled,
		Active:      row.Active,
		OTPSecret:   mapNullStringPtr(row.OTPSecret),
		CreatedAt:   fromMillis(row.CreatedAt),
		UpdatedAt:   fromMillis(row.UpdatedAt),
	}
}
