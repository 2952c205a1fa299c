package sqlstore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
)

type ticketsRepo struct {
	q    *Queries
	opts Options
}

func (r *ticketsRepo) CreateTicket(ctx context.Context, t domain.Ticket) error {
	err := r.q.CreateTicket(ctx, TicketRow{
		ID:         t.ID,
		TokenHash:  t.TokenHash,
		AccountID:  t.AccountID,
		Attempts:   t.Attempts,
		IssuedAt:   toMillis(t.IssuedAt),
		ExpiresAt:  toMillis(t.ExpiresAt),
		ConsumedAt: mapOptionalMillis(t.ConsumedAt),
	})
	return mapInsert(r.opts, err)
}

func (r *ticketsRepo) GetTicketByHash(ctx context.Context, hash string) (domain.Ticket, error) {
	row, err := r.q.GetTicketByHash(ctx, hash)
	if err != nil {
		return domain.Ticket{}, mapNotFound(err)
	}
	return mapTicket(row), nil
}

// ConsumeTicket is the compare-and-swap at the heart of single use tickets:
// the UPDATE only matches while consumed_at is NULL, so of any number of
// concurrent callers exactly one observes a row change.
func (r *ticketsRepo) ConsumeTicket(ctx context.Context, hash string, now time.Time) error {
	n, err := r.q.ConsumeTicket(ctx, hash, toMillis(now))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

func (r *ticketsRepo) IncrementTicketAttempts(ctx context.Context, hash string) (int, error) {
	attempts, err := r.q.IncrementTicketAttempts(ctx, hash)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *ticketsRepo) DeleteTicket(ctx context.Context, hash string) error {
	return r.q.DeleteTicket(ctx, hash)
}

func (r *ticketsRepo) DeleteExpiredTickets(ctx context.Context, now time.Time) (int64, error) {
	return r.q.DeleteExpiredTickets(ctx, toMillis(now))
}

func mapTicket(row TicketRow) domain.Ticket {
	return domain.Ticket{
		ID:         row.ID,
		TokenHash:  row.TokenHash,
		AccountID:  row.AccountID,
		Attempts:   row.Attempts,
		IssuedAt:   fromMillis(row.IssuedAt),
		ExpiresAt:  fromMillis(row.ExpiresAt),
		ConsumedAt: mapNullMillisPtr(row.ConsumedAt),
	}
}
