package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
)

type refreshTokensRepo struct {
	q    *Queries
	opts Options
}

func (r *refreshTokensRepo) UpsertRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	err := r.q.UpsertRefreshToken(ctx, RefreshTokenRow{
		ID:        t.ID,
		AccountID: t.AccountID,
		TokenHash: t.TokenHash,
		SessionID: t.SessionID,
		Amr:       strings.Join(t.AMR, " "),
		ExpiresAt: toMillis(t.ExpiresAt),
		CreatedAt: toMillis(t.CreatedAt),
	})
	// token_hash is also unique; a collision there is a genuine duplicate.
	return mapInsert(r.opts, err)
}

func (r *refreshTokensRepo) GetRefreshTokenByAccount(
	ctx context.Context,
	accountID string,
) (domain.RefreshToken, error) {
	row, err := r.q.GetRefreshTokenByAccount(ctx, accountID)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return mapRefreshToken(row), nil
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	row, err := r.q.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return mapRefreshToken(row), nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	return r.q.DeleteExpiredRefreshTokens(ctx, toMillis(now))
}

func mapRefreshToken(row RefreshTokenRow) domain.RefreshToken {
	return domain.RefreshToken{
		ID:        row.ID,
		AccountID: row.AccountID,
		TokenHash: row.TokenHash,
		SessionID: row.SessionID,
		AMR:       strings.Fields(row.Amr),
		ExpiresAt: fromMillis(row.ExpiresAt),
		CreatedAt: fromMillis(row.CreatedAt),
	}
}
