package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewFromDB(db), mock
}

var accountCols = []string{
	"id", "display_name", "email", "avatar_url", "default_role",
	"mfa_enabled", "active", "otp_secret", "created_at", "updated_at",
}

func TestConsumeTicketUsesNumberedPlaceholders(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET consumed_at = $1 WHERE token_hash = $2 AND consumed_at IS NULL AND expires_at > $3")).
		WithArgs(now.UnixMilli(), "hash", now.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Tickets().ConsumeTicket(ctx, "hash", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeTicketLostRace(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET consumed_at")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Tickets().ConsumeTicket(context.Background(), "hash", time.Now())
	require.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountByTicketHash(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	t.Run("found", func(t *testing.T) {
		secret := "JBSWY3DPEHPK3PXP"
		mock.ExpectQuery(regexp.QuoteMeta("JOIN tickets t ON t.account_id = a.id WHERE t.token_hash = $1")).
			WithArgs("hash", now.UnixMilli()).
			WillReturnRows(sqlmock.NewRows(accountCols).AddRow(
				"acc-1", "Alice", "alice@example.com", "", "user",
				true, true, secret, now.UnixMilli(), now.UnixMilli(),
			))

		acc, err := s.Accounts().GetAccountByTicketHash(ctx, "hash", now)
		require.NoError(t, err)
		require.Equal(t, "acc-1", acc.ID)
		require.True(t, acc.MFAEnabled)
		require.True(t, acc.HasOTPSecret())
		require.Equal(t, now.UTC(), acc.CreatedAt)
	})

	t.Run("missing maps to ErrNotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM accounts a JOIN tickets t")).
			WillReturnRows(sqlmock.NewRows(accountCols))

		_, err := s.Accounts().GetAccountByTicketHash(ctx, "nope", now)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTicketDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tickets")).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := s.Tickets().CreateTicket(context.Background(), domain.Ticket{
		ID:        "t1",
		TokenHash: "hash",
		AccountID: "acc-1",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Minute),
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementTicketAttempts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SET attempts = attempts + 1 WHERE token_hash = $1 RETURNING attempts")).
		WithArgs("hash").
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(3))

	n, err := s.Tickets().IncrementTicketAttempts(context.Background(), "hash")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitsRotationAndUpsert(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET consumed_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (account_id) DO UPDATE SET")).
		WithArgs("rt-1", "acc-1", "rhash", "sid", "otp mfa", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Tickets().ConsumeTicket(ctx, "hash", time.Now()); err != nil {
			return err
		}
		return tx.RefreshTokens().UpsertRefreshToken(ctx, domain.RefreshToken{
			ID:        "rt-1",
			AccountID: "acc-1",
			TokenHash: "rhash",
			SessionID: "sid",
			AMR:       []string{"otp", "mfa"},
			ExpiresAt: time.Now().Add(time.Hour),
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnUpsertFailure(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET consumed_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnError(boom)
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Tickets().ConsumeTicket(ctx, "hash", time.Now()); err != nil {
			return err
		}
		return tx.RefreshTokens().UpsertRefreshToken(ctx, domain.RefreshToken{
			ID:        "rt-1",
			AccountID: "acc-1",
			TokenHash: "rhash",
			ExpiresAt: time.Now().Add(time.Hour),
		})
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNestedTxUnsupported(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.Tx(ctx)
		return err
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
