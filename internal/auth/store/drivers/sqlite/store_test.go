package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
	"github.com/aussiebroadwan/ticketauth/pkg/cryptox"
	"github.com/aussiebroadwan/ticketauth/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, path string) store.Store {
	t.Helper()
	s, err := NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func seedAccount(t *testing.T, s store.Store) domain.Account {
	t.Helper()
	secret := "JBSWY3DPEHPK3PXP"
	acc := domain.Account{
		ID:          idx.New().String(),
		DisplayName: "Alice",
		Email:       idx.New().String() + "@example.com",
		DefaultRole: "user",
		MFAEnabled:  true,
		Active:      true,
		OTPSecret:   &secret,
	}
	require.NoError(t, s.Accounts().CreateAccount(context.Background(), acc))
	return acc
}

func seedTicket(t *testing.T, s store.Store, accountID string, ttl time.Duration) string {
	t.Helper()
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, s.Tickets().CreateTicket(context.Background(), domain.Ticket{
		ID:        idx.New().String(),
		TokenHash: cryptox.FingerprintToken(token),
		AccountID: accountID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}))
	return token
}

func TestDSN(t *testing.T) {
	t.Parallel()

	require.Contains(t, DSN(":memory:"), "file::memory:?")
	require.Contains(t, DSN("auth.db"), "file:auth.db?")
	require.Contains(t, DSN("auth.db"), "journal_mode(WAL)")
	require.Contains(t, DSN("auth.db"), "_txlock=immediate")
	require.Equal(t, "file:custom.db?mode=ro", DSN("file:custom.db?mode=ro"))
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newTestStore(t, ":memory:")
	require.NoError(t, s.ApplyMigrations())
}

func TestAccountByTicketHash(t *testing.T) {
	s := newTestStore(t, ":memory:")
	ctx := context.Background()
	acc := seedAccount(t, s)

	token := seedTicket(t, s, acc.ID, 5*time.Minute)
	hash := cryptox.FingerprintToken(token)

	got, err := s.Accounts().GetAccountByTicketHash(ctx, hash, time.Now())
	require.NoError(t, err)
	require.Equal(t, acc.ID, got.ID)
	require.Equal(t, "Alice", got.DisplayName)
	require.True(t, got.MFAEnabled)
	require.True(t, got.Active)
	require.True(t, got.HasOTPSecret())

	t.Run("unknown ticket", func(t *testing.T) {
		_, err := s.Accounts().GetAccountByTicketHash(ctx, "unknown", time.Now())
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired ticket resolves to nothing", func(t *testing.T) {
		_, err := s.Accounts().GetAccountByTicketHash(ctx, hash, time.Now().Add(10*time.Minute))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("consumed ticket resolves to nothing", func(t *testing.T) {
		require.NoError(t, s.Tickets().ConsumeTicket(ctx, hash, time.Now()))
		_, err := s.Accounts().GetAccountByTicketHash(ctx, hash, time.Now())
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestCreateAccountDuplicate(t *testing.T) {
	s := newTestStore(t, ":memory:")
	acc := seedAccount(t, s)

	err := s.Accounts().CreateAccount(context.Background(), acc)
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestConsumeTicketOnce(t *testing.T) {
	s := newTestStore(t, ":memory:")
	ctx := context.Background()
	acc := seedAccount(t, s)
	hash := cryptox.FingerprintToken(seedTicket(t, s, acc.ID, time.Minute))

	require.NoError(t, s.Tickets().ConsumeTicket(ctx, hash, time.Now()))
	require.ErrorIs(t, s.Tickets().ConsumeTicket(ctx, hash, time.Now()), store.ErrConflict)

	ticket, err := s.Tickets().GetTicketByHash(ctx, hash)
	require.NoError(t, err)
	require.True(t, ticket.Consumed())
}

func TestConsumeTicketConcurrent(t *testing.T) {
	// A file database exercises real lock contention between connections.
	s := newTestStore(t, filepath.Join(t.TempDir(), "auth.db"))
	ctx := context.Background()
	acc := seedAccount(t, s)
	hash := cryptox.FingerprintToken(seedTicket(t, s, acc.ID, time.Minute))

	const workers = 16
	var (
		wg     sync.WaitGroup
		wins   atomic.Int32
		losses atomic.Int32
	)
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.Tickets().ConsumeTicket(ctx, hash, time.Now())
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, store.ErrConflict):
				losses.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(workers-1), losses.Load())
}

func TestIncrementAndDeleteTicket(t *testing.T) {
	s := newTestStore(t, ":memory:")
	ctx := context.Background()
	acc := seedAccount(t, s)
	hash := cryptox.FingerprintToken(seedTicket(t, s, acc.ID, time.Minute))

	n, err := s.Tickets().IncrementTicketAttempts(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.Tickets().IncrementTicketAttempts(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = s.Tickets().IncrementTicketAttempts(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Tickets().DeleteTicket(ctx, hash))
	_, err = s.Tickets().GetTicketByHash(ctx, hash)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertRefreshTokenLastWriterWins(t *testing.T) {
	s := newTestStore(t, ":memory:")
	ctx := context.Background()
	acc := seedAccount(t, s)

	first := domain.RefreshToken{
		ID:        idx.New().String(),
		AccountID: acc.ID,
		TokenHash: cryptox.FingerprintToken("first"),
		SessionID: idx.New().String(),
		AMR:       []string{"otp", "mfa"},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.RefreshTokens().UpsertRefreshToken(ctx, first))

	second := first
	second.ID = idx.New().String()
	second.TokenHash = cryptox.FingerprintToken("second")
	second.SessionID = idx.New().String()
	require.NoError(t, s.RefreshTokens().UpsertRefreshToken(ctx, second))

	got, err := s.RefreshTokens().GetRefreshTokenByAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, second.TokenHash, got.TokenHash)
	require.Equal(t, second.SessionID, got.SessionID)
	require.Equal(t, []string{"otp", "mfa"}, got.AMR)

	_, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, first.TokenHash)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTxRollbackLeavesTicketUnconsumed(t *testing.T) {
	s := newTestStore(t, ":memory:")
	ctx := context.Background()
	acc := seedAccount(t, s)
	hash := cryptox.FingerprintToken(seedTicket(t, s, acc.ID, time.Minute))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Tickets().ConsumeTicket(ctx, hash, time.Now()))
		return boom
	})
	require.ErrorIs(t, err, boom)

	ticket, err := s.Tickets().GetTicketByHash(ctx, hash)
	require.NoError(t, err)
	require.False(t, ticket.Consumed())
}

func TestHousekeepingDeletes(t *testing.T) {
	s := newTestStore(t, ":memory:")
	ctx := context.Background()
	acc := seedAccount(t, s)

	live := cryptox.FingerprintToken(seedTicket(t, s, acc.ID, time.Hour))
	expired := cryptox.FingerprintToken(seedTicket(t, s, acc.ID, -time.Minute))
	consumed := cryptox.FingerprintToken(seedTicket(t, s, acc.ID, time.Hour))
	require.NoError(t, s.Tickets().ConsumeTicket(ctx, consumed, time.Now()))

	n, err := s.Tickets().DeleteExpiredTickets(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, err = s.Tickets().GetTicketByHash(ctx, live)
	require.NoError(t, err)
	_, err = s.Tickets().GetTicketByHash(ctx, expired)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.RefreshTokens().UpsertRefreshToken(ctx, domain.RefreshToken{
		ID:        idx.New().String(),
		AccountID: acc.ID,
		TokenHash: "stale",
		SessionID: idx.New().String(),
		ExpiresAt: time.Now().Add(-time.Second),
	}))
	n, err = s.RefreshTokens().DeleteExpiredRefreshTokens(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
