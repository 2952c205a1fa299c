package service

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
	"github.com/aussiebroadwan/ticketauth/internal/auth/replay"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/ticketauth/pkg/idx"
	"github.com/aussiebroadwan/ticketauth/pkg/jwtx"
	"github.com/aussiebroadwan/ticketauth/pkg/slogx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func newKeyManager(t *testing.T) *jwtx.KeyManager {
	t.Helper()
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "ticketauth-test",
		Audience:  []string{"test-api"},
		NumKeys:   1,
	})
	require.NoError(t, err)
	return km
}

type accountOpt func(*domain.Account)

func withoutMFA() accountOpt       { return func(a *domain.Account) { a.MFAEnabled = false } }
func inactive() accountOpt         { return func(a *domain.Account) { a.Active = false } }
func withoutSecret() accountOpt    { return func(a *domain.Account) { a.OTPSecret = nil } }
func withEmptySecret() accountOpt  { return func(a *domain.Account) { empty := ""; a.OTPSecret = &empty } }
func withRole(r string) accountOpt { return func(a *domain.Account) { a.DefaultRole = r } }

func seedAccount(t *testing.T, s store.Store, opts ...accountOpt) domain.Account {
	t.Helper()
	secret := testSecret
	acc := domain.Account{
		ID:          idx.New().String(),
		DisplayName: "Alice",
		Email:       idx.New().String() + "@example.com",
		AvatarURL:   "https://example.com/alice.png",
		DefaultRole: "user",
		MFAEnabled:  true,
		Active:      true,
		OTPSecret:   &secret,
	}
	for _, o := range opts {
		o(&acc)
	}
	require.NoError(t, s.Accounts().CreateAccount(context.Background(), acc))
	return acc
}

// codeAt returns the TOTP code for secret at t with default options.
func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    DefaultTOTPOptions().Digits,
		Algorithm: DefaultTOTPOptions().Algorithm,
	})
	require.NoError(t, err)
	return code
}

type loginFixture struct {
	store   store.Store
	km      *jwtx.KeyManager
	tickets *TicketStore
	svc     *TOTPLoginService
	replay  *replay.MemoryCache
	now     time.Time
}

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()
	s := newTestStore(t)
	km := newKeyManager(t)

	// Middle of a step, so step arithmetic in tests is unambiguous.
	now := time.Now().Truncate(30 * time.Second).Add(15 * time.Second)
	clock := func() time.Time { return now }

	tickets := NewTicketStore(s)
	tickets.now = clock

	accounts := NewAccountRepository(s)
	accounts.now = clock

	verifier := NewTOTPVerifier(DefaultTOTPOptions())
	verifier.now = clock

	cache := replay.NewMemoryCache()

	svc := &TOTPLoginService{
		Store:    s,
		Accounts: accounts,
		Tickets:  tickets,
		Verifier: verifier,
		Sessions: &SessionIssuer{
			KeyManager: km,
			Store:      s,
			Issuer:     "ticketauth-test",
			Audience:   []string{"test-api"},
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
			Namespace:  DefaultClaimsNamespace,
		},
		Replay: cache,
		now:    clock,
	}

	return &loginFixture{store: s, km: km, tickets: tickets, svc: svc, replay: cache, now: now}
}

func (f *loginFixture) issue(t *testing.T, accountID string) string {
	t.Helper()
	token, _, err := f.tickets.Issue(context.Background(), accountID)
	require.NoError(t, err)
	return token
}

func captureLogs(ctx context.Context) (context.Context, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return slogx.WithContext(ctx, l), &buf
}
