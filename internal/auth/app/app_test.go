package app

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
	"github.com/aussiebroadwan/ticketauth/internal/auth/service"
	"github.com/aussiebroadwan/ticketauth/pkg/authsdk"
	"github.com/aussiebroadwan/ticketauth/pkg/idx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := loadConfig("")
	require.NoError(t, err)

	cfg.DatabaseFile = filepath.Join(t.TempDir(), "auth.db")
	cfg.LogLevel = "error"
	cfg.NumKeys = 1
	cfg.Audience = "hasura"
	cfg.ClaimsMap = "x-hasura-email=email"
	return cfg
}

func newTestApp(t *testing.T, cfg Config) (*Application, *authsdk.SDKClient) {
	t.Helper()
	application, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)
	return application, authsdk.NewSDKClient(srv.URL)
}

func seedAccount(t *testing.T, application *Application) domain.Account {
	t.Helper()
	secret := testSecret
	acc := domain.Account{
		ID:          idx.New().String(),
		DisplayName: "Alice",
		Email:       "alice@example.com",
		DefaultRole: "user",
		MFAEnabled:  true,
		Active:      true,
		OTPSecret:   &secret,
	}
	require.NoError(t, application.db.Accounts().CreateAccount(context.Background(), acc))
	return acc
}

func issueTicket(t *testing.T, application *Application, accountID string) string {
	t.Helper()
	token, _, err := service.NewTicketStore(application.db).Issue(context.Background(), accountID)
	require.NoError(t, err)
	return token
}

func currentCode(t *testing.T) string {
	t.Helper()
	code, err := totp.GenerateCode(testSecret, time.Now())
	require.NoError(t, err)
	return code
}

func TestApplicationLoginWithMemoryReplay(t *testing.T) {
	application, client := newTestApp(t, testConfig(t))
	ctx := context.Background()

	acc := seedAccount(t, application)
	code := currentCode(t)
	resp, err := client.LoginTOTP(ctx, issueTicket(t, application, acc.ID), code)
	require.NoError(t, err)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "alice@example.com", resp.User.Email)

	claims, err := application.keyManager.Verifier.Verify(resp.JWTToken)
	require.NoError(t, err)
	require.Equal(t, []string{"hasura"}, []string(claims.Audience))
	ns := claims.Namespace(service.DefaultClaimsNamespace)
	require.Equal(t, "alice@example.com", ns["x-hasura-email"])

	_, err = client.LoginTOTP(ctx, issueTicket(t, application, acc.ID), code)
	require.ErrorIs(t, err, authsdk.ErrInvalidCode)

	health, err := client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", health.Status)
	require.Empty(t, health.Checks.ReplayCache)
}

func TestApplicationLoginWithRedisReplay(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.ReplayCache = ReplayRedis
	cfg.RedisAddr = mr.Addr()
	application, client := newTestApp(t, cfg)
	ctx := context.Background()

	acc := seedAccount(t, application)
	_, err := client.LoginTOTP(ctx, issueTicket(t, application, acc.ID), currentCode(t))
	require.NoError(t, err)
	require.Len(t, mr.Keys(), 1)

	health, err := client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", health.Checks.ReplayCache)
}

func TestApplicationRejectsUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.ReplayCache = ReplayRedis
	cfg.RedisAddr = addr

	_, err := New(cfg)
	require.Error(t, err)
}

func TestApplicationHousekeepingSweepsLimiters(t *testing.T) {
	application, client := newTestApp(t, testConfig(t))

	_, err := client.GetLiveness(context.Background())
	require.NoError(t, err)

	// Memory replay cache plus the two rate limiters.
	require.Len(t, application.sweepers, 3)
	res := application.housekeepingService.Cleanup(context.Background())
	require.Zero(t, res.Tickets)
}

func TestApplicationInstallsTracerProvider(t *testing.T) {
	application, _ := newTestApp(t, testConfig(t))

	require.NotNil(t, application.tracer)
	require.Same(t, application.tracer, otel.GetTracerProvider())

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	require.True(t, span.SpanContext().IsValid())
}
