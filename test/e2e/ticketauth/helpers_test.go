//go:build e2e

package ticketauth_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/app"
	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
	"github.com/aussiebroadwan/ticketauth/internal/auth/service"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
	"github.com/aussiebroadwan/ticketauth/pkg/authsdk"
	"github.com/aussiebroadwan/ticketauth/pkg/idx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * End-to-end tests run the full application against real Postgres and Redis
 * containers. Requires Docker: go test -tags e2e ./test/e2e/...
 */

const (
	postgresImage = "postgres:17-alpine"
	redisImage    = "redis:7-alpine"

	testIssuer = "ticketauth-e2e"
)

type environment struct {
	client *authsdk.SDKClient
	store  store.Store
}

// startContainer starts image and returns host:port for the given port.
func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

// setupEnvironment runs the application over Postgres and a Redis replay
// cache and returns an SDK client pointed at it.
func setupEnvironment(t *testing.T) *environment {
	t.Helper()

	pgAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "ticketauth",
			"POSTGRES_PASSWORD": "ticketauth",
			"POSTGRES_DB":       "ticketauth",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")

	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, "6379/tcp")

	t.Setenv("AUTH_ISSUER", testIssuer)
	t.Setenv("AUTH_NUM_KEYS", "1")
	t.Setenv("AUTH_DATABASE_DRIVER", app.DriverPostgres)
	t.Setenv("AUTH_DATABASE_URL", fmt.Sprintf("postgres://ticketauth:ticketauth@%s/ticketauth?sslmode=disable", pgAddr))
	t.Setenv("AUTH_REPLAY_CACHE", app.ReplayRedis)
	t.Setenv("REDIS_ADDR", redisAddr)
	t.Setenv("ENV", "test")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("RATELIMIT_LOGIN_REQUESTS", "1000")
	t.Setenv("RATELIMIT_LOGIN_BURST", "1000")

	cfg, err := app.LoadConfig()
	require.NoError(t, err)

	application, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	st, err := app.OpenStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return &environment{client: authsdk.NewSDKClient(srv.URL), store: st}
}

// seedAccount creates an MFA-enabled account and returns it with its secret.
func (e *environment) seedAccount(t *testing.T) (domain.Account, string) {
	t.Helper()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: testIssuer, AccountName: "e2e"})
	require.NoError(t, err)
	secret := key.Secret()

	acc := domain.Account{
		ID:          idx.New().String(),
		DisplayName: "E2E",
		Email:       idx.New().String() + "@example.com",
		DefaultRole: "user",
		MFAEnabled:  true,
		Active:      true,
		OTPSecret:   &secret,
	}
	require.NoError(t, e.store.Accounts().CreateAccount(context.Background(), acc))
	return acc, secret
}

func (e *environment) issueTicket(t *testing.T, accountID string) string {
	t.Helper()
	token, _, err := service.NewTicketStore(e.store).Issue(context.Background(), accountID)
	require.NoError(t, err)
	return token
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}
