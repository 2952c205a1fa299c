package app

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/service"
	"github.com/aussiebroadwan/ticketauth/pkg/httpx"
	"github.com/aussiebroadwan/ticketauth/pkg/jwtx"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	ReplayOff    = "off"
	ReplayMemory = "memory"
	ReplayRedis  = "redis"
)

type Config struct {
	Issuer    string `mapstructure:"AUTH_ISSUER"`
	Audience  string `mapstructure:"AUTH_AUDIENCE"`  // comma separated; empty skips the aud claim
	Algorithm string `mapstructure:"AUTH_ALGORITHM"` // RS256, ES256, EdDSA
	RSABits   int    `mapstructure:"AUTH_RSA_BITS"`
	NumKeys   int    `mapstructure:"AUTH_NUM_KEYS"`

	AccessTTL  time.Duration `mapstructure:"AUTH_ACCESS_TTL"`
	RefreshTTL time.Duration `mapstructure:"AUTH_REFRESH_TTL"`
	TicketTTL  time.Duration `mapstructure:"AUTH_TICKET_TTL"`

	TOTPSkew        uint `mapstructure:"AUTH_TOTP_SKEW"`
	TOTPMaxAttempts int  `mapstructure:"AUTH_TOTP_MAX_ATTEMPTS"` // 0 disables the limit

	ClaimsNamespace string `mapstructure:"AUTH_CLAIMS_NAMESPACE"`
	ClaimsMap       string `mapstructure:"AUTH_CLAIMS_MAP"` // claim=field,claim=field

	DatabaseDriver string `mapstructure:"AUTH_DATABASE_DRIVER"` // sqlite, postgres
	DatabaseFile   string `mapstructure:"AUTH_DATABASE_FILE"`
	DatabaseURL    string `mapstructure:"AUTH_DATABASE_URL"`

	ReplayCache   string `mapstructure:"AUTH_REPLAY_CACHE"` // off, memory, redis
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	TrustProxy         bool          `mapstructure:"AUTH_TRUST_PROXY"`
	LoginRateRequests  int           `mapstructure:"RATELIMIT_LOGIN_REQUESTS"`
	LoginRateWindow    time.Duration `mapstructure:"RATELIMIT_LOGIN_WINDOW"`
	LoginRateBurst     int           `mapstructure:"RATELIMIT_LOGIN_BURST"`
	PublicRateRequests int           `mapstructure:"RATELIMIT_PUBLIC_REQUESTS"`
	PublicRateWindow   time.Duration `mapstructure:"RATELIMIT_PUBLIC_WINDOW"`
	PublicRateBurst    int           `mapstructure:"RATELIMIT_PUBLIC_BURST"`

	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"` // empty keeps spans in process
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	Env                  string        `mapstructure:"ENV"`        // dev, staging, prod
	LogLevel             string        `mapstructure:"LOG_LEVEL"`  // debug, info, warn, error
	LogFormat            string        `mapstructure:"LOG_FORMAT"` // json, text
	Port                 int           `mapstructure:"PORT"`
	ShutdownGracePeriod  time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"`
	HousekeepingInterval time.Duration `mapstructure:"HOUSEKEEPING_INTERVAL"`
}

var defaults = map[string]any{
	"AUTH_ISSUER":    "ticketauth",
	"AUTH_AUDIENCE":  "",
	"AUTH_ALGORITHM": jwtx.AlgorithmEdDSA,
	"AUTH_RSA_BITS":  0,
	"AUTH_NUM_KEYS":  0,

	"AUTH_ACCESS_TTL":  jwtx.DefaultAccessTokenTTL,
	"AUTH_REFRESH_TTL": jwtx.DefaultRefreshTokenTTL,
	"AUTH_TICKET_TTL":  service.DefaultTicketTTL,

	"AUTH_TOTP_SKEW":         1,
	"AUTH_TOTP_MAX_ATTEMPTS": service.DefaultMaxAttempts,

	"AUTH_CLAIMS_NAMESPACE": service.DefaultClaimsNamespace,
	"AUTH_CLAIMS_MAP":       "",

	"AUTH_DATABASE_DRIVER": DriverSQLite,
	"AUTH_DATABASE_FILE":   "auth.db",
	"AUTH_DATABASE_URL":    "",

	"AUTH_REPLAY_CACHE": ReplayMemory,
	"REDIS_ADDR":        "localhost:6379",
	"REDIS_PASSWORD":    "",
	"REDIS_DB":          0,

	"AUTH_TRUST_PROXY":          false,
	"RATELIMIT_LOGIN_REQUESTS":  httpx.LoginLimit.Requests,
	"RATELIMIT_LOGIN_WINDOW":    httpx.LoginLimit.Window,
	"RATELIMIT_LOGIN_BURST":     httpx.LoginLimit.Burst,
	"RATELIMIT_PUBLIC_REQUESTS": httpx.PublicLimit.Requests,
	"RATELIMIT_PUBLIC_WINDOW":   httpx.PublicLimit.Window,
	"RATELIMIT_PUBLIC_BURST":    httpx.PublicLimit.Burst,

	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": false,

	"ENV":                   "dev",
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "json",
	"PORT":                  8080,
	"SHUTDOWN_GRACE_PERIOD": 10 * time.Second,
	"HOUSEKEEPING_INTERVAL": time.Hour,
}

// LoadConfig reads ./.env when present, then lets environment variables
// override it.
func LoadConfig() (Config, error) {
	return loadConfig(".env")
}

func loadConfig(envFile string) (Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // a missing .env is fine
	}

	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return errors.New("config: AUTH_ISSUER must not be empty")
	}
	if !slices.Contains([]string{jwtx.AlgorithmRS256, jwtx.AlgorithmES256, jwtx.AlgorithmEdDSA}, c.Algorithm) {
		return fmt.Errorf("config: unsupported AUTH_ALGORITHM %q", c.Algorithm)
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			return errors.New("config: AUTH_DATABASE_FILE must be set for sqlite")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: AUTH_DATABASE_URL must be set for postgres")
		}
	default:
		return fmt.Errorf("config: unsupported AUTH_DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	switch c.ReplayCache {
	case ReplayOff, ReplayMemory:
	case ReplayRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set when AUTH_REPLAY_CACHE=redis")
		}
	default:
		return fmt.Errorf("config: unsupported AUTH_REPLAY_CACHE %q", c.ReplayCache)
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.TicketTTL <= 0 {
		return errors.New("config: AUTH_ACCESS_TTL, AUTH_REFRESH_TTL and AUTH_TICKET_TTL must be positive")
	}
	if c.TOTPSkew > 10 {
		return errors.New("config: AUTH_TOTP_SKEW must be at most 10")
	}
	if c.TOTPMaxAttempts < 0 {
		return errors.New("config: AUTH_TOTP_MAX_ATTEMPTS must not be negative")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	if _, err := c.Claims(); err != nil {
		return fmt.Errorf("config: AUTH_CLAIMS_MAP: %w", err)
	}
	return nil
}

// AudienceList splits Audience on commas.
func (c Config) AudienceList() []string {
	var out []string
	for part := range strings.SplitSeq(c.Audience, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Claims parses ClaimsMap.
func (c Config) Claims() (map[string]string, error) {
	return service.ParseClaimsMap(c.ClaimsMap)
}

func (c Config) LoginRateLimit() httpx.RateLimit {
	return httpx.RateLimit{Requests: c.LoginRateRequests, Window: c.LoginRateWindow, Burst: c.LoginRateBurst}
}

func (c Config) PublicRateLimit() httpx.RateLimit {
	return httpx.RateLimit{Requests: c.PublicRateRequests, Window: c.PublicRateWindow, Burst: c.PublicRateBurst}
}
