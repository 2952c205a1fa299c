package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/service"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
	"github.com/aussiebroadwan/ticketauth/pkg/httpx"
	"github.com/aussiebroadwan/ticketauth/pkg/jwtx"
	"github.com/aussiebroadwan/ticketauth/pkg/slogx"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 64 << 10

// Pinger is a dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	LoginService *service.TOTPLoginService

	// ReplayCache is checked by /readyz when set.
	ReplayCache Pinger

	// TrustProxy makes rate limiting key on X-Forwarded-For / X-Real-IP.
	TrustProxy bool

	loginLimiter  *httpx.Limiter
	publicLimiter *httpx.Limiter
}

func NewRouter(
	keys *jwtx.KeySet,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:           http.NewServeMux(),
		keys:          keys,
		buildVersion:  buildVersion,
		startTime:     time.Now(),
		store:         st,
		logger:        logger,
		loginLimiter:  httpx.NewLimiter(httpx.LoginLimit),
		publicLimiter: httpx.NewLimiter(httpx.PublicLimit),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recoverer,
		httpx.MaxBytes(maxBodyBytes),
	}

	return r
}

// SetRateLimits replaces the login and public rate limits. Call before
// ApplyRoutes.
func (r *Router) SetRateLimits(login, public httpx.RateLimit) {
	r.loginLimiter = httpx.NewLimiter(login)
	r.publicLimiter = httpx.NewLimiter(public)
}

// Limiters returns the rate limiters so idle buckets can be swept.
func (r *Router) Limiters() []*httpx.Limiter {
	return []*httpx.Limiter{r.loginLimiter, r.publicLimiter}
}

func (r *Router) ApplyRoutes() {
	r.registerMFA()
	r.registerSystem()
}

// ServeHTTP applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerMFA() {
	byIP := httpx.IPKeyExtractor(r.TrustProxy)

	// POST /v1/mfa/totp - strict limit; each request is a code guess
	r.Mux.Handle("POST /v1/mfa/totp",
		httpx.Chain(&TOTPLoginHandler{Service: r.LoginService},
			httpx.RateLimitMiddleware(r.loginLimiter, byIP),
		),
	)
}

func (r *Router) registerSystem() {
	byIP := httpx.IPKeyExtractor(r.TrustProxy)

	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitMiddleware(r.publicLimiter, byIP),
		),
	)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitMiddleware(r.publicLimiter, byIP),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys, r.ReplayCache),
			httpx.RateLimitMiddleware(r.publicLimiter, byIP),
		),
	)
}
