package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
	"github.com/aussiebroadwan/ticketauth/internal/auth/replay"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
	"github.com/aussiebroadwan/ticketauth/pkg/slogx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidTicket    = errors.New("invalid or expired ticket")
	ErrMFANotEnabled    = errors.New("MFA is not enabled")
	ErrAccountInactive  = errors.New("account is not activated")
	ErrOTPSecretMissing = errors.New("OTP secret is not set")
	ErrInvalidCode      = errors.New("invalid two-factor code")
)

const tracerName = "github.com/aussiebroadwan/ticketauth/internal/auth/service"

// TOTPLoginRequest is one second-factor exchange attempt.
type TOTPLoginRequest struct {
	Ticket string
	Code   string

	// AccountID optionally pins the account the ticket must belong to.
	AccountID string
}

// TOTPLoginService redeems a login ticket plus TOTP code for a session.
type TOTPLoginService struct {
	Store    store.Store
	Accounts *AccountRepository
	Tickets  *TicketStore
	Verifier *TOTPVerifier
	Sessions *SessionIssuer

	// Replay rejects a code already redeemed in its window. Nil disables it.
	Replay replay.Cache

	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer

	now func() time.Time
}

func (s *TOTPLoginService) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Login runs the exchange. Every failure leaves the ticket redeemable,
// apart from the attempt counter, unless the transaction committed.
func (s *TOTPLoginService) Login(ctx context.Context, req TOTPLoginRequest) (_ *domain.Session, err error) {
	tracer := s.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	ctx, span := tracer.Start(ctx, "TOTPLoginService.Login")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	ctx = slogx.WithSpan(ctx)
	l := slogx.FromContext(ctx)

	// 1. Resolve the account behind the ticket
	acc, err := s.Accounts.ResolveByTicket(ctx, req.Ticket, req.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidTicket
		}
		return nil, fmt.Errorf("resolve ticket: %w", err)
	}
	span.SetAttributes(attribute.String("account.id", acc.ID))
	l = l.With("account_id", acc.ID)

	// 2. Preconditions, in a fixed order
	switch {
	case !acc.MFAEnabled:
		return nil, ErrMFANotEnabled
	case !acc.Active:
		return nil, ErrAccountInactive
	case !acc.HasOTPSecret():
		return nil, ErrOTPSecretMissing
	}

	// 3. Verify the code
	now := s.clock()
	step, ok := s.Verifier.MatchStep(req.Code, *acc.OTPSecret, now)
	if !ok {
		s.recordFailure(ctx, l, req.Ticket, "invalid TOTP code")
		return nil, ErrInvalidCode
	}

	// 4. Sign outside the transaction
	prepared, err := s.Sessions.Prepare(acc, now)
	if err != nil {
		return nil, err
	}

	// 5. Consume the ticket, store the refresh token and mark the step used
	// together. Rotation runs first so a concurrent redemption of the same
	// ticket loses on the ticket, not on the code.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.Tickets.RotateTx(ctx, tx, req.Ticket); err != nil {
			return err
		}
		if err := s.Sessions.Persist(ctx, tx, prepared); err != nil {
			return err
		}
		return s.markUsed(ctx, acc, step)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrTicketConsumed), errors.Is(err, store.ErrNotFound):
		l.Warn("ticket redeemed concurrently")
		return nil, ErrInvalidTicket
	case errors.Is(err, replay.ErrReplayed):
		l.Warn("TOTP code replayed", "step", step)
		s.recordFailure(ctx, l, req.Ticket, "replayed TOTP code")
		return nil, ErrInvalidCode
	case errors.Is(err, ErrSessionIssuance):
		l.Error("session issuance failed", "error", err)
		return nil, err
	default:
		l.Error("session issuance failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSessionIssuance, err)
	}

	// 6. Audit
	l.Info("account logged in via a TOTP code", "method", "totp", "session_id", prepared.Session.SessionID)

	return prepared.Session, nil
}

// markUsed records the (account, step) pair in the replay cache. A cache
// failure aborts the exchange.
func (s *TOTPLoginService) markUsed(ctx context.Context, acc domain.Account, step uint64) error {
	if s.Replay == nil {
		return nil
	}
	key := replay.Key(*acc.OTPSecret, acc.ID, step)
	err := s.Replay.MarkUsed(ctx, key, s.Verifier.Window())
	if err != nil && !errors.Is(err, replay.ErrReplayed) {
		return fmt.Errorf("%w: replay cache: %w", ErrSessionIssuance, err)
	}
	return err
}

// recordFailure counts a rejected code against the ticket.
func (s *TOTPLoginService) recordFailure(ctx context.Context, l *slog.Logger, ticket, msg string) {
	attempts, err := s.Tickets.RecordFailure(ctx, ticket)
	switch {
	case errors.Is(err, ErrTicketConsumed):
		l.Warn("ticket exhausted by failed codes", "attempts", attempts)
	case err != nil:
		l.Error("failed to record failed attempt", "error", err)
	default:
		l.Info(msg, "attempts", attempts)
	}
}
