package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
	"github.com/aussiebroadwan/ticketauth/pkg/cryptox"
	"github.com/aussiebroadwan/ticketauth/pkg/idx"
	"github.com/aussiebroadwan/ticketauth/pkg/jwtx"
)

// DefaultClaimsNamespace is where mapped account claims are placed.
const DefaultClaimsNamespace = "https://hasura.io/jwt/claims"

// ErrSessionIssuance wraps any failure while persisting a new session.
var ErrSessionIssuance = errors.New("failed to issue session")

// Account fields that may be copied into access token claims.
const (
	FieldID          = "id"
	FieldDisplayName = "display_name"
	FieldEmail       = "email"
	FieldAvatarURL   = "avatar_url"
	FieldDefaultRole = "default_role"
	FieldActive      = "active"
	FieldMFAEnabled  = "mfa_enabled"
)

var claimFields = map[string]func(domain.Account) any{
	FieldID:          func(a domain.Account) any { return a.ID },
	FieldDisplayName: func(a domain.Account) any { return a.DisplayName },
	FieldEmail:       func(a domain.Account) any { return a.Email },
	FieldAvatarURL:   func(a domain.Account) any { return a.AvatarURL },
	FieldDefaultRole: func(a domain.Account) any { return a.DefaultRole },
	FieldActive:      func(a domain.Account) any { return a.Active },
	FieldMFAEnabled:  func(a domain.Account) any { return a.MFAEnabled },
}

// ParseClaimsMap parses "claim=field,claim=field" into a claim mapping.
func ParseClaimsMap(s string) (map[string]string, error) {
	out := make(map[string]string)
	for pair := range strings.SplitSeq(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		claim, field, ok := strings.Cut(pair, "=")
		claim, field = strings.TrimSpace(claim), strings.TrimSpace(field)
		if !ok || claim == "" || field == "" {
			return nil, fmt.Errorf("invalid claim mapping %q", pair)
		}
		if _, known := claimFields[field]; !known {
			return nil, fmt.Errorf("unknown account field %q for claim %q", field, claim)
		}
		out[claim] = field
	}
	return out, nil
}

// SessionIssuer signs access tokens and stores refresh tokens.
type SessionIssuer struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Namespace is the claim holding the mapped account fields. Empty
	// disables the block.
	Namespace string

	// ClaimsMap maps extra claim names to account fields, on top of the
	// x-hasura-* defaults.
	ClaimsMap map[string]string
}

// PreparedSession is a signed but not yet persisted session.
type PreparedSession struct {
	Session *domain.Session
	Refresh domain.RefreshToken
}

// Issue signs and persists a session for acc in its own transaction.
func (s *SessionIssuer) Issue(ctx context.Context, acc domain.Account) (*domain.Session, error) {
	p, err := s.Prepare(acc, time.Now())
	if err != nil {
		return nil, err
	}
	if err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		return s.Persist(ctx, tx, p)
	}); err != nil {
		return nil, err
	}
	return p.Session, nil
}

// IssueTx signs and persists a session for acc inside tx.
func (s *SessionIssuer) IssueTx(ctx context.Context, tx store.Tx, acc domain.Account, now time.Time) (*domain.Session, error) {
	p, err := s.Prepare(acc, now)
	if err != nil {
		return nil, err
	}
	if err := s.Persist(ctx, tx, p); err != nil {
		return nil, err
	}
	return p.Session, nil
}

// Prepare signs the access token and mints the refresh token without
// touching the store.
func (s *SessionIssuer) Prepare(acc domain.Account, now time.Time) (PreparedSession, error) {
	accessTTL := s.AccessTTL
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	refreshTTL := s.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}

	sid := idx.NewAt(now).String()
	amr := []string{jwtx.AMROTP, jwtx.AMRMFA}

	claims := jwtx.NewAccessClaims(acc.ID, sid, amr, accessTTL, s.Issuer, s.Audience, now)
	if s.Namespace != "" {
		claims.Extra = map[string]any{s.Namespace: s.namespaceClaims(acc)}
	}

	access, err := s.KeyManager.GetSigner().Sign(claims)
	if err != nil {
		return PreparedSession{}, fmt.Errorf("%w: sign access token: %w", ErrSessionIssuance, err)
	}

	refresh, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return PreparedSession{}, fmt.Errorf("%w: generate refresh token: %w", ErrSessionIssuance, err)
	}

	return PreparedSession{
		Session: &domain.Session{
			AccessToken:     access,
			AccessExpiresIn: accessTTL,
			AccessExpiresAt: now.Add(accessTTL),
			RefreshToken:    refresh,
			SessionID:       sid,
			User:            acc.Profile(),
		},
		Refresh: domain.RefreshToken{
			ID:        idx.NewAt(now).String(),
			AccountID: acc.ID,
			TokenHash: cryptox.FingerprintToken(refresh),
			SessionID: sid,
			AMR:       amr,
			ExpiresAt: now.Add(refreshTTL),
			CreatedAt: now,
		},
	}, nil
}

// Persist stores the refresh token of p, replacing the account's previous one.
func (s *SessionIssuer) Persist(ctx context.Context, tx store.Tx, p PreparedSession) error {
	if err := tx.RefreshTokens().UpsertRefreshToken(ctx, p.Refresh); err != nil {
		return fmt.Errorf("%w: store refresh token: %w", ErrSessionIssuance, err)
	}
	return nil
}

func (s *SessionIssuer) namespaceClaims(acc domain.Account) map[string]any {
	role := acc.DefaultRole
	if role == "" {
		role = "user"
	}
	out := map[string]any{
		"x-hasura-user-id":       acc.ID,
		"x-hasura-default-role":  role,
		"x-hasura-allowed-roles": []string{role},
	}
	for claim, field := range s.ClaimsMap {
		if get, ok := claimFields[field]; ok {
			out[claim] = get(acc)
		}
	}
	return out
}
