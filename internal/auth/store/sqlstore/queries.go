package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect selects the bind parameter style of the target database.
type Dialect int

const (
	// SQLite uses positional '?' placeholders.
	SQLite Dialect = iota
	// Postgres uses numbered '$n' placeholders.
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	default:
		return "sqlite"
	}
}

// Queries executes the statements shared by every driver. Queries are written
// once with '?' placeholders and rebound per dialect.
type Queries struct {
	db      DBTX
	dialect Dialect
}

func NewQueries(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

// WithTx returns a Queries bound to tx with the same dialect.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, rebind(q.dialect, query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, rebind(q.dialect, query), args...)
}

// rebind rewrites '?' placeholders to '$n' for Postgres. Statements in this
// package never contain '?' inside string literals.
func rebind(d Dialect, query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Rows as stored. Timestamps are unix milliseconds.

type AccountRow struct {
	ID          string
	DisplayName string
	Email       string
	AvatarURL   string
	DefaultRole string
	MFAEnabled  bool
	Active      bool
	OTPSecret   sql.NullString
	CreatedAt   int64
	UpdatedAt   int64
}

type TicketRow struct {
	ID         string
	TokenHash  string
	AccountID  string
	Attempts   int
	IssuedAt   int64
	ExpiresAt  int64
	ConsumedAt sql.NullInt64
}

type RefreshTokenRow struct {
	ID        string
	AccountID string
	TokenHash string
	SessionID string
	Amr       string
	ExpiresAt int64
	CreatedAt int64
}

const accountColumns = `a.id, a.display_name, a.email, a.avatar_url, a.default_role,
	a.mfa_enabled, a.active, a.otp_secret, a.created_at, a.updated_at`

func scanAccount(row *sql.Row) (AccountRow, error) {
	var r AccountRow
	err := row.Scan(
		&r.ID,
		&r.DisplayName,
		&r.Email,
		&r.AvatarURL,
		&r.DefaultRole,
		&r.MFAEnabled,
		&r.Active,
		&r.OTPSecret,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

const getAccountByID = `SELECT ` + accountColumns + `
FROM accounts a
WHERE a.id = ?`

func (q *Queries) GetAccountByID(ctx context.Context, id string) (AccountRow, error) {
	return scanAccount(q.queryRow(ctx, getAccountByID, id))
}

const getAccountByTicketHash = `SELECT ` + accountColumns + `
FROM accounts a
JOIN tickets t ON t.account_id = a.id
WHERE t.token_hash = ?
  AND t.consumed_at IS NULL
  AND t.expires_at > ?`

func (q *Queries) GetAccountByTicketHash(ctx context.Context, hash string, now int64) (AccountRow, error) {
	return scanAccount(q.queryRow(ctx, getAccountByTicketHash, hash, now))
}

const createAccount = `INSERT INTO accounts (
	id, display_name, email, avatar_url, default_role,
	mfa_enabled, active, otp_secret, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateAccount(ctx context.Context, r AccountRow) error {
	_, err := q.exec(ctx, createAccount,
		r.ID,
		r.DisplayName,
		r.Email,
		r.AvatarURL,
		r.DefaultRole,
		r.MFAEnabled,
		r.Active,
		r.OTPSecret,
		r.CreatedAt,
		r.UpdatedAt,
	)
	return err
}

const createTicket = `INSERT INTO tickets (
	id, token_hash, account_id, attempts, issued_at, expires_at, consumed_at
) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTicket(ctx context.Context, r TicketRow) error {
	_, err := q.exec(ctx, createTicket,
		r.ID,
		r.TokenHash,
		r.AccountID,
		r.Attempts,
		r.IssuedAt,
		r.ExpiresAt,
		r.ConsumedAt,
	)
	return err
}

const getTicketByHash = `SELECT id, token_hash, account_id, attempts, issued_at, expires_at, consumed_at
FROM tickets
WHERE token_hash = ?`

func (q *Queries) GetTicketByHash(ctx context.Context, hash string) (TicketRow, error) {
	var r TicketRow
	err := q.queryRow(ctx, getTicketByHash, hash).Scan(
		&r.ID,
		&r.TokenHash,
		&r.AccountID,
		&r.Attempts,
		&r.IssuedAt,
		&r.ExpiresAt,
		&r.ConsumedAt,
	)
	return r, err
}

const consumeTicket = `UPDATE tickets
SET consumed_at = ?
WHERE token_hash = ?
  AND consumed_at IS NULL
  AND expires_at > ?`

// ConsumeTicket returns the number of rows that transitioned to consumed.
func (q *Queries) ConsumeTicket(ctx context.Context, hash string, now int64) (int64, error) {
	res, err := q.exec(ctx, consumeTicket, now, hash, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const incrementTicketAttempts = `UPDATE tickets
SET attempts = attempts + 1
WHERE token_hash = ?
RETURNING attempts`

func (q *Queries) IncrementTicketAttempts(ctx context.Context, hash string) (int, error) {
	var attempts int
	err := q.queryRow(ctx, incrementTicketAttempts, hash).Scan(&attempts)
	return attempts, err
}

const deleteTicket = `DELETE FROM tickets WHERE token_hash = ?`

func (q *Queries) DeleteTicket(ctx context.Context, hash string) error {
	_, err := q.exec(ctx, deleteTicket, hash)
	return err
}

const deleteExpiredTickets = `DELETE FROM tickets
WHERE expires_at <= ? OR consumed_at IS NOT NULL`

func (q *Queries) DeleteExpiredTickets(ctx context.Context, now int64) (int64, error) {
	res, err := q.exec(ctx, deleteExpiredTickets, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const upsertRefreshToken = `INSERT INTO refresh_tokens (
	id, account_id, token_hash, session_id, amr, expires_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (account_id) DO UPDATE SET
	id = excluded.id,
	token_hash = excluded.token_hash,
	session_id = excluded.session_id,
	amr = excluded.amr,
	expires_at = excluded.expires_at,
	created_at = excluded.created_at`

func (q *Queries) UpsertRefreshToken(ctx context.Context, r RefreshTokenRow) error {
	_, err := q.exec(ctx, upsertRefreshToken,
		r.ID,
		r.AccountID,
		r.TokenHash,
		r.SessionID,
		r.Amr,
		r.ExpiresAt,
		r.CreatedAt,
	)
	return err
}

const refreshTokenColumns = `id, account_id, token_hash, session_id, amr, expires_at, created_at`

func scanRefreshToken(row *sql.Row) (RefreshTokenRow, error) {
	var r RefreshTokenRow
	err := row.Scan(
		&r.ID,
		&r.AccountID,
		&r.TokenHash,
		&r.SessionID,
		&r.Amr,
		&r.ExpiresAt,
		&r.CreatedAt,
	)
	return r, err
}

const getRefreshTokenByAccount = `SELECT ` + refreshTokenColumns + `
FROM refresh_tokens
WHERE account_id = ?`

func (q *Queries) GetRefreshTokenByAccount(ctx context.Context, accountID string) (RefreshTokenRow, error) {
	return scanRefreshToken(q.queryRow(ctx, getRefreshTokenByAccount, accountID))
}

const getRefreshTokenByHash = `SELECT ` + refreshTokenColumns + `
FROM refresh_tokens
WHERE token_hash = ?`

func (q *Queries) GetRefreshTokenByHash(ctx context.Context, hash string) (RefreshTokenRow, error) {
	return scanRefreshToken(q.queryRow(ctx, getRefreshTokenByHash, hash))
}

const deleteExpiredRefreshTokens = `DELETE FROM refresh_tokens WHERE expires_at <= ?`

func (q *Queries) DeleteExpiredRefreshTokens(ctx context.Context, now int64) (int64, error) {
	res, err := q.exec(ctx, deleteExpiredRefreshTokens, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
