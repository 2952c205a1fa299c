// Package sqlstore implements store.Store over database/sql. The sqlite and
// postgres drivers open the connection and supply the dialect, migration
// runner and error classification; everything else is shared.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/store"
)

// Options configures a Store for a specific database engine.
type Options struct {
	Dialect Dialect

	// Migrate applies the embedded schema to db.
	Migrate func(db *sql.DB) error

	// IsUniqueViolation reports whether err is a unique/primary key violation.
	IsUniqueViolation func(err error) bool

	// TxOptions are passed to BeginTx. Nil uses the driver default.
	TxOptions *sql.TxOptions
}

type Store struct {
	db   *sql.DB
	q    *Queries
	opts Options
}

// New wraps an already configured *sql.DB.
func New(db *sql.DB, opts Options) *Store {
	if opts.IsUniqueViolation == nil {
		opts.IsUniqueViolation = func(error) bool { return false }
	}
	return &Store{
		db:   db,
		q:    NewQueries(db, opts.Dialect),
		opts: opts,
	}
}

// DB exposes the underlying handle for drivers and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ApplyMigrations() error {
	if s.opts.Migrate == nil {
		return nil
	}
	return s.opts.Migrate(s.db)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, s.opts.TxOptions)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx, q: s.q.WithTx(tx), opts: s.opts}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Accounts() store.Accounts { return &accountsRepo{q: s.q, opts: s.opts} }
func (s *Store) Tickets() store.Tickets   { return &ticketsRepo{q: s.q, opts: s.opts} }
func (s *Store) RefreshTokens() store.RefreshTokens {
	return &refreshTokensRepo{q: s.q, opts: s.opts}
}

type txStore struct {
	tx   *sql.Tx
	q    *Queries
	opts Options
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the owner commits or rolls back and the outer DB stays open.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Accounts() store.Accounts { return &accountsRepo{q: t.q, opts: t.opts} }
func (t *txStore) Tickets() store.Tickets   { return &ticketsRepo{q: t.q, opts: t.opts} }
func (t *txStore) RefreshTokens() store.RefreshTokens {
	return &refreshTokensRepo{q: t.q, opts: t.opts}
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapInsert(opts Options, err error) error {
	if err != nil && opts.IsUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func mapNullMillisPtr(n sql.NullInt64) *time.Time {
	if n.Valid {
		t := fromMillis(n.Int64)
		return &t
	}
	return nil
}

func mapOptionalMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func mapNullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		val := ns.String
		return &val
	}
	return nil
}

func mapOptionalString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}
