package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/store/sqlstore"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

// Open opens a Postgres connection using the given DSN. Caller must call Close when done.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewStore connects to dsn and returns a store.Store backed by it.
func NewStore(dsn string) (*sqlstore.Store, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return NewFromDB(db), nil
}

// NewFromDB wraps an existing handle. Row-level locking on the conditional
// UPDATE makes READ COMMITTED sufficient for ticket consumption.
func NewFromDB(db *sql.DB) *sqlstore.Store {
	return sqlstore.New(db, sqlstore.Options{
		Dialect:           sqlstore.Postgres,
		Migrate:           applyMigrations,
		IsUniqueViolation: isUniqueViolation,
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
