package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/ticketauth/internal/auth/store/sqlstore"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const memoryPath = ":memory:"

// DSN builds a modernc.org/sqlite connection string for path. Write
// transactions take the RESERVED lock up front (_txlock=immediate) so two
// concurrent exchanges serialise on BEGIN instead of failing on upgrade.
func DSN(path string) string {
	pragmas := "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	if path == memoryPath || path == "" {
		return "file::memory:?" + pragmas
	}
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?%s&_pragma=journal_mode(WAL)", path, pragmas)
}

// NewStore opens the SQLite database at path (":memory:" for a throwaway
// database) and returns a store.Store backed by it.
func NewStore(path string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, err
	}

	// Each connection to :memory: is its own database.
	if path == memoryPath || path == "" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sqlstore.New(db, sqlstore.Options{
		Dialect:           sqlstore.SQLite,
		Migrate:           applyMigrations,
		IsUniqueViolation: isUniqueViolation,
	}), nil
}

func isUniqueViolation(err error) bool {
	var serr *msqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
