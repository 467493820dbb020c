// Package sqlite implements repository.Store on SQLite.
//
// DRIVER:
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain. It registers itself with database/sql as "sqlite".
//
// ACCESS LAYER:
// Queries go through sqlx, which scans rows straight into db-tagged structs,
// and dynamic statements (catalog filters, image sets) are built with
// squirrel. Every repository method runs against DB.q, which is either the
// pooled connection or the transaction opened by WithTx, so the same method
// bodies work inside and outside a transaction.
//
// CONNECTION POOL:
// The pool is capped at one connection. SQLite serializes writers anyway,
// per-connection PRAGMAs (foreign_keys) then apply to every statement, and a
// ":memory:" database is shared by every caller instead of one per
// connection. The consequence: while a transaction is open, code must use
// the tx-bound Store it was handed, never the outer one.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/compopedia/compopedia/internal/repository"
	"github.com/compopedia/compopedia/internal/repository/sqlite/migrations"
)

var _ repository.Store = (*DB)(nil)

// DB is the SQLite-backed Store.
type DB struct {
	conn *sqlx.DB
	q    sqlx.ExtContext
	inTx bool
}

// Open connects to dbPath and applies connection settings without touching
// the schema. Use New to also run migrations.
//
// dbPath examples:
//   - "data/compopedia.db" → file-based database
//   - ":memory:"           → in-memory database for tests
func Open(ctx context.Context, dbPath string) (*DB, error) {
	if err := registerFuncs(); err != nil {
		return nil, err
	}
	conn, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are off by default in SQLite.
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	return newDB(conn), nil
}

// New opens dbPath and migrates it to the latest schema.
func New(ctx context.Context, dbPath string, logger *slog.Logger) (*DB, error) {
	db, err := Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

func newDB(conn *sqlx.DB) *DB {
	return &DB{conn: conn, q: conn}
}

// Migrate applies pending schema migrations.
func (db *DB) Migrate(ctx context.Context, logger *slog.Logger) error {
	return migrations.Migrate(ctx, db.conn.DB, logger)
}

// SchemaVersion reports the applied migration version.
func (db *DB) SchemaVersion(ctx context.Context, logger *slog.Logger) (int64, error) {
	return migrations.Version(ctx, db.conn.DB, logger)
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}
