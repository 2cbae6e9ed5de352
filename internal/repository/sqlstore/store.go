// Package sqlstore implements the repository interfaces on database/sql.
//
// Two engines are supported behind the same queries:
//   - SQLite via modernc.org/sqlite (pure Go, no cgo), the default. A plain
//     path such as "data/todo.db" or ":memory:" selects it.
//   - Postgres via the pgx stdlib driver, selected by a postgres:// or
//     postgresql:// DATABASE_URL.
//
// Queries are written once with ? placeholders and rebound to $1, $2, ... for
// Postgres. The schema is created by goose from per-dialect SQL files
// embedded in the binary.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrations embed.FS

// Dialect identifies the SQL engine behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DialectFor picks the engine for a DATABASE_URL.
func DialectFor(databaseURL string) Dialect {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// DB wraps a sql.DB connection pool and hands out the two stores.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open connects to databaseURL, applies pending migrations and returns the DB.
//
// databaseURL examples:
//   - "data/todo.db"            → SQLite file (parent directory is created)
//   - "sqlite:///data/todo.db"  → same, URL form
//   - ":memory:"                → in-memory SQLite, used by tests
//   - "postgres://u:p@host/db"  → Postgres
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	var (
		db  *DB
		err error
	)
	switch DialectFor(databaseURL) {
	case Postgres:
		db, err = openPostgres(ctx, databaseURL)
	default:
		db, err = openSQLite(ctx, sqlitePath(databaseURL))
	}
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}

	return db, nil
}

// New wraps an existing pool without running migrations.
// Tests use it to put go-sqlmock behind the stores.
func New(conn *sql.DB, dialect Dialect) *DB {
	return &DB{conn: conn, dialect: dialect, now: time.Now}
}

func sqlitePath(databaseURL string) string {
	for _, prefix := range []string{"sqlite:///", "sqlite://", "sqlite:"} {
		if rest, ok := strings.CutPrefix(databaseURL, prefix); ok {
			return rest
		}
	}
	return databaseURL
}

func openSQLite(ctx context.Context, path string) (*DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlstore: creating database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening sqlite: %w", err)
	}

	// One connection: SQLite serializes writers anyway, per-connection pragmas
	// stay in force, and ":memory:" would otherwise give each pooled
	// connection its own empty database.
	conn.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlstore: %s: %w", p, err)
		}
	}

	return New(conn, SQLite), nil
}

func openPostgres(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening postgres: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging postgres: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	return New(conn, Postgres), nil
}

// Migrate applies every pending migration for the DB's dialect.
func (db *DB) Migrate(ctx context.Context) error {
	gooseDialect := goose.DialectSQLite3
	if db.dialect == Postgres {
		gooseDialect = goose.DialectPostgres
	}

	fsys, err := fs.Sub(migrations, "migrations/"+string(db.dialect))
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(gooseDialect, db.conn, fsys)
	if err != nil {
		return err
	}

	_, err = provider.Up(ctx)
	return err
}

// Users returns the credential store.
func (db *DB) Users() *UserStore {
	return &UserStore{db: db}
}

// Tasks returns the task repository.
func (db *DB) Tasks() *TaskStore {
	return &TaskStore{db: db}
}

// Dialect reports which engine the DB talks to.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// rebind rewrites ? placeholders for the DB's dialect.
func (db *DB) rebind(query string) string {
	if db.dialect == Postgres {
		return sqlx.Rebind(sqlx.DOLLAR, query)
	}
	return query
}

// timestamp is the store's notion of "now": UTC with microsecond precision,
// which both engines round-trip exactly.
func (db *DB) timestamp() time.Time {
	return db.now().UTC().Truncate(time.Microsecond)
}
