// Package database opens the relational store (PostgreSQL through pgx, or
// an embedded SQLite file) and applies the embedded schema migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

// Dialect selects SQL placeholder style and migrations.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB is a database/sql handle plus the dialect it speaks.
type DB struct {
	*sql.DB
	Dialect Dialect

	dsn  string
	pool *pgxpool.Pool
}

// Close releases the handle and, for PostgreSQL, the underlying pool.
func (db *DB) Close() error {
	err := db.DB.Close()
	if db.pool != nil {
		db.pool.Close()
	}
	return err
}

// Connect opens a pgx connection pool using the provided DSN and exposes it
// as *sql.DB so the repository can share one code path with SQLite.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 16
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{DB: stdlib.OpenDBFromPool(pool), Dialect: Postgres, dsn: dsn, pool: pool}, nil
}

// OpenSQLite opens (creating if needed) an SQLite database. Use ":memory:"
// for a private in-memory database. SQLite allows one writer at a time, so
// the handle is limited to a single connection.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &DB{DB: sqlDB, Dialect: SQLite, dsn: dsn}, nil
}

// Open dispatches on driver ("postgres" or "sqlite").
func Open(ctx context.Context, driver, target string) (*DB, error) {
	switch driver {
	case string(Postgres):
		return Connect(ctx, target)
	case string(SQLite):
		return OpenSQLite(ctx, target)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// Migrate applies every pending up migration for the database's dialect.
func Migrate(db *DB, logger *slog.Logger) error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+string(db.Dialect))
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", db.Dialect, err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	var m *migrate.Migrate
	switch db.Dialect {
	case Postgres:
		// The pgx5 driver opens its own connection from the URL, so closing
		// the migrator leaves the service pool untouched.
		m, err = migrate.NewWithSourceInstance("iofs", source, pgx5URL(db.dsn))
		if err != nil {
			return fmt.Errorf("init migrations: %w", err)
		}
		defer m.Close()
	case SQLite:
		// The sqlite driver wraps our handle; closing the migrator would close
		// it (and lose an in-memory database), so it is left open.
		driver, derr := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
		if derr != nil {
			return fmt.Errorf("init sqlite migration driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "sqlite", driver)
		if err != nil {
			return fmt.Errorf("init migrations: %w", err)
		}
	default:
		return fmt.Errorf("unknown dialect %q", db.Dialect)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("migrations applied",
		slog.String("dialect", string(db.Dialect)),
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

func pgx5URL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
