package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"TrustRegistry/internal/config"
	"TrustRegistry/internal/ports"
)

//go:embed migrations
var migrations embed.FS

// Supported values of database.driver.
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Open connects the configured driver, applies migrations and returns the
// store with a function releasing it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (ports.Store, func() error, error) {
	var dialect Dialect
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStore(), func() error { return nil }, nil
	case DriverPostgres, DriverPgx:
		dialect = DialectPostgres
	case DriverSQLite:
		dialect = DialectSQLite
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if dialect == DialectSQLite {
		// one writer at a time; transactions share the single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	if err := Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return NewSQLStore(db, dialect), db.Close, nil
}

// Migrate applies the embedded schema migrations for the dialect.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	gooseDialect := goose.DialectPostgres
	dir := "migrations/postgres"
	if dialect == DialectSQLite {
		gooseDialect = goose.DialectSQLite3
		dir = "migrations/sqlite"
	}

	sub, err := fs.Sub(migrations, dir)
	if err != nil {
		return fmt.Errorf("migrations %s: %w", dir, err)
	}

	provider, err := goose.NewProvider(gooseDialect, db, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
