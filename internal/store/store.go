package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	// Postgres driver for shared deployments.
	_ "github.com/lib/pq"
	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Supported values for Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the database backend.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `mapstructure:"driver"`

	// DSN is a file path / SQLite URI, or a Postgres connection string.
	DSN string `mapstructure:"dsn"`
}

// Store owns the database handle and hands out Conns.
type Store struct {
	*Conn

	db  *sql.DB
	drv *entsql.Driver
}

// Open connects to the database described by cfg, applies connection
// settings and runs auto-migration.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driverName, entDialect, err := resolveDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if entDialect == dialect.SQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if entDialect == dialect.SQLite {
		// SQLite has a single writer; one connection also keeps
		// per-connection pragmas in effect for every statement.
		db.SetMaxOpenConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragmas: %w", err)
		}
	}

	drv := entsql.OpenDB(entDialect, db)
	if err := migrate(ctx, drv); err != nil {
		drv.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	if err := initSequence(ctx, drv); err != nil {
		drv.Close()
		return nil, err
	}

	return &Store{
		Conn: &Conn{eq: drv, dialect: entDialect},
		db:   db,
		drv:  drv,
	}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.drv.Close()
}

// WithTx runs fn inside a database transaction. The transaction is rolled
// back when fn returns an error and committed otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Conn) error) error {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Conn{eq: tx, dialect: s.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func resolveDriver(name string) (string, string, error) {
	switch strings.ToLower(name) {
	case "", DriverSQLite, "sqlite3":
		return "sqlite", dialect.SQLite, nil
	case DriverPostgres, "postgresql":
		return "postgres", dialect.Postgres, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// sqliteDSN turns a plain path into a URI with foreign keys enabled on
// every connection the pool opens.
func sqliteDSN(dsn string) string {
	if strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return "file:" + dsn + "?_pragma=foreign_keys(1)"
}

// applyPragmas configures SQLite for single-user performance.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DefaultDBPath resolves the database file path in priority order:
// 1. ZAPQUIZ_DB environment variable
// 2. $XDG_DATA_HOME/zapquiz/zapquiz.db
// 3. ~/.local/share/zapquiz/zapquiz.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("ZAPQUIZ_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "zapquiz", "zapquiz.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
