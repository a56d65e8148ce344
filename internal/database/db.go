package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL/MariaDB embedding cache
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL embedding cache
	_ "modernc.org/sqlite" // local file embedding cache
)

const (
	driverMySQL    = "mysql"
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// DetectDriver picks the SQL driver for databaseURL and returns the DSN to open it with.
// postgres:// and postgresql:// URLs use lib/pq, mysql:// URLs and user:pass@tcp(...)
// DSNs use the MySQL driver, and anything else is treated as a SQLite file path.
func DetectDriver(databaseURL string) (driver, dsn string) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return driverPostgres, databaseURL
	case strings.HasPrefix(databaseURL, "mysql://"):
		return driverMySQL, withParseTime(strings.TrimPrefix(databaseURL, "mysql://"))
	case strings.Contains(databaseURL, "@tcp("), strings.Contains(databaseURL, "@unix("):
		return driverMySQL, withParseTime(databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return driverSQLite, strings.TrimPrefix(databaseURL, "sqlite://")
	default:
		return driverSQLite, databaseURL
	}
}

// withParseTime makes the MySQL driver scan TIMESTAMP columns into time.Time
func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// New creates a new database connection for the embedding cache
// (supports PostgreSQL, MySQL and SQLite)
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	driver, dsn := DetectDriver(databaseURL)

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings
	if driver == driverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == driverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure sqlite: %w", err)
		}
	}

	return db, nil
}

// ExecuteReadOnlyQuerySingle executes a single-row query within a read-only transaction
func ExecuteReadOnlyQuerySingle(ctx context.Context, db *sqlx.DB, dest interface{}, query string, args ...interface{}) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}() // Always rollback, we never commit read-only transactions

	err = tx.GetContext(ctx, dest, query, args...)
	if err != nil {
		return fmt.Errorf("failed to execute read-only query: %w", err)
	}

	return nil
}

// ExecuteReadOnlyPing executes a ping within a read-only transaction
func ExecuteReadOnlyPing(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var result int
	err = tx.GetContext(ctx, &result, "SELECT 1")
	if err != nil {
		return fmt.Errorf("failed to execute read-only ping query: %w", err)
	}

	return nil
}
