// Package database owns the relational store connection and schema
// migrations shared by the History, Template, and Preference stores. Driver
// selection (MySQL in production, SQLite for local/dev/tests) is config
// driven per spec §6's "Persisted state: relational store" note.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"notifyhub/internal/logging"
)

// Driver identifies which database/sql driver to open.
type Driver string

const (
	DriverMySQL  Driver = "mysql"
	DriverSQLite Driver = "sqlite3"
)

// Config holds connection settings for the relational store.
type Config struct {
	Driver       Driver
	Host         string
	Port         int
	User         string
	Password     string
	DatabaseName string
	// DSN, when non-empty, is used verbatim instead of building one from the
	// fields above — the SQLite driver's "file path or :memory:" DSN shape
	// does not fit the MySQL host/port/user model.
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// DefaultConfig returns sane defaults for local development against SQLite.
func DefaultConfig() *Config {
	return &Config{
		Driver:       DriverSQLite,
		DSN:          "notifyhub.db",
		MaxOpenConns: 25,
		MaxIdleConns: 10,
		MaxLifetime:  5 * time.Minute,
	}
}

// dsn builds the driver-specific data source name.
func (c *Config) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=Local&charset=utf8mb4&collation=utf8mb4_unicode_ci",
			c.User, c.Password, c.Host, c.Port, c.DatabaseName)
	default:
		return ":memory:"
	}
}

// Open opens and verifies a connection using the configured driver.
func Open(cfg *Config) (*sql.DB, error) {
	driver := string(cfg.Driver)
	if driver == "" {
		driver = string(DriverSQLite)
	}

	db, err := sql.Open(driver, cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}

	logging.Info("database: connected driver=%s", driver)
	return db, nil
}

// SetupDatabase applies every registered migration against db.
func SetupDatabase(db *sql.DB, driver Driver) error {
	migrator, err := NewMigrator(db, driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	return migrator.ApplyAll()
}
