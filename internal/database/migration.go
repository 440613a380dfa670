package database

import (
	"database/sql"
	"fmt"

	"notifyhub/internal/logging"
)

// Migration is one named, idempotent schema change.
type Migration struct {
	Name string
	SQL  map[Driver]string
}

// Migrator tracks and applies the schema for the History, Template, and
// Preference stores. Each driver gets its own SQL text because MySQL's
// AUTO_INCREMENT/ENGINE=InnoDB syntax and SQLite's AUTOINCREMENT syntax are
// not interchangeable.
type Migrator struct {
	db     *sql.DB
	driver Driver
}

// NewMigrator creates a migrator and ensures the bookkeeping table exists.
func NewMigrator(db *sql.DB, driver Driver) (*Migrator, error) {
	m := &Migrator{db: db, driver: driver}
	if err := m.createMigrationsTable(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Migrator) createMigrationsTable() error {
	var query string
	switch m.driver {
	case DriverMySQL:
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			id INT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	default:
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`
	}
	_, err := m.db.Exec(query)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(name string) (bool, error) {
	var count int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Apply runs a single migration if it has not already been applied.
func (m *Migrator) Apply(mig Migration) error {
	ok, err := m.applied(mig.Name)
	if err != nil {
		return fmt.Errorf("checking migration status: %w", err)
	}
	if ok {
		return nil
	}

	sqlText, ok := mig.SQL[m.driver]
	if !ok {
		return fmt.Errorf("migration %s has no SQL for driver %s", mig.Name, m.driver)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction for %s: %w", mig.Name, err)
	}

	if _, err := tx.Exec(sqlText); err != nil {
		tx.Rollback()
		return fmt.Errorf("applying migration %s: %w", mig.Name, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (name) VALUES (?)`, mig.Name); err != nil {
		tx.Rollback()
		return fmt.Errorf("recording migration %s: %w", mig.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %s: %w", mig.Name, err)
	}

	logging.Info("database: applied migration %s", mig.Name)
	return nil
}

// ApplyAll runs every core migration notifyhub ships with, in order.
func (m *Migrator) ApplyAll() error {
	for _, mig := range CoreMigrations {
		if err := m.Apply(mig); err != nil {
			return err
		}
	}
	return nil
}

// CoreMigrations defines the notification-domain schema: history records,
// templates, user preferences, and the preference audit log.
var CoreMigrations = []Migration{
	{
		Name: "0001_create_notification_history",
		SQL: map[Driver]string{
			DriverMySQL: `CREATE TABLE notification_history (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				notification_id VARCHAR(64) NOT NULL UNIQUE,
				correlation_id VARCHAR(64),
				channel VARCHAR(16) NOT NULL,
				recipient VARCHAR(255) NOT NULL,
				subject VARCHAR(500),
				content TEXT,
				template_name VARCHAR(128),
				status VARCHAR(16) NOT NULL,
				retry_count INT NOT NULL DEFAULT 0,
				max_retry_attempts INT NOT NULL DEFAULT 3,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				last_attempt_at TIMESTAMP NULL,
				delivered_at TIMESTAMP NULL,
				error_message TEXT,
				external_message_id VARCHAR(255),
				reference_id VARCHAR(128),
				reference_type VARCHAR(64),
				updated_by VARCHAR(128),
				INDEX idx_history_recipient (recipient, created_at),
				INDEX idx_history_status (status),
				INDEX idx_history_correlation (correlation_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			DriverSQLite: `CREATE TABLE notification_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				notification_id TEXT NOT NULL UNIQUE,
				correlation_id TEXT,
				channel TEXT NOT NULL,
				recipient TEXT NOT NULL,
				subject TEXT,
				content TEXT,
				template_name TEXT,
				status TEXT NOT NULL,
				retry_count INTEGER NOT NULL DEFAULT 0,
				max_retry_attempts INTEGER NOT NULL DEFAULT 3,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				last_attempt_at DATETIME,
				delivered_at DATETIME,
				error_message TEXT,
				external_message_id TEXT,
				reference_id TEXT,
				reference_type TEXT,
				updated_by TEXT
			)`,
		},
	},
	{
		Name: "0002_create_history_indexes_sqlite",
		SQL: map[Driver]string{
			DriverSQLite: `CREATE INDEX idx_history_recipient ON notification_history(recipient, created_at);
			CREATE INDEX idx_history_status ON notification_history(status);
			CREATE INDEX idx_history_correlation ON notification_history(correlation_id);`,
			DriverMySQL: `SELECT 1`,
		},
	},
	{
		Name: "0003_create_notification_templates",
		SQL: map[Driver]string{
			DriverMySQL: `CREATE TABLE notification_templates (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				template_name VARCHAR(128) NOT NULL,
				display_name VARCHAR(255),
				description TEXT,
				channel VARCHAR(16) NOT NULL,
				category VARCHAR(32) NOT NULL,
				subject_template VARCHAR(500),
				content_template TEXT NOT NULL,
				html_template TEXT,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				version INT NOT NULL DEFAULT 1,
				default_priority VARCHAR(16) NOT NULL DEFAULT 'MEDIUM',
				rate_limit_per_hour INT NOT NULL DEFAULT 0,
				created_by VARCHAR(128),
				updated_by VARCHAR(128),
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
				UNIQUE KEY uq_template_name_version (template_name, version),
				INDEX idx_template_active (template_name, active)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			DriverSQLite: `CREATE TABLE notification_templates (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				template_name TEXT NOT NULL,
				display_name TEXT,
				description TEXT,
				channel TEXT NOT NULL,
				category TEXT NOT NULL,
				subject_template TEXT,
				content_template TEXT NOT NULL,
				html_template TEXT,
				active BOOLEAN NOT NULL DEFAULT 1,
				version INTEGER NOT NULL DEFAULT 1,
				default_priority TEXT NOT NULL DEFAULT 'MEDIUM',
				rate_limit_per_hour INTEGER NOT NULL DEFAULT 0,
				created_by TEXT,
				updated_by TEXT,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (template_name, version)
			)`,
		},
	},
	{
		Name: "0004_create_user_preferences",
		SQL: map[Driver]string{
			DriverMySQL: `CREATE TABLE user_notification_preferences (
				user_id VARCHAR(128) PRIMARY KEY,
				notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
				preferred_channel VARCHAR(16) NOT NULL DEFAULT 'EMAIL',
				enabled_channels VARCHAR(255) NOT NULL DEFAULT 'EMAIL,IN_APP',
				enabled_categories VARCHAR(255) NOT NULL DEFAULT '',
				email_address VARCHAR(255),
				phone_number VARCHAR(32),
				device_token VARCHAR(500),
				quiet_hours_enabled BOOLEAN NOT NULL DEFAULT FALSE,
				quiet_start VARCHAR(8),
				quiet_end VARCHAR(8),
				time_zone VARCHAR(64) NOT NULL DEFAULT 'UTC',
				frequency_limit_per_hour INT NOT NULL DEFAULT 20,
				frequency_limit_per_day INT NOT NULL DEFAULT 100,
				language VARCHAR(16) NOT NULL DEFAULT 'en',
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			DriverSQLite: `CREATE TABLE user_notification_preferences (
				user_id TEXT PRIMARY KEY,
				notifications_enabled BOOLEAN NOT NULL DEFAULT 1,
				preferred_channel TEXT NOT NULL DEFAULT 'EMAIL',
				enabled_channels TEXT NOT NULL DEFAULT 'EMAIL,IN_APP',
				enabled_categories TEXT NOT NULL DEFAULT '',
				email_address TEXT,
				phone_number TEXT,
				device_token TEXT,
				quiet_hours_enabled BOOLEAN NOT NULL DEFAULT 0,
				quiet_start TEXT,
				quiet_end TEXT,
				time_zone TEXT NOT NULL DEFAULT 'UTC',
				frequency_limit_per_hour INTEGER NOT NULL DEFAULT 20,
				frequency_limit_per_day INTEGER NOT NULL DEFAULT 100,
				language TEXT NOT NULL DEFAULT 'en',
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
		},
	},
	{
		Name: "0005_create_preference_audit_log",
		SQL: map[Driver]string{
			DriverMySQL: `CREATE TABLE preference_audit_log (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				user_id VARCHAR(128) NOT NULL,
				field VARCHAR(64) NOT NULL,
				old_value VARCHAR(500),
				new_value VARCHAR(500),
				changed_by VARCHAR(128),
				changed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				INDEX idx_audit_user (user_id, changed_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			DriverSQLite: `CREATE TABLE preference_audit_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				field TEXT NOT NULL,
				old_value TEXT,
				new_value TEXT,
				changed_by TEXT,
				changed_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
		},
	},
	{
		Name: "0006_create_preference_audit_index_sqlite",
		SQL: map[Driver]string{
			DriverSQLite: `CREATE INDEX idx_audit_user ON preference_audit_log(user_id, changed_at);`,
			DriverMySQL:  `SELECT 1`,
		},
	},
}
