package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		contact_id VARCHAR(64) NOT NULL DEFAULT '',
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		is_premium TINYINT(1) NOT NULL DEFAULT 0,
		last_active_at DATETIME(6) NULL,
		zodiac_sign VARCHAR(16) NOT NULL DEFAULT '',
		INDEX idx_users_premium (is_premium),
		INDEX idx_users_last_active (last_active_at),
		INDEX idx_users_zodiac (zodiac_sign)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS broadcast_jobs (
		id CHAR(36) PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		message_body TEXT NOT NULL,
		segment_kind VARCHAR(16) NOT NULL,
		segment_days INT NOT NULL DEFAULT 0,
		segment_sign VARCHAR(16) NOT NULL DEFAULT '',
		image_url VARCHAR(2048) NULL,
		buttons TEXT NULL,
		total INT NOT NULL DEFAULT 0,
		sent_count INT NOT NULL DEFAULT 0,
		failed_count INT NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'queued',
		requested_action VARCHAR(16) NOT NULL DEFAULT '',
		claim_token CHAR(36) NULL,
		created_at DATETIME(6) NOT NULL,
		started_at DATETIME(6) NULL,
		finished_at DATETIME(6) NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_broadcast_jobs_status (status),
		INDEX idx_broadcast_jobs_created_at (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS broadcast_recipients (
		id CHAR(36) PRIMARY KEY,
		job_id CHAR(36) NOT NULL,
		seq INT NOT NULL,
		contact_id VARCHAR(64) NOT NULL,
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		error TEXT NULL,
		sent_at DATETIME(6) NULL,
		UNIQUE KEY uq_broadcast_recipients_job_seq (job_id, seq),
		INDEX idx_broadcast_recipients_job_status (job_id, status),
		CONSTRAINT fk_broadcast_recipients_job FOREIGN KEY (job_id)
			REFERENCES broadcast_jobs (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS broadcast_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		level VARCHAR(16) NOT NULL,
		message TEXT NOT NULL,
		job_id CHAR(36) NULL,
		metadata TEXT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_broadcast_logs_job (job_id),
		INDEX idx_broadcast_logs_created_at (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		contact_id VARCHAR(64) NOT NULL DEFAULT '',
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		is_premium BOOLEAN NOT NULL DEFAULT FALSE,
		last_active_at TIMESTAMPTZ NULL,
		zodiac_sign VARCHAR(16) NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS broadcast_jobs (
		id UUID PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		message_body TEXT NOT NULL,
		segment_kind VARCHAR(16) NOT NULL,
		segment_days INT NOT NULL DEFAULT 0,
		segment_sign VARCHAR(16) NOT NULL DEFAULT '',
		image_url TEXT NULL,
		buttons TEXT NULL,
		total INT NOT NULL DEFAULT 0,
		sent_count INT NOT NULL DEFAULT 0,
		failed_count INT NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'queued',
		requested_action VARCHAR(16) NOT NULL DEFAULT '',
		claim_token VARCHAR(36) NULL,
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ NULL,
		finished_at TIMESTAMPTZ NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS broadcast_recipients (
		id UUID PRIMARY KEY,
		job_id UUID NOT NULL REFERENCES broadcast_jobs (id) ON DELETE CASCADE,
		seq INT NOT NULL,
		contact_id VARCHAR(64) NOT NULL,
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		error TEXT NULL,
		sent_at TIMESTAMPTZ NULL,
		UNIQUE (job_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS broadcast_logs (
		id BIGSERIAL PRIMARY KEY,
		level VARCHAR(16) NOT NULL,
		message TEXT NOT NULL,
		job_id VARCHAR(36) NULL,
		metadata TEXT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_premium ON users (is_premium)`,
	`CREATE INDEX IF NOT EXISTS idx_users_last_active ON users (last_active_at)`,
	`CREATE INDEX IF NOT EXISTS idx_broadcast_jobs_status ON broadcast_jobs (status)`,
	`CREATE INDEX IF NOT EXISTS idx_broadcast_jobs_created_at ON broadcast_jobs (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_broadcast_recipients_job_status ON broadcast_recipients (job_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_broadcast_logs_job ON broadcast_logs (job_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		contact_id TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		is_premium BOOLEAN NOT NULL DEFAULT 0,
		last_active_at DATETIME NULL,
		zodiac_sign TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS broadcast_jobs (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		message_body TEXT NOT NULL,
		segment_kind TEXT NOT NULL,
		segment_days INTEGER NOT NULL DEFAULT 0,
		segment_sign TEXT NOT NULL DEFAULT '',
		image_url TEXT NULL,
		buttons TEXT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		sent_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'queued',
		requested_action TEXT NOT NULL DEFAULT '',
		claim_token TEXT NULL,
		created_at DATETIME NOT NULL,
		started_at DATETIME NULL,
		finished_at DATETIME NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS broadcast_recipients (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES broadcast_jobs (id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		contact_id TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT NULL,
		sent_at DATETIME NULL,
		UNIQUE (job_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS broadcast_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		job_id TEXT NULL,
		metadata TEXT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_broadcast_jobs_status ON broadcast_jobs (status)`,
	`CREATE INDEX IF NOT EXISTS idx_broadcast_recipients_job_status ON broadcast_recipients (job_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_broadcast_logs_job ON broadcast_logs (job_id)`,
}

// RunMigrations creates the schema for the connection's dialect. Statements
// run one at a time so no driver needs multi-statement support.
func RunMigrations(db *sqlx.DB) error {
	var schema []string
	switch db.DriverName() {
	case DriverMySQL:
		schema = mysqlSchema
	case DriverPostgres:
		schema = postgresSchema
	case DriverSQLite:
		schema = sqliteSchema
	default:
		return fmt.Errorf("no schema for driver %q", db.DriverName())
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}
