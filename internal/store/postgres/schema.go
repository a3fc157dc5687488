// Package postgres реализует хранилища сервиса поверх Postgres.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS applicants (
		telegram_id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		age INT NOT NULL,
		city TEXT NOT NULL,
		username TEXT,
		phone TEXT,
		status TEXT NOT NULL DEFAULT 'New',
		accepted_city TEXT,
		accepted_date DATE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS topic_mappings (
		telegram_id BIGINT PRIMARY KEY,
		thread_id BIGINT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS message_log (
		staff_message_id BIGINT NOT NULL UNIQUE,
		applicant_message_id BIGINT NOT NULL UNIQUE,
		telegram_id BIGINT NOT NULL,
		thread_id BIGINT NOT NULL,
		kind TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (staff_message_id, applicant_message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS message_reactions (
		message_id BIGINT NOT NULL,
		reactor_id BIGINT NOT NULL,
		emoji TEXT NOT NULL,
		side INT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (message_id, reactor_id)
	)`,
	`CREATE TABLE IF NOT EXISTS admin_tokens (
		token TEXT PRIMARY KEY,
		issued_to BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bot_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// EnsureSchema создает таблицы сервиса, если их еще нет.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, statement := range schemaStatements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
