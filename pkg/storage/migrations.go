package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: users and budgets
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		email      TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name  TEXT NOT NULL DEFAULT '',
		is_active  INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS budgets (
		id                      TEXT PRIMARY KEY,
		user_id                 TEXT NOT NULL,
		name                    TEXT NOT NULL,
		monthly_limit           REAL NOT NULL,
		currency                TEXT NOT NULL DEFAULT 'USD',
		time_unit               TEXT NOT NULL DEFAULT 'MONTHLY' CHECK(time_unit IN ('MONTHLY', 'QUARTERLY', 'ANNUALLY')),
		alert_threshold         INTEGER NOT NULL DEFAULT 80,
		alert_frequency         TEXT NOT NULL DEFAULT 'daily',
		is_active               INTEGER NOT NULL DEFAULT 1,
		services                TEXT NOT NULL DEFAULT '[]',
		tags                    TEXT NOT NULL DEFAULT '{}',
		notifications           TEXT,
		total_spent_this_month  REAL NOT NULL DEFAULT 0.0,
		projected_monthly_spend REAL NOT NULL DEFAULT 0.0,
		created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_budgets_user ON budgets(user_id);
	CREATE INDEX IF NOT EXISTS idx_budgets_active ON budgets(is_active);`,

	// Migration 2: alert suppression state, kept apart from budget edits
	`CREATE TABLE IF NOT EXISTS alert_state (
		budget_id          TEXT PRIMARY KEY,
		last_alert_sent_ns INTEGER NOT NULL,
		last_alert_type    TEXT NOT NULL,
		updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
