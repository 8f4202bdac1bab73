package sqlite

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 1

var schema = []struct {
	name string
	ddl  string
}{
	{"users table", `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			command_count INTEGER NOT NULL DEFAULT 0
		);`},
	{"threads table", `
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			prefix TEXT NOT NULL DEFAULT '',
			first_seen TEXT NOT NULL
		);`},
	{"command_usage table", `
		CREATE TABLE IF NOT EXISTS command_usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			command TEXT NOT NULL,
			args TEXT NOT NULL DEFAULT '',
			at TEXT NOT NULL
		);`},
	{"messages table", `
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL DEFAULT '',
			thread_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			length INTEGER NOT NULL DEFAULT 0,
			at TEXT NOT NULL
		);`},
	{"counters table", `
		CREATE TABLE IF NOT EXISTS counters (
			scope TEXT NOT NULL,
			owner TEXT NOT NULL,
			key TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (scope, owner, key)
		);`},
	{"idx_command_usage_thread_at", `CREATE INDEX IF NOT EXISTS idx_command_usage_thread_at ON command_usage(thread_id, at);`},
	{"idx_messages_at", `CREATE INDEX IF NOT EXISTS idx_messages_at ON messages(at);`},
}

// Migrate ensures the schema exists and is upgraded to SchemaVersion.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, step := range schema {
		if _, err := tx.Exec(step.ddl); err != nil {
			return fmt.Errorf("migrate: create %s: %w", step.name, err)
		}
	}

	_, err = tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?);`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit transaction: %w", err)
	}
	return nil
}
