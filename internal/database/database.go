package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// createTables creates the necessary tables
func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS guilds (
			guild_id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS voice_time (
			guild_id TEXT NOT NULL REFERENCES guilds (guild_id),
			user_id TEXT NOT NULL,
			total_time_ms BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS voice_sessions (
			id BIGSERIAL PRIMARY KEY,
			guild_id TEXT NOT NULL REFERENCES guilds (guild_id),
			user_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			start_time BIGINT NOT NULL,
			end_time BIGINT NOT NULL,
			duration BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS voice_sessions_guild_user_idx
			ON voice_sessions (guild_id, user_id)`,
		`CREATE TABLE IF NOT EXISTS reward_tiers (
			guild_id TEXT NOT NULL REFERENCES guilds (guild_id),
			hours INTEGER NOT NULL,
			role_id TEXT NOT NULL,
			role_name TEXT NOT NULL,
			PRIMARY KEY (guild_id, hours)
		)`,
		`CREATE TABLE IF NOT EXISTS idle_channels (
			guild_id TEXT NOT NULL REFERENCES guilds (guild_id),
			channel_id TEXT NOT NULL,
			PRIMARY KEY (guild_id, channel_id)
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_resets (
			id TEXT PRIMARY KEY,
			guild_id TEXT NOT NULL REFERENCES guilds (guild_id),
			original_spec TEXT NOT NULL,
			next_execution BIGINT NOT NULL,
			recurrence TEXT NOT NULL DEFAULT 'none',
			created_by TEXT NOT NULL,
			channel_id TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			execution_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ranking_settings (
			guild_id TEXT PRIMARY KEY REFERENCES guilds (guild_id),
			channel_id TEXT NOT NULL DEFAULT '',
			show_on_reset BOOLEAN NOT NULL DEFAULT TRUE,
			top_count INTEGER NOT NULL DEFAULT 10
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}
