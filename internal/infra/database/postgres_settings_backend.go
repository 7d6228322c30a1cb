package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings_documents (
    name       TEXT PRIMARY KEY,
    body       TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS settings_recovery (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL,
    body         TEXT NOT NULL,
    recovered_at TIMESTAMPTZ NOT NULL
);`

// PostgresSettingsBackend keeps the settings document in a single row.
// An upsert replaces the row atomically; corrupt bodies are copied to settings_recovery.
type PostgresSettingsBackend struct {
	db   *sql.DB
	name string
}

func NewPostgresSettingsBackend(db *sql.DB, name string) *PostgresSettingsBackend {
	if name == "" {
		name = "default"
	}
	return &PostgresSettingsBackend{db: db, name: name}
}

// EnsureSchema creates the tables when missing.
func (b *PostgresSettingsBackend) EnsureSchema(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error creating settings schema: %w", err)
	}
	return nil
}

func (b *PostgresSettingsBackend) Read(ctx context.Context) ([]byte, error) {
	query := `SELECT body FROM settings_documents WHERE name = $1`
	var body string
	err := b.db.QueryRowContext(ctx, query, b.name).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading settings document: %w", err)
	}
	return []byte(body), nil
}

func (b *PostgresSettingsBackend) Write(ctx context.Context, data []byte) error {
	query := `INSERT INTO settings_documents (name, body, updated_at)
               VALUES ($1, $2, NOW())
               ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	if _, err := b.db.ExecContext(ctx, query, b.name, string(data)); err != nil {
		return fmt.Errorf("error writing settings document: %w", err)
	}
	return nil
}

// Quarantine copies the corrupt body into settings_recovery and returns the recovery row reference.
func (b *PostgresSettingsBackend) Quarantine(ctx context.Context, data []byte, at time.Time) (string, error) {
	query := `INSERT INTO settings_recovery (name, body, recovered_at)
               VALUES ($1, $2, $3)
               RETURNING id`
	var id int64
	if err := b.db.QueryRowContext(ctx, query, b.name, string(data), at.UTC()).Scan(&id); err != nil {
		return "", fmt.Errorf("error preserving corrupt settings: %w", err)
	}
	return fmt.Sprintf("settings_recovery/%d", id), nil
}
