package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresBackend stores one row per session in webmcp_session_notes. The
// *sql.DB is expected to use the pgx stdlib driver.
type PostgresBackend struct {
	db *sql.DB
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// EnsureSchema creates the notes table if it is missing.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS webmcp_session_notes (
			session_id TEXT PRIMARY KEY,
			notes      JSONB NOT NULL DEFAULT '[]'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Load(ctx context.Context) (map[string][]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT session_id, notes FROM webmcp_session_notes`)
	if err != nil {
		return nil, fmt.Errorf("PostgresBackend.Load: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("PostgresBackend.Load: %w", err)
		}
		var notes []string
		if err := json.Unmarshal(raw, &notes); err != nil {
			return nil, fmt.Errorf("PostgresBackend.Load: session %q: %w", id, err)
		}
		if notes == nil {
			notes = []string{}
		}
		out[id] = notes
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PostgresBackend.Load: %w", err)
	}
	return out, nil
}

// Save upserts the changed session's row, or deletes every row after a reset.
func (b *PostgresBackend) Save(ctx context.Context, snap Snapshot) error {
	if snap.Changed == "" {
		if _, err := b.db.ExecContext(ctx, `DELETE FROM webmcp_session_notes`); err != nil {
			return fmt.Errorf("PostgresBackend.Save: %w", err)
		}
		return nil
	}
	return b.SaveSession(ctx, snap.Changed, snap.Sessions[snap.Changed])
}

// SaveSession upserts one session's row.
func (b *PostgresBackend) SaveSession(ctx context.Context, sessionID string, notes []string) error {
	if notes == nil {
		notes = []string{}
	}
	raw, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("PostgresBackend.SaveSession: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO webmcp_session_notes (session_id, notes, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id) DO UPDATE SET
			notes      = EXCLUDED.notes,
			updated_at = now()`,
		sessionID, raw,
	)
	if err != nil {
		return fmt.Errorf("PostgresBackend.SaveSession: %w", err)
	}
	return nil
}
