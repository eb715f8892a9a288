package postgres

import (
	"context"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ROSTER MIRROR
// The roster keeps dynamic columns: staff add assignment columns mid-semester,
// so rows carry a JSONB document keyed by column name and the header order
// lives in its own table.
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create roster mirror tables
-- Version: 001

CREATE TABLE IF NOT EXISTS roster_headers (
    position INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS roster (
    row_index INTEGER PRIMARY KEY,
    fields JSONB NOT NULL DEFAULT '{}'::jsonb,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Lookups by student email are the hot path.
CREATE INDEX IF NOT EXISTS idx_roster_email ON roster ((lower(fields->>'email')));
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: INVOCATION AUDIT LOG
// Every engine run is recorded for postmortems: what came in, what was
// decided, which warnings were raised.
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create invocation audit log
-- Version: 002

CREATE TABLE IF NOT EXISTS invocations (
    id UUID PRIMARY KEY,
    student_email TEXT NOT NULL,
    approved BOOLEAN NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    warnings JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_invocations_student_email ON invocations(lower(student_email));
CREATE INDEX IF NOT EXISTS idx_invocations_created_at ON invocations(created_at DESC);
`

var migrations = []string{
	migration001Up,
	migration002Up,
}

// RunMigrations applies all migrations in order. Statements are idempotent,
// so re-running on startup is safe.
func RunMigrations(ctx context.Context, conn *Connection) error {
	for i, m := range migrations {
		if _, err := conn.Exec(ctx, m); err != nil {
			return fmt.Errorf("%w: migration %03d: %v", ErrMigrationFailed, i+1, err)
		}
	}
	return nil
}
