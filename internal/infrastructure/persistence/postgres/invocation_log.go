package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cs161-staff/extensions/internal/application/policy"
)

// ══════════════════════════════════════════════════════════════════════════════
// INVOCATION AUDIT LOG
// ══════════════════════════════════════════════════════════════════════════════

// InvocationLog persists engine outcomes for postmortems and reporting.
type InvocationLog struct {
	conn *Connection
}

// NewInvocationLog creates a new InvocationLog.
func NewInvocationLog(conn *Connection) *InvocationLog {
	return &InvocationLog{conn: conn}
}

// Record stores one engine outcome. Audit failures must never mask the
// decision itself, so callers are expected to log-and-continue on error.
func (l *InvocationLog) Record(ctx context.Context, studentEmail string, outcome *policy.Outcome) error {
	warnings := outcome.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	raw, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal warnings: %w", err)
	}

	_, err = l.conn.Exec(ctx,
		`INSERT INTO invocations (id, student_email, approved, reason, warnings)
		 VALUES ($1, $2, $3, $4, $5)`,
		outcome.InvocationID, studentEmail, outcome.Approved, outcome.Reason, raw)
	if err != nil {
		return fmt.Errorf("postgres: failed to record invocation: %w", err)
	}
	return nil
}
