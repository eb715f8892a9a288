package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER STORE IMPLEMENTATION
// Implements record.Store over the JSONB roster mirror. Row and column
// addressing is zero-based, matching the engine's view of the table.
// ══════════════════════════════════════════════════════════════════════════════

// RosterStore implements record.Store for PostgreSQL.
type RosterStore struct {
	conn *Connection
}

// NewRosterStore creates a new RosterStore.
func NewRosterStore(conn *Connection) *RosterStore {
	return &RosterStore{conn: conn}
}

// Headers returns the ordered column names.
func (s *RosterStore) Headers(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT name FROM roster_headers ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load headers: %w", err)
	}
	defer rows.Close()

	var headers []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan header: %w", err)
		}
		headers = append(headers, name)
	}
	return headers, rows.Err()
}

// SetHeaders replaces the header set. Used by the sync job that mirrors the
// spreadsheet into Postgres.
func (s *RosterStore) SetHeaders(ctx context.Context, headers []string) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM roster_headers`); err != nil {
			return fmt.Errorf("postgres: failed to clear headers: %w", err)
		}
		for i, name := range headers {
			if _, err := tx.Exec(ctx,
				`INSERT INTO roster_headers (position, name) VALUES ($1, $2)`, i, name); err != nil {
				return fmt.Errorf("postgres: failed to insert header %q: %w", name, err)
			}
		}
		return nil
	})
}

// FindByIdentity looks up a row by the value of one column, case-insensitive.
func (s *RosterStore) FindByIdentity(ctx context.Context, column, value string) (int, map[string]string, bool, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT row_index, fields FROM roster
		 WHERE lower(fields->>$1) = lower($2)
		 ORDER BY row_index LIMIT 1`,
		column, value)

	var rowIndex int
	var raw []byte
	if err := row.Scan(&rowIndex, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, false, nil
		}
		return 0, nil, false, fmt.Errorf("postgres: failed to find row by %s: %w", column, err)
	}

	fields, err := decodeFields(raw)
	if err != nil {
		return 0, nil, false, err
	}
	return rowIndex, fields, true, nil
}

// Rows returns all rows in table order.
func (s *RosterStore) Rows(ctx context.Context) ([]map[string]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT fields FROM roster ORDER BY row_index`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load roster: %w", err)
	}
	defer rows.Close()

	var result []map[string]string
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan row: %w", err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		result = append(result, fields)
	}
	return result, rows.Err()
}

// UpdateCell writes a single cell by row and column index.
func (s *RosterStore) UpdateCell(ctx context.Context, rowIndex, colIndex int, value string) error {
	var column string
	err := s.conn.QueryRow(ctx,
		`SELECT name FROM roster_headers WHERE position = $1`, colIndex).Scan(&column)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: no header at position %d", colIndex)
		}
		return fmt.Errorf("postgres: failed to resolve column %d: %w", colIndex, err)
	}

	tag, err := s.conn.Exec(ctx,
		`UPDATE roster
		 SET fields = jsonb_set(fields, ARRAY[$2], to_jsonb($3::text)), updated_at = NOW()
		 WHERE row_index = $1`,
		rowIndex, column, value)
	if err != nil {
		return fmt.Errorf("postgres: failed to update cell (%d, %d): %w", rowIndex, colIndex, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: no roster row at index %d", rowIndex)
	}
	return nil
}

// AppendRow adds a row with values in header order. Missing trailing values
// are stored as empty strings.
func (s *RosterStore) AppendRow(ctx context.Context, values []string) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		headerRows, err := tx.Query(ctx, `SELECT name FROM roster_headers ORDER BY position`)
		if err != nil {
			return fmt.Errorf("postgres: failed to load headers: %w", err)
		}
		var headers []string
		for headerRows.Next() {
			var name string
			if err := headerRows.Scan(&name); err != nil {
				headerRows.Close()
				return fmt.Errorf("postgres: failed to scan header: %w", err)
			}
			headers = append(headers, name)
		}
		headerRows.Close()
		if err := headerRows.Err(); err != nil {
			return err
		}

		fields := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(values) {
				fields[h] = values[i]
			} else {
				fields[h] = ""
			}
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("postgres: failed to marshal row: %w", err)
		}

		var next int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(row_index) + 1, 0) FROM roster`).Scan(&next); err != nil {
			return fmt.Errorf("postgres: failed to allocate row index: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO roster (row_index, fields) VALUES ($1, $2)`, next, raw); err != nil {
			return fmt.Errorf("postgres: failed to append row: %w", err)
		}
		return nil
	})
}

func decodeFields(raw []byte) (map[string]string, error) {
	fields := make(map[string]string)
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("postgres: failed to decode row fields: %w", err)
	}
	return fields, nil
}
