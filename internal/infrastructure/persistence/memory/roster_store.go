// Package memory implements an in-memory roster store for tests and
// offline/dry-run mode. Semantics mirror the spreadsheet backend, including
// zero-based row/column addressing and case-insensitive identity lookups.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// RosterStore implements record.Store on top of a header slice and row maps.
type RosterStore struct {
	mu      sync.RWMutex
	headers []string
	rows    []map[string]string
}

// NewRosterStore creates a store with the given headers and no rows.
func NewRosterStore(headers []string) *RosterStore {
	return &RosterStore{headers: append([]string(nil), headers...)}
}

// NewRosterStoreWithRows creates a pre-populated store. Rows are copied.
func NewRosterStoreWithRows(headers []string, rows []map[string]string) *RosterStore {
	s := NewRosterStore(headers)
	for _, row := range rows {
		s.rows = append(s.rows, copyRow(s.headers, row))
	}
	return s
}

// Headers returns the ordered column names.
func (s *RosterStore) Headers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.headers...), nil
}

// FindByIdentity looks up a row by the value of one column, case-insensitive.
func (s *RosterStore) FindByIdentity(ctx context.Context, column, value string) (int, map[string]string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, row := range s.rows {
		if strings.EqualFold(strings.TrimSpace(row[column]), strings.TrimSpace(value)) {
			return i, copyRow(s.headers, row), true, nil
		}
	}
	return 0, nil, false, nil
}

// Rows returns a copy of all rows in table order.
func (s *RosterStore) Rows(ctx context.Context) ([]map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]map[string]string, len(s.rows))
	for i, row := range s.rows {
		result[i] = copyRow(s.headers, row)
	}
	return result, nil
}

// UpdateCell writes a single cell.
func (s *RosterStore) UpdateCell(ctx context.Context, rowIndex, colIndex int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rowIndex < 0 || rowIndex >= len(s.rows) {
		return fmt.Errorf("memory: no roster row at index %d", rowIndex)
	}
	if colIndex < 0 || colIndex >= len(s.headers) {
		return fmt.Errorf("memory: no header at position %d", colIndex)
	}
	s.rows[rowIndex][s.headers[colIndex]] = value
	return nil
}

// AppendRow adds a row with values in header order.
func (s *RosterStore) AppendRow(ctx context.Context, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := make(map[string]string, len(s.headers))
	for i, h := range s.headers {
		if i < len(values) {
			row[h] = values[i]
		} else {
			row[h] = ""
		}
	}
	s.rows = append(s.rows, row)
	return nil
}

// Row returns a copy of one row, for test assertions.
func (s *RosterStore) Row(rowIndex int) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rowIndex < 0 || rowIndex >= len(s.rows) {
		return nil, false
	}
	return copyRow(s.headers, s.rows[rowIndex]), true
}

// Len returns the number of rows.
func (s *RosterStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func copyRow(headers []string, row map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h] = row[h]
	}
	return out
}
