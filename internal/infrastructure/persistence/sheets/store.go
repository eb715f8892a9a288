package sheets

import (
	"context"
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER STORE IMPLEMENTATION
// Implements record.Store over the "Roster" tab. The engine addresses data
// rows and columns zero-based; the +2/+1 offsets for the header row and the
// API's one-based A1 notation live here and nowhere else.
// ══════════════════════════════════════════════════════════════════════════════

// RosterStore implements record.Store for a spreadsheet tab.
type RosterStore struct {
	client    *Client
	sheetName string
}

// NewRosterStore creates a store over the Roster tab.
func NewRosterStore(client *Client) *RosterStore {
	return &RosterStore{client: client, sheetName: SheetRoster}
}

// NewTabStore creates a store over an arbitrary tab. Tests and one-off admin
// tools use this; production code sticks to NewRosterStore.
func NewTabStore(client *Client, sheetName string) *RosterStore {
	return &RosterStore{client: client, sheetName: sheetName}
}

// Headers returns the first row of the tab.
func (s *RosterStore) Headers(ctx context.Context) ([]string, error) {
	values, err := s.client.Values(ctx, s.sheetName)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("sheets: tab %q has no header row", s.sheetName)
	}
	return values[0], nil
}

// FindByIdentity looks up a data row by the value of one column,
// case-insensitive. The returned index is zero-based and data-relative.
func (s *RosterStore) FindByIdentity(ctx context.Context, column, value string) (int, map[string]string, bool, error) {
	headers, rows, err := s.headersAndRows(ctx)
	if err != nil {
		return 0, nil, false, err
	}

	col := -1
	for i, h := range headers {
		if h == column {
			col = i
			break
		}
	}
	if col == -1 {
		return 0, nil, false, fmt.Errorf("sheets: tab %q has no column %q", s.sheetName, column)
	}

	for i, row := range rows {
		var cell string
		if col < len(row) {
			cell = row[col]
		}
		if strings.EqualFold(strings.TrimSpace(cell), strings.TrimSpace(value)) {
			return i, rowToFields(headers, row), true, nil
		}
	}
	return 0, nil, false, nil
}

// Rows returns all data rows as column-keyed maps.
func (s *RosterStore) Rows(ctx context.Context) ([]map[string]string, error) {
	headers, rows, err := s.headersAndRows(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]map[string]string, len(rows))
	for i, row := range rows {
		result[i] = rowToFields(headers, row)
	}
	return result, nil
}

// UpdateCell writes one cell addressed by data-relative indices: (0, 0) is
// the first record's first column, i.e. spreadsheet cell A2.
func (s *RosterStore) UpdateCell(ctx context.Context, rowIndex, colIndex int, value string) error {
	rangeA1 := fmt.Sprintf("%s!%s%d", s.sheetName, columnLetter(colIndex), rowIndex+2)
	return s.client.Update(ctx, rangeA1, [][]string{{value}})
}

// AppendRow adds a data row with values in header order.
func (s *RosterStore) AppendRow(ctx context.Context, values []string) error {
	return s.client.Append(ctx, s.sheetName, values)
}

func (s *RosterStore) headersAndRows(ctx context.Context) ([]string, [][]string, error) {
	values, err := s.client.Values(ctx, s.sheetName)
	if err != nil {
		return nil, nil, err
	}
	if len(values) == 0 {
		return nil, nil, fmt.Errorf("sheets: tab %q has no header row", s.sheetName)
	}
	return values[0], values[1:], nil
}

func rowToFields(headers []string, row []string) map[string]string {
	fields := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(row) {
			fields[h] = row[i]
		} else {
			fields[h] = ""
		}
	}
	return fields
}
