package sheets

import (
	"context"
	"fmt"
	"strings"
)

// Spreadsheet reads the configuration tabs of the course spreadsheet:
// assignments, form questions and environment overrides. The Roster tab is
// served separately by RosterStore because it is the only writable tab.
type Spreadsheet struct {
	client *Client
}

// NewSpreadsheet creates a reader over the course spreadsheet.
func NewSpreadsheet(client *Client) *Spreadsheet {
	return &Spreadsheet{client: client}
}

// Records reads one tab into column-keyed maps, first row as headers.
func (s *Spreadsheet) Records(ctx context.Context, sheetName string) ([]map[string]string, error) {
	values, err := s.client.Values(ctx, sheetName)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("sheets: tab %q has no header row", sheetName)
	}

	headers := values[0]
	records := make([]map[string]string, 0, len(values)-1)
	for _, row := range values[1:] {
		records = append(records, rowToFields(headers, row))
	}
	return records, nil
}

// AssignmentRecords reads the assignment catalog tab.
func (s *Spreadsheet) AssignmentRecords(ctx context.Context) ([]map[string]string, error) {
	return s.Records(ctx, SheetAssignments)
}

// QuestionRecords reads the form question mapping tab.
func (s *Spreadsheet) QuestionRecords(ctx context.Context) ([]map[string]string, error) {
	return s.Records(ctx, SheetFormQuestions)
}

// EnvironmentOverrides reads the environment tab into a key/value map.
// Staff keep course-specific settings (thresholds, email template) next to
// the data they describe instead of in deployment config.
func (s *Spreadsheet) EnvironmentOverrides(ctx context.Context) (map[string]string, error) {
	records, err := s.Records(ctx, SheetEnvironment)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]string, len(records))
	for _, rec := range records {
		key := strings.TrimSpace(rec["key"])
		if key == "" {
			continue
		}
		overrides[key] = strings.TrimSpace(rec["value"])
	}
	return overrides, nil
}
