// Package shared contains common domain types, errors and value objects
// that are used across all domain packages.
package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Email represents a student identity. The roster is keyed by email,
// so comparisons are always case-insensitive.
type Email string

// NewEmail creates a normalized Email.
func NewEmail(raw string) Email {
	return Email(strings.ToLower(strings.TrimSpace(raw)))
}

// IsValid checks the minimal shape of an email address.
func (e Email) IsValid() bool {
	s := string(e)
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation.
func (e Email) String() string {
	return string(e)
}

// ═══════════════════════════════════════════════════════════════════════════
// Spreadsheet Cell Casting
// ═══════════════════════════════════════════════════════════════════════════

// CastBool интерпретирует булеву ячейку таблицы. Таблицы используют
// литералы "Yes"/"No" (чекбоксы Google Sheets дают "TRUE"/"FALSE").
// Пустая ячейка трактуется как "No".
func CastBool(cell string) (bool, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		s = "No"
	}
	switch s {
	case "Yes", "TRUE":
		return true, nil
	case "No", "FALSE":
		return false, nil
	default:
		return false, Configuration("shared", "CastBool",
			"boolean cell value was not Yes or No; instead, was "+s)
	}
}

// CastList разбивает ячейку со списком значений, разделённых запятыми.
// Пустая ячейка даёт пустой список.
func CastList(cell string) []string {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			items = append(items, p)
		}
	}
	return items
}
