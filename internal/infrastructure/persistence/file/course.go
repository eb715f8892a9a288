// Package file loads course configuration from a YAML file: the assignment
// catalog and the form question mapping. Used for offline/dry-run mode and
// as a fixture format, so a course can be exercised without a spreadsheet.
package file

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/shared"
	"github.com/cs161-staff/extensions/pkg/timeutil"
)

// AssignmentEntry is one assignment in the course file.
type AssignmentEntry struct {
	Name        string   `yaml:"name"`
	ID          string   `yaml:"id"`
	DueDate     string   `yaml:"due_date"`
	HardDueDate string   `yaml:"hard_due_date"`
	Partner     bool     `yaml:"partner"`
	Gradescope  []string `yaml:"gradescope"`
}

// QuestionEntry maps one form question to its internal key.
type QuestionEntry struct {
	Question string `yaml:"question"`
	Key      string `yaml:"key"`
}

// Course is the parsed course file.
type Course struct {
	Timezone    string            `yaml:"timezone"`
	Assignments []AssignmentEntry `yaml:"assignments"`
	Questions   []QuestionEntry   `yaml:"questions"`
}

// Load reads and parses a course file.
func Load(path string) (*Course, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file: read course file: %w", err)
	}
	return Parse(raw)
}

// Parse parses course file contents.
func Parse(raw []byte) (*Course, error) {
	var course Course
	if err := yaml.Unmarshal(raw, &course); err != nil {
		return nil, shared.WrapKnownError("file", "parse", shared.ErrConfiguration,
			"invalid course file", err)
	}
	return &course, nil
}

// Catalog builds the assignment catalog from the course file.
func (c *Course) Catalog() (*assignment.Catalog, error) {
	loc := timeutil.CourseLocation(c.Timezone)

	assignments := make([]*assignment.Assignment, 0, len(c.Assignments))
	for _, entry := range c.Assignments {
		a := &assignment.Assignment{
			ID:               entry.ID,
			Name:             entry.Name,
			Partner:          entry.Partner,
			ExtensionTargets: entry.Gradescope,
		}
		if entry.DueDate != "" {
			t, err := timeutil.ParseDeadline(entry.DueDate, loc)
			if err != nil {
				return nil, shared.WrapKnownError("file", "catalog", shared.ErrConfiguration,
					"invalid due date for assignment "+entry.Name, err)
			}
			a.DueDate = t
		}
		if entry.HardDueDate != "" {
			t, err := timeutil.ParseDeadline(entry.HardDueDate, loc)
			if err != nil {
				return nil, shared.WrapKnownError("file", "catalog", shared.ErrConfiguration,
					"invalid hard due date for assignment "+entry.Name, err)
			}
			a.HardDueDate = t
		}
		assignments = append(assignments, a)
	}
	return assignment.NewCatalog(assignments)
}

// QuestionRecords converts the question mapping into the row format the
// submission parser expects.
func (c *Course) QuestionRecords() []map[string]string {
	rows := make([]map[string]string, 0, len(c.Questions))
	for _, q := range c.Questions {
		rows = append(rows, map[string]string{
			"question": q.Question,
			"key":      q.Key,
		})
	}
	return rows
}
