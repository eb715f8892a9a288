package assignment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cs161-staff/extensions/internal/domain/shared"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	loc := time.UTC
	catalog, err := NewCatalog([]*Assignment{
		{
			ID:          "hw1",
			Name:        "Homework 1",
			DueDate:     time.Date(2022, 6, 21, 23, 59, 0, 0, loc),
			HardDueDate: time.Date(2022, 6, 28, 23, 59, 0, 0, loc),
		},
		{
			ID:      "proj1",
			Name:    "Project 1",
			DueDate: time.Date(2022, 7, 5, 23, 59, 0, 0, loc),
			Partner: true,
		},
		{ID: "hw2", Name: "Homework 2"},
	})
	assert.NoError(t, err)
	return catalog
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]*Assignment{
		{ID: "hw1", Name: "Homework 1"},
		{ID: "hw1", Name: "Homework 1 Again"},
	})
	assert.Error(t, err)
	assert.True(t, shared.IsConfiguration(err))
}

func TestNewCatalogRejectsEmptyID(t *testing.T) {
	_, err := NewCatalog([]*Assignment{{Name: "Homework 1"}})
	assert.Error(t, err)
	assert.True(t, shared.IsConfiguration(err))
}

func TestCatalogLookups(t *testing.T) {
	catalog := testCatalog(t)

	a, err := catalog.ByID("hw1")
	assert.NoError(t, err)
	assert.Equal(t, "Homework 1", a.Name)

	a, err = catalog.ByName("Project 1")
	assert.NoError(t, err)
	assert.Equal(t, "proj1", a.ID)

	_, err = catalog.ByID("hw99")
	assert.True(t, shared.IsConfiguration(err))

	_, err = catalog.ByName("Homework 99")
	assert.True(t, shared.IsConfiguration(err))

	assert.Equal(t, 3, catalog.Len())
	assert.Equal(t, []string{"hw1", "proj1", "hw2"}, catalog.AllIDs())
}

func TestIsPastDue(t *testing.T) {
	catalog := testCatalog(t)
	loc := time.UTC

	// A request at 11:58 PM on the due date is on time; 11:59:01 PM is not.
	pastDue, err := catalog.IsPastDue("hw1", time.Date(2022, 6, 21, 23, 58, 0, 0, loc))
	assert.NoError(t, err)
	assert.False(t, pastDue)

	pastDue, err = catalog.IsPastDue("hw1", time.Date(2022, 6, 21, 23, 59, 1, 0, loc))
	assert.NoError(t, err)
	assert.True(t, pastDue)

	// No due date configured means never past due.
	pastDue, err = catalog.IsPastDue("hw2", time.Date(2030, 1, 1, 0, 0, 0, 0, loc))
	assert.NoError(t, err)
	assert.False(t, pastDue)
}

func TestExtendedDueDate(t *testing.T) {
	catalog := testCatalog(t)
	loc := time.UTC

	a, err := catalog.ByID("hw1")
	assert.NoError(t, err)

	due, capped := a.ExtendedDueDate(3)
	assert.False(t, capped)
	assert.Equal(t, time.Date(2022, 6, 24, 23, 59, 0, 0, loc), due)

	// Extensions past the hard due date are clamped to it.
	due, capped = a.ExtendedDueDate(10)
	assert.True(t, capped)
	assert.Equal(t, a.HardDueDate, due)

	// No hard due date means no clamping.
	b, err := catalog.ByID("proj1")
	assert.NoError(t, err)
	due, capped = b.ExtendedDueDate(30)
	assert.False(t, capped)
	assert.Equal(t, time.Date(2022, 8, 4, 23, 59, 0, 0, loc), due)
}

func TestNewCatalogFromRecords(t *testing.T) {
	loc := time.UTC
	catalog, err := NewCatalogFromRecords([]map[string]string{
		{
			"name":       "Homework 1",
			"id":         "hw1",
			"due_date":   "6/21/2022",
			"partner":    "No",
			"gradescope": "https://www.gradescope.com/courses/1/assignments/2",
		},
		{
			"name":     "Project 1",
			"id":       "proj1",
			"due_date": "7/5/2022",
			"partner":  "Yes",
		},
		// Empty tail rows are skipped.
		{"name": "", "id": ""},
	}, loc)
	assert.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	a, err := catalog.ByID("hw1")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2022, 6, 21, 23, 59, 0, 0, loc), a.DueDate)
	assert.False(t, a.Partner)
	assert.Len(t, a.ExtensionTargets, 1)

	b, err := catalog.ByID("proj1")
	assert.NoError(t, err)
	assert.True(t, b.Partner)
	assert.Empty(t, b.ExtensionTargets)
}

func TestNewCatalogFromRecordsInvalidCells(t *testing.T) {
	loc := time.UTC

	_, err := NewCatalogFromRecords([]map[string]string{
		{"name": "Homework 1", "id": "hw1", "partner": "maybe"},
	}, loc)
	assert.True(t, shared.IsConfiguration(err))

	_, err = NewCatalogFromRecords([]map[string]string{
		{"name": "Homework 1", "id": "hw1", "due_date": "not a date"},
	}, loc)
	assert.True(t, shared.IsConfiguration(err))
}
