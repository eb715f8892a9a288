// Package assignment содержит доменную модель заданий курса.
// Это листовой пакет - каталог строится один раз на вызов из снапшота
// таблицы "Assignments" и дальше не мутируется.
package assignment

import (
	"time"

	"github.com/cs161-staff/extensions/internal/domain/shared"
	"github.com/cs161-staff/extensions/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENT
// ══════════════════════════════════════════════════════════════════════════════

// Assignment - одно задание курса из каталога.
type Assignment struct {
	// ID - уникальный идентификатор задания (он же ключ колонки в ростере).
	ID string

	// Name - отображаемое имя задания (так оно подписано в форме).
	Name string

	// DueDate - срок сдачи (конец дня). Zero-значение: срок не настроен,
	// задание никогда не считается просроченным.
	DueDate time.Time

	// HardDueDate - жёсткий срок, дальше которого продления не выдаются.
	// Zero-значение: не настроен.
	HardDueDate time.Time

	// Partner - допускает ли задание напарников.
	Partner bool

	// ExtensionTargets - внешние цели продления (URL заданий Gradescope).
	ExtensionTargets []string
}

// HasDueDate сообщает, настроен ли у задания срок сдачи.
func (a *Assignment) HasDueDate() bool {
	return !a.DueDate.IsZero()
}

// HasHardDueDate сообщает, настроен ли жёсткий срок.
func (a *Assignment) HasHardDueDate() bool {
	return !a.HardDueDate.IsZero()
}

// IsPastDue возвращает true, если запрос на продление пришёл после срока сдачи.
// Задание без срока никогда не считается просроченным.
func (a *Assignment) IsPastDue(requestTime time.Time) bool {
	if !a.HasDueDate() {
		return false
	}
	return requestTime.After(a.DueDate)
}

// ExtendedDueDate возвращает срок, продлённый на numDays дней.
// Если продление выходит за жёсткий срок, возвращается жёсткий срок
// и capped = true.
func (a *Assignment) ExtendedDueDate(numDays int) (due time.Time, capped bool) {
	due = a.DueDate.AddDate(0, 0, numDays)
	if a.HasHardDueDate() && due.After(a.HardDueDate) {
		return a.HardDueDate, true
	}
	return due, false
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog - упорядоченная коллекция заданий с поиском по ID и имени.
// Отсутствие задания - это ConfigurationError: форма и таблица заданий
// разъехались, и до исправления человеком обработку продолжать нельзя.
type Catalog struct {
	assignments []*Assignment
	byID        map[string]*Assignment
	byName      map[string]*Assignment
}

// NewCatalog собирает каталог из готовых заданий.
func NewCatalog(assignments []*Assignment) (*Catalog, error) {
	c := &Catalog{
		assignments: assignments,
		byID:        make(map[string]*Assignment, len(assignments)),
		byName:      make(map[string]*Assignment, len(assignments)),
	}
	for _, a := range assignments {
		if a.ID == "" {
			return nil, shared.Configuration("assignment", "NewCatalog",
				"assignment "+a.Name+" has an empty ID")
		}
		if _, ok := c.byID[a.ID]; ok {
			return nil, shared.Configuration("assignment", "NewCatalog",
				"duplicate assignment ID: "+a.ID)
		}
		c.byID[a.ID] = a
		c.byName[a.Name] = a
	}
	return c, nil
}

// NewCatalogFromRecords строит каталог из строк таблицы "Assignments".
// Ожидаемые колонки: name, id, due_date, hard_due_date, partner, gradescope.
// Строки с пустым name пропускаются (хвост таблицы).
func NewCatalogFromRecords(records []map[string]string, loc *time.Location) (*Catalog, error) {
	assignments := make([]*Assignment, 0, len(records))
	for _, row := range records {
		name := row["name"]
		if name == "" {
			continue
		}

		a := &Assignment{
			ID:               row["id"],
			Name:             name,
			ExtensionTargets: shared.CastList(row["gradescope"]),
		}

		partner, err := shared.CastBool(row["partner"])
		if err != nil {
			return nil, shared.WrapKnownError("assignment", "NewCatalogFromRecords",
				shared.ErrConfiguration, "invalid partner flag for assignment "+name, err)
		}
		a.Partner = partner

		if due := row["due_date"]; due != "" {
			t, err := timeutil.ParseDeadline(due, loc)
			if err != nil {
				return nil, shared.WrapKnownError("assignment", "NewCatalogFromRecords",
					shared.ErrConfiguration, "invalid due date for assignment "+name, err)
			}
			a.DueDate = t
		}
		if hard := row["hard_due_date"]; hard != "" {
			t, err := timeutil.ParseDeadline(hard, loc)
			if err != nil {
				return nil, shared.WrapKnownError("assignment", "NewCatalogFromRecords",
					shared.ErrConfiguration, "invalid hard due date for assignment "+name, err)
			}
			a.HardDueDate = t
		}

		assignments = append(assignments, a)
	}
	return NewCatalog(assignments)
}

// ByID ищет задание по идентификатору.
func (c *Catalog) ByID(id string) (*Assignment, error) {
	if a, ok := c.byID[id]; ok {
		return a, nil
	}
	return nil, shared.Configuration("assignment", "ByID",
		"assignment with ID "+id+" not found")
}

// ByName ищет задание по имени из формы.
func (c *Catalog) ByName(name string) (*Assignment, error) {
	if a, ok := c.byName[name]; ok {
		return a, nil
	}
	return nil, shared.Configuration("assignment", "ByName",
		"assignment with name "+name+" not found")
}

// All возвращает задания в порядке каталога.
func (c *Catalog) All() []*Assignment {
	return c.assignments
}

// AllIDs возвращает идентификаторы заданий в порядке каталога.
func (c *Catalog) AllIDs() []string {
	ids := make([]string, len(c.assignments))
	for i, a := range c.assignments {
		ids[i] = a.ID
	}
	return ids
}

// IsPastDue сообщает, просрочено ли задание с данным ID на момент запроса.
func (c *Catalog) IsPastDue(id string, requestTime time.Time) (bool, error) {
	a, err := c.ByID(id)
	if err != nil {
		return false, err
	}
	return a.IsPastDue(requestTime), nil
}

// Len возвращает количество заданий в каталоге.
func (c *Catalog) Len() int {
	return len(c.assignments)
}
