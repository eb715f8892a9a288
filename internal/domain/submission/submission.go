// Package submission содержит модель одной отправки формы продлений.
// Сырые пары вопрос→ответ переводятся в типизированные поля через
// промежуточную таблицу "Form Questions": она позволяет переименовывать
// вопросы формы, не ломая указатели на данные.
package submission

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/shared"
	"github.com/cs161-staff/extensions/pkg/timeutil"
)

// Внутренние ключи полей, на которые отображаются вопросы формы.
const (
	KeySID              = "sid"
	KeyEmail            = "email"
	KeyIsDSP            = "is_dsp"
	KeyKnowsAssignments = "knows_assignments"
	KeyAssignments      = "assignments"
	KeyDays             = "days"
	KeyReason           = "reason"
	KeyHasPartner       = "has_partner"
	KeyPartnerSID       = "partner_sid"
	KeyPartnerEmail     = "partner_email"
	KeyGamePlan         = "game_plan"
	KeyTimestamp        = "timestamp"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXTENSION REQUEST
// ══════════════════════════════════════════════════════════════════════════════

// ExtensionRequest - один запрос продления: задание плюс число дней.
// Инвариант: Days > 0; создаётся только парсингом сабмита.
type ExtensionRequest struct {
	Assignment *assignment.Assignment
	Days       int
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION
// ══════════════════════════════════════════════════════════════════════════════

// Submission - одна отправка формы. Создаётся один раз на событие формы и
// после конструирования не мутируется.
type Submission struct {
	responses map[string]string
	timestamp time.Time
}

// New строит Submission из сырого payload формы и строк таблицы вопросов
// (колонки question/key). Для каждого замапленного вопроса, присутствующего
// в payload, берётся первое значение ответа. Вопросы без маппинга
// игнорируются - форма может уехать вперёд без ошибок.
func New(payload map[string][]string, questionRows []map[string]string, loc *time.Location) (*Submission, error) {
	responses := make(map[string]string)

	for _, row := range questionRows {
		question := row["question"]
		if question == "" {
			continue
		}
		key := row["key"]
		if key == "" {
			return nil, shared.Configuration("submission", "New",
				"the form question sheet is missing a key for question: "+question)
		}
		if answers, ok := payload[question]; ok && len(answers) > 0 {
			responses[key] = answers[0]
		}
	}

	s := &Submission{responses: responses}

	if raw, ok := responses[KeyTimestamp]; ok && strings.TrimSpace(raw) != "" {
		ts, err := timeutil.Parse(raw, loc)
		if err != nil {
			return nil, shared.WrapKnownError("submission", "New",
				shared.ErrFormInput, "could not parse submission timestamp", err)
		}
		s.timestamp = ts
	} else {
		s.timestamp = time.Now().In(loc)
	}

	return s, nil
}

// SID возвращает студенческий идентификатор.
func (s *Submission) SID() string {
	return s.responses[KeySID]
}

// Email возвращает нормализованный email отправителя.
func (s *Submission) Email() shared.Email {
	return shared.NewEmail(s.responses[KeyEmail])
}

// Timestamp возвращает время отправки формы (локализованное).
func (s *Submission) Timestamp() time.Time {
	return s.timestamp
}

// DSPStatus возвращает сырой текст ответа на DSP-вопрос. Он дословно
// попадает в предупреждения - не нормализуем намеренно.
func (s *Submission) DSPStatus() string {
	return s.responses[KeyIsDSP]
}

// ClaimsDSP возвращает true, если ответ на DSP-вопрос не строго "No".
// Любой утвердительный или неоднозначный текст (например, "pending")
// трактуется как заявка, требующая сверки с ростером.
func (s *Submission) ClaimsDSP() bool {
	return strings.TrimSpace(s.responses[KeyIsDSP]) != "No"
}

// KnowsAssignments сообщает, знает ли студент конкретные задания.
// false означает общий запрос на встречу с поддержкой. При отсутствии
// поля - true: упрощённые формы без triage-вопроса.
func (s *Submission) KnowsAssignments() bool {
	raw, ok := s.responses[KeyKnowsAssignments]
	if !ok {
		return true
	}
	return raw == "Yes"
}

// HasPartner сообщает, заявлены ли напарники. При отсутствии поля - false.
func (s *Submission) HasPartner() bool {
	raw, ok := s.responses[KeyHasPartner]
	if !ok {
		return false
	}
	return raw == "Yes"
}

// Reason возвращает причину запроса (только когда студент знает задания).
func (s *Submission) Reason() string {
	s.assertKnowsAssignments("Reason")
	return s.responses[KeyReason]
}

// GamePlan возвращает план действий студента (общий запрос помощи).
func (s *Submission) GamePlan() string {
	return s.responses[KeyGamePlan]
}

// RawAssignments возвращает необработанный список заданий из формы.
func (s *Submission) RawAssignments() string {
	s.assertKnowsAssignments("RawAssignments")
	return s.responses[KeyAssignments]
}

// RawDays возвращает необработанный список дней из формы.
func (s *Submission) RawDays() string {
	s.assertKnowsAssignments("RawDays")
	return s.responses[KeyDays]
}

// PartnerEmails возвращает нормализованные email напарников.
func (s *Submission) PartnerEmails() []shared.Email {
	s.assertHasPartner("PartnerEmails")
	raw := shared.CastList(s.responses[KeyPartnerEmail])
	emails := make([]shared.Email, 0, len(raw))
	for _, r := range raw {
		emails = append(emails, shared.NewEmail(r))
	}
	return emails
}

// Requests разбирает запросы продлений: имена заданий и числа дней через
// запятую. Если дней ровно одно значение, а заданий несколько, значение
// раздаётся на все задания ("один ответ - много заданий"). Несовпадение
// количества, нечисловые или неположительные дни - FormInputError.
// Каждое имя резолвится через каталог; несовпадение имени - ConfigurationError.
func (s *Submission) Requests(catalog *assignment.Catalog) ([]ExtensionRequest, error) {
	s.assertKnowsAssignments("Requests")

	names := splitClean(s.responses[KeyAssignments])
	days := splitClean(s.responses[KeyDays])

	if len(names) == 0 {
		return nil, shared.FormInput("Requests",
			"no assignments were provided (please correct and reprocess)")
	}

	if len(days) == 1 && len(names) > 1 {
		broadcast := make([]string, len(names))
		for i := range names {
			broadcast[i] = days[0]
		}
		days = broadcast
	}

	if len(names) != len(days) {
		return nil, shared.FormInput("Requests",
			"# assignment names provided does not equal # days requested for each assignment")
	}

	requests := make([]ExtensionRequest, 0, len(names))
	seen := make(map[string]int, len(names))
	for i, name := range names {
		a, err := catalog.ByName(name)
		if err != nil {
			return nil, err
		}

		numDays, convErr := strconv.Atoi(days[i])
		if convErr != nil {
			return nil, shared.FormInput("Requests", fmt.Sprintf(
				"failed to cast student input for # days to integer (please correct and reprocess): %s", days[i]))
		}
		if numDays <= 0 {
			return nil, shared.FormInput("Requests", "# requested days must be > 0")
		}

		// Повтор задания в одном сабмите схлопывается: побеждает последнее
		// значение дней, позиция первого вхождения сохраняется.
		if at, dup := seen[a.ID]; dup {
			requests[at].Days = numDays
			continue
		}
		seen[a.ID] = len(requests)
		requests = append(requests, ExtensionRequest{Assignment: a, Days: numDays})
	}

	return requests, nil
}

// NumRequests возвращает число запросов продления в этом сабмите.
func (s *Submission) NumRequests(catalog *assignment.Catalog) (int, error) {
	requests, err := s.Requests(catalog)
	if err != nil {
		return 0, err
	}
	return len(requests), nil
}

// Контрактные проверки: это программные ошибки вызывающего кода,
// а не пользовательский ввод, поэтому panic, а не error.

func (s *Submission) assertKnowsAssignments(op string) {
	if !s.KnowsAssignments() {
		panic("submission." + op + ": accessor called on a submission that does not know assignments")
	}
}

func (s *Submission) assertHasPartner(op string) {
	if !s.HasPartner() {
		panic("submission." + op + ": accessor called on a submission with no partner")
	}
}

func splitClean(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
