// Package record содержит доменную модель записи студента - одной строки
// листа "Roster". Записи ростера служат источником истины по продлениям.
// Все мутации складываются в буфер отложенных записей и становятся видимыми
// снаружи только после явного Flush.
package record

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/shared"
	"github.com/cs161-staff/extensions/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUSES
// ══════════════════════════════════════════════════════════════════════════════

// ApprovalStatus - статус обработки запроса на продление.
type ApprovalStatus string

const (
	// ApprovalNone - чистая строка, никакой незавершённой работы.
	ApprovalNone ApprovalStatus = ""
	// ApprovalRequestedMeeting - студент попросил встречу с поддержкой.
	// Липкий статус: снимается только человеком.
	ApprovalRequestedMeeting ApprovalStatus = "Requested Meeting"
	// ApprovalPending - запрос ждёт ручной проверки.
	ApprovalPending ApprovalStatus = "Pending"
	// ApprovalAutoApproved - запрос одобрен автоматически.
	ApprovalAutoApproved ApprovalStatus = "Auto Approved"
)

// IsWIP возвращает true для статусов "работа-в-процессе": по таким строкам
// идёт незавершённая ручная работа, и авто-одобрение их молча перезаписывать
// не должно.
func (s ApprovalStatus) IsWIP() bool {
	return s == ApprovalRequestedMeeting || s == ApprovalPending
}

// EmailStatus - статус уведомления студента по почте.
type EmailStatus string

const (
	EmailNone            EmailStatus = ""
	EmailPendingApproval EmailStatus = "Pending Approval"
	EmailInQueue         EmailStatus = "In Queue"
	EmailAutoSent        EmailStatus = "Auto Sent"
)

// Ключевые колонки ростера. Колонки lastRun*, email_comments и
// flush_gradescope опциональны: запись в них ставится в буфер только если
// колонка присутствует в заголовках.
const (
	ColEmail            = "email"
	ColIsDSP            = "is_dsp"
	ColApprovalStatus   = "approval_status"
	ColEmailStatus      = "email_status"
	ColEmailComments    = "email_comments"
	ColLastRunTimestamp = "last_run_timestamp"
	ColLastRunReason    = "last_run_reason"
	ColLastRunOutput    = "last_run_output"
	ColFlushExtensions  = "flush_gradescope"
)

// rowNotFound - сентинел "строки ещё нет": Flush сделает append вместо update.
const rowNotFound = -1

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT RECORD
// ══════════════════════════════════════════════════════════════════════════════

// StudentRecord - изменяемое представление одной строки ростера.
// Запись принадлежит ровно одному вызову движка; между вызовами не разделяется.
type StudentRecord struct {
	email    shared.Email
	rowIndex int
	fields   map[string]string
	headers  []string
	store    Store

	// Буфер отложенных записей: порядок первой вставки сохраняется,
	// последняя запись по колонке побеждает.
	queueKeys []string
	queue     map[string]string
}

// FromEmail ищет запись студента по email. Если строки нет, создаётся новая
// in-memory запись с пустыми полями, помеченная на append при Flush - так
// одна и та же логика решения прозрачно обслуживает новых студентов.
func FromEmail(ctx context.Context, email shared.Email, store Store) (*StudentRecord, error) {
	headers, err := store.Headers(ctx)
	if err != nil {
		return nil, fmt.Errorf("record: fetch headers: %w", err)
	}

	rowIndex, fields, ok, err := store.FindByIdentity(ctx, ColEmail, email.String())
	if err != nil {
		return nil, fmt.Errorf("record: lookup %s: %w", email, err)
	}

	r := &StudentRecord{
		email:    email,
		rowIndex: rowIndex,
		fields:   fields,
		headers:  headers,
		store:    store,
		queue:    make(map[string]string),
	}

	if !ok {
		r.rowIndex = rowNotFound
		r.fields = make(map[string]string, len(headers))
		for _, h := range headers {
			r.fields[h] = ""
		}
		r.fields[ColEmail] = email.String()
		r.QueueWriteBack(ColEmail, email.String())
	}

	return r, nil
}

// FromRow оборачивает уже прочитанную строку ростера. Используется пакетными
// обработчиками, которые итерируют Rows и не хотят искать каждую строку заново.
func FromRow(rowIndex int, fields map[string]string, headers []string, store Store) *StudentRecord {
	if fields == nil {
		fields = make(map[string]string, len(headers))
	}
	return &StudentRecord{
		email:    shared.NewEmail(fields[ColEmail]),
		rowIndex: rowIndex,
		fields:   fields,
		headers:  headers,
		store:    store,
		queue:    make(map[string]string),
	}
}

// Email возвращает нормализованный email студента.
func (r *StudentRecord) Email() shared.Email {
	return r.email
}

// IsNew сообщает, что строки в хранилище ещё нет (Flush сделает append).
func (r *StudentRecord) IsNew() bool {
	return r.rowIndex == rowNotFound
}

// HasHeader сообщает, есть ли в ростере такая колонка.
func (r *StudentRecord) HasHeader(column string) bool {
	for _, h := range r.headers {
		if h == column {
			return true
		}
	}
	return false
}

// Field возвращает сырое значение колонки (после Flush видны и
// только что записанные значения).
func (r *StudentRecord) Field(column string) string {
	return r.fields[column]
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// ApprovalStatus возвращает текущий статус обработки.
func (r *StudentRecord) ApprovalStatus() ApprovalStatus {
	return ApprovalStatus(r.fields[ColApprovalStatus])
}

// EmailStatus возвращает текущий статус почтового уведомления.
func (r *StudentRecord) EmailStatus() EmailStatus {
	return EmailStatus(r.fields[ColEmailStatus])
}

// HasWIPStatus сообщает, висит ли на строке незавершённая ручная работа.
func (r *StudentRecord) HasWIPStatus() bool {
	return r.ApprovalStatus().IsWIP()
}

// SetStatusRequestedMeeting переводит запись в "Requested Meeting".
// Почтовый статус при этом очищается: никакого письма не будет.
func (r *StudentRecord) SetStatusRequestedMeeting() {
	r.QueueWriteBack(ColApprovalStatus, string(ApprovalRequestedMeeting))
	r.QueueWriteBack(ColEmailStatus, string(EmailNone))
}

// SetStatusPending переводит запись в "Pending" для ручной проверки.
// "Requested Meeting" липкий и не понижается до Pending.
func (r *StudentRecord) SetStatusPending() {
	if r.ApprovalStatus() == ApprovalRequestedMeeting {
		return
	}
	r.QueueWriteBack(ColApprovalStatus, string(ApprovalPending))
	r.QueueWriteBack(ColEmailStatus, string(EmailPendingApproval))
}

// SetStatusApproved переводит запись в "Auto Approved". Почтовый статус
// выставляется в "Auto Sent" той же операцией - состояние "одобрено, но не
// уведомлено" невозможно по построению.
func (r *StudentRecord) SetStatusApproved() {
	r.QueueWriteBack(ColApprovalStatus, string(ApprovalAutoApproved))
	r.QueueWriteBack(ColEmailStatus, string(EmailAutoSent))
}

// SetEmailStatusAutoSent отмечает, что письмо из очереди отправлено.
func (r *StudentRecord) SetEmailStatusAutoSent() {
	r.QueueWriteBack(ColEmailStatus, string(EmailAutoSent))
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER FIELDS
// ══════════════════════════════════════════════════════════════════════════════

// RosterHasDSPFlag сообщает, ведёт ли ростер колонку is_dsp вообще.
func (r *StudentRecord) RosterHasDSPFlag() bool {
	return r.HasHeader(ColIsDSP)
}

// IsDSP возвращает DSP-флаг студента из ростера.
func (r *StudentRecord) IsDSP() bool {
	return r.fields[ColIsDSP] == "Yes"
}

// EmailComments возвращает дополнительный комментарий для письма студенту.
func (r *StudentRecord) EmailComments() string {
	return r.fields[ColEmailComments]
}

// ShouldFlushExtensions сообщает, помечена ли строка на выгрузку продлений
// во внешний сервис.
func (r *StudentRecord) ShouldFlushExtensions() bool {
	if !r.HasHeader(ColFlushExtensions) {
		return false
	}
	ok, err := shared.CastBool(r.fields[ColFlushExtensions])
	if err != nil {
		return false
	}
	return ok
}

// SetFlushExtensionsDone снимает пометку выгрузки после успеха.
func (r *StudentRecord) SetFlushExtensionsDone() {
	if r.HasHeader(ColFlushExtensions) {
		r.QueueWriteBack(ColFlushExtensions, "FALSE")
	}
}

// SetLog пишет заметку о решении в last_run_output (если колонка есть).
func (r *StudentRecord) SetLog(log string) {
	if r.HasHeader(ColLastRunOutput) {
		r.QueueWriteBack(ColLastRunOutput, log)
	}
}

// SetLastRunReason сохраняет причину/план студента одной строкой.
func (r *StudentRecord) SetLastRunReason(reason string) {
	if r.HasHeader(ColLastRunReason) {
		r.QueueWriteBack(ColLastRunReason, strings.ReplaceAll(reason, "\n", " "))
	}
}

// SetLastRunTimestamp сохраняет время сабмита в часовом поясе курса.
func (r *StudentRecord) SetLastRunTimestamp(ts time.Time, loc *time.Location) {
	if r.HasHeader(ColLastRunTimestamp) {
		r.QueueWriteBack(ColLastRunTimestamp, timeutil.FormatRunTimestamp(ts, loc))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXTENSION REQUESTS
// ══════════════════════════════════════════════════════════════════════════════

// GetRequest возвращает уже запрошенное число дней по заданию.
// Пустая ячейка - запроса нет (ok == false). Нечисловая ячейка - данные
// ростера битые, это StudentRecordError и фатально для обработки записи.
func (r *StudentRecord) GetRequest(assignmentID string) (days int, ok bool, err error) {
	raw := strings.TrimSpace(r.fields[assignmentID])
	if raw == "" {
		return 0, false, nil
	}
	days, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return 0, false, shared.StudentRecord("GetRequest", fmt.Sprintf(
			"non-numeric day count %q for assignment %s (row %d, student %s)",
			raw, assignmentID, r.rowIndex, r.email))
	}
	return days, true, nil
}

// CountRequests считает, на скольких заданиях каталога у студента уже
// есть запрошенное продление.
func (r *StudentRecord) CountRequests(catalog *assignment.Catalog) (int, error) {
	count := 0
	for _, id := range catalog.AllIDs() {
		_, ok, err := r.GetRequest(id)
		if err != nil {
			return 0, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// QueueRequest ставит в буфер число дней продления по заданию.
func (r *StudentRecord) QueueRequest(assignmentID string, days int) {
	r.QueueWriteBack(assignmentID, strconv.Itoa(days))
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE BUFFER
// ══════════════════════════════════════════════════════════════════════════════

// QueueWriteBack ставит отложенную запись колонка→значение. Последняя запись
// по колонке побеждает; порядок первой вставки сохраняется.
func (r *StudentRecord) QueueWriteBack(column, value string) {
	if _, exists := r.queue[column]; !exists {
		r.queueKeys = append(r.queueKeys, column)
	}
	r.queue[column] = value
}

// PendingWrites возвращает количество записей в буфере.
func (r *StudentRecord) PendingWrites() int {
	return len(r.queueKeys)
}

// Flush сливает буфер в хранилище: append для новой записи, поячеечные
// update для существующей. Каждое записанное значение зеркалируется в
// in-memory поля, чтобы последующие чтения (например, сборка письма) видели
// пост-записьные значения без повторного fetch. Буфер очищается; Flush с
// пустым буфером не трогает хранилище.
func (r *StudentRecord) Flush(ctx context.Context) error {
	if len(r.queueKeys) == 0 {
		return nil
	}

	if r.rowIndex == rowNotFound {
		values := make([]string, len(r.headers))
		for i, h := range r.headers {
			values[i] = r.queue[h]
		}
		if err := r.store.AppendRow(ctx, values); err != nil {
			return fmt.Errorf("record: append row for %s: %w", r.email, err)
		}
	} else {
		for _, column := range r.queueKeys {
			colIndex := r.columnIndex(column)
			if colIndex == -1 {
				return shared.Configuration("record", "Flush",
					"column "+column+" is missing from the roster headers")
			}
			if err := r.store.UpdateCell(ctx, r.rowIndex, colIndex, r.queue[column]); err != nil {
				return fmt.Errorf("record: update %s for %s: %w", column, r.email, err)
			}
		}
	}

	for _, column := range r.queueKeys {
		r.fields[column] = r.queue[column]
	}
	r.queueKeys = nil
	r.queue = make(map[string]string)

	return nil
}

func (r *StudentRecord) columnIndex(column string) int {
	for i, h := range r.headers {
		if h == column {
			return i
		}
	}
	return -1
}
