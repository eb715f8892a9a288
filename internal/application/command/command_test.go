package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cs161-staff/extensions/internal/application/policy"
	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/record"
	"github.com/cs161-staff/extensions/internal/domain/shared"
	"github.com/cs161-staff/extensions/internal/infrastructure/persistence/memory"
)

type fakeNotifier struct {
	plain []string
}

func (f *fakeNotifier) SendPlainMessage(ctx context.Context, text string) error {
	f.plain = append(f.plain, text)
	return nil
}

func (f *fakeNotifier) SendInteractiveMessage(ctx context.Context, text string, actions []policy.Action) error {
	return nil
}

type fakeMailer struct {
	sent    []policy.Message
	failFor string
}

func (f *fakeMailer) Send(ctx context.Context, msg policy.Message) error {
	if f.failFor != "" && msg.To == f.failFor {
		return errors.New("smtp: connection refused")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeExtender struct {
	calls    int
	warnings []string
}

func (f *fakeExtender) Apply(ctx context.Context, targets []string, email string, days int) ([]string, error) {
	f.calls++
	return f.warnings, nil
}

var commandTestHeaders = []string{
	record.ColEmail,
	record.ColApprovalStatus,
	record.ColEmailStatus,
	"hw1",
	record.ColFlushExtensions,
}

func commandTestCatalog(t *testing.T) *assignment.Catalog {
	t.Helper()
	catalog, err := assignment.NewCatalog([]*assignment.Assignment{
		{
			ID:               "hw1",
			Name:             "Homework 1",
			DueDate:          time.Date(2022, 6, 21, 23, 59, 0, 0, time.UTC),
			ExtensionTargets: []string{"https://www.gradescope.com/courses/1/assignments/11"},
		},
	})
	assert.NoError(t, err)
	return catalog
}

var commandTestEmailCfg = policy.EmailConfig{
	From:    "cs161-staff@berkeley.edu",
	Subject: "Extension Request Confirmation",
}

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS SUBMISSION
// ══════════════════════════════════════════════════════════════════════════════

func TestProcessSubmissionHandler(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRosterStoreWithRows(commandTestHeaders, []map[string]string{
		{record.ColEmail: "alice@berkeley.edu"},
	})
	cfg := policy.DefaultConfig()
	cfg.Email = commandTestEmailCfg
	engine := policy.NewEngine(commandTestCatalog(t), store, &fakeNotifier{}, &fakeMailer{}, nil, cfg, nil)

	questions := []map[string]string{
		{"question": "Email Address", "key": "email"},
		{"question": "Which assignments?", "key": "assignments"},
		{"question": "How many days?", "key": "days"},
		{"question": "Why?", "key": "reason"},
		{"question": "Timestamp", "key": "timestamp"},
	}
	h := NewProcessSubmissionHandler(questions, engine, time.UTC, nil)

	outcome, err := h.Handle(ctx, ProcessSubmissionCommand{
		Payload: map[string][]string{
			"Email Address":      {"alice@berkeley.edu"},
			"Which assignments?": {"Homework 1"},
			"How many days?":     {"2"},
			"Why?":               {"got sick"},
			"Timestamp":          {"6/20/2022 10:00:00"},
		},
		CorrelationID: "req-1",
	})
	assert.NoError(t, err)
	assert.True(t, outcome.Approved)
	assert.Equal(t, "alice@berkeley.edu", outcome.StudentEmail)

	row, _ := store.Row(0)
	assert.Equal(t, string(record.ApprovalAutoApproved), row[record.ColApprovalStatus])
	assert.Equal(t, "2", row["hw1"])
}

func TestProcessSubmissionHandlerBadPayload(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRosterStoreWithRows(commandTestHeaders, nil)
	cfg := policy.DefaultConfig()
	cfg.Email = commandTestEmailCfg
	engine := policy.NewEngine(commandTestCatalog(t), store, &fakeNotifier{}, &fakeMailer{}, nil, cfg, nil)

	questions := []map[string]string{
		{"question": "Broken question", "key": ""},
	}
	h := NewProcessSubmissionHandler(questions, engine, time.UTC, nil)

	_, err := h.Handle(ctx, ProcessSubmissionCommand{
		Payload: map[string][]string{"Broken question": {"answer"}},
	})
	assert.Error(t, err)
	assert.True(t, shared.IsConfiguration(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// EMAIL QUEUE
// ══════════════════════════════════════════════════════════════════════════════

func TestEmailQueueSendsQueuedRecordsOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRosterStoreWithRows(commandTestHeaders, []map[string]string{
		{record.ColEmail: "alice@berkeley.edu", record.ColEmailStatus: string(record.EmailInQueue), "hw1": "2"},
		{record.ColEmail: "bob@berkeley.edu", record.ColEmailStatus: string(record.EmailAutoSent), "hw1": "3"},
		{record.ColEmail: "carol@berkeley.edu", record.ColEmailStatus: string(record.EmailPendingApproval)},
		{record.ColEmail: "dave@berkeley.edu", record.ColEmailStatus: string(record.EmailInQueue), "hw1": "1"},
	})
	notifier := &fakeNotifier{}
	mailer := &fakeMailer{}
	h := NewProcessEmailQueueHandler(store, commandTestCatalog(t), mailer, notifier, commandTestEmailCfg, time.UTC, nil)

	result, err := h.Handle(ctx, ProcessEmailQueueCommand{})
	assert.NoError(t, err)
	assert.Equal(t, 2, result.SentCount)
	assert.Equal(t, []string{"alice@berkeley.edu", "dave@berkeley.edu"}, result.Emails)
	assert.Len(t, mailer.sent, 2)

	// Sent records flip to Auto Sent so a re-run skips them.
	alice, _ := store.Row(0)
	assert.Equal(t, string(record.EmailAutoSent), alice[record.ColEmailStatus])
	dave, _ := store.Row(3)
	assert.Equal(t, string(record.EmailAutoSent), dave[record.ColEmailStatus])

	assert.Len(t, notifier.plain, 1)
	assert.Contains(t, notifier.plain[0], "Sent 2 emails from the queue.")
	assert.Contains(t, notifier.plain[0], "alice@berkeley.edu")
}

func TestEmailQueueEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRosterStoreWithRows(commandTestHeaders, []map[string]string{
		{record.ColEmail: "alice@berkeley.edu"},
	})
	notifier := &fakeNotifier{}
	h := NewProcessEmailQueueHandler(store, commandTestCatalog(t), &fakeMailer{}, notifier, commandTestEmailCfg, time.UTC, nil)

	result, err := h.Handle(ctx, ProcessEmailQueueCommand{NotifyWhenEmpty: true})
	assert.NoError(t, err)
	assert.Equal(t, 0, result.SentCount)
	assert.Len(t, notifier.plain, 1)
	assert.Equal(t, "Sent zero emails from the queue...was it empty?", notifier.plain[0])
}

func TestEmailQueueEmptyScheduledRunIsQuiet(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRosterStoreWithRows(commandTestHeaders, []map[string]string{
		{record.ColEmail: "alice@berkeley.edu"},
	})
	notifier := &fakeNotifier{}
	h := NewProcessEmailQueueHandler(store, commandTestCatalog(t), &fakeMailer{}, notifier, commandTestEmailCfg, time.UTC, nil)

	// The ticker-driven worker runs without the opt-in and must not post
	// the "zero emails" message on every idle pass.
	result, err := h.Handle(ctx, ProcessEmailQueueCommand{})
	assert.NoError(t, err)
	assert.Equal(t, 0, result.SentCount)
	assert.Empty(t, notifier.plain)
}

func TestEmailQueueDeliveryFailureAbortsRun(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRosterStoreWithRows(commandTestHeaders, []map[string]string{
		{record.ColEmail: "alice@berkeley.edu", record.ColEmailStatus: string(record.EmailInQueue), "hw1": "2"},
		{record.ColEmail: "bob@berkeley.edu", record.ColEmailStatus: string(record.EmailInQueue), "hw1": "3"},
	})
	notifier := &fakeNotifier{}
	mailer := &fakeMailer{failFor: "bob@berkeley.edu"}
	h := NewProcessEmailQueueHandler(store, commandTestCatalog(t), mailer, notifier, commandTestEmailCfg, time.UTC, nil)

	result, err := h.Handle(ctx, ProcessEmailQueueCommand{})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrEmailDelivery))
	assert.True(t, shared.IsKnown(err))
	assert.Equal(t, 1, result.SentCount)

	// The failed record keeps its queue mark, so a re-run picks it up.
	alice, _ := store.Row(0)
	assert.Equal(t, string(record.EmailAutoSent), alice[record.ColEmailStatus])
	bob, _ := store.Row(1)
	assert.Equal(t, string(record.EmailInQueue), bob[record.ColEmailStatus])
}

// ══════════════════════════════════════════════════════════════════════════════
// FLUSH EXTENSIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestFlushExtensionsAppliesMarkedRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRosterStoreWithRows(commandTestHeaders, []map[string]string{
		{record.ColEmail: "alice@berkeley.edu", "hw1": "2", record.ColFlushExtensions: "TRUE"},
		{record.ColEmail: "bob@berkeley.edu", "hw1": "3"},
	})
	notifier := &fakeNotifier{}
	extender := &fakeExtender{}
	h := NewFlushExtensionsHandler(store, commandTestCatalog(t), extender, notifier, nil)

	result, err := h.Handle(ctx, FlushExtensionsCommand{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"alice@berkeley.edu"}, result.Successes)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 1, extender.calls)

	// Success resets the flush mark.
	alice, _ := store.Row(0)
	assert.Equal(t, "FALSE", alice[record.ColFlushExtensions])

	assert.Len(t, notifier.plain, 1)
	assert.Contains(t, notifier.plain[0], "*Successes:* alice@berkeley.edu")
}

func TestFlushExtensionsWarningKeepsMark(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRosterStoreWithRows(commandTestHeaders, []map[string]string{
		{record.ColEmail: "alice@berkeley.edu", "hw1": "2", record.ColFlushExtensions: "TRUE"},
	})
	notifier := &fakeNotifier{}
	extender := &fakeExtender{warnings: []string{"Failed to create Gradescope assignment extension"}}
	h := NewFlushExtensionsHandler(store, commandTestCatalog(t), extender, notifier, nil)

	result, err := h.Handle(ctx, FlushExtensionsCommand{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"alice@berkeley.edu"}, result.Failures)
	assert.Len(t, result.Warnings, 1)

	// The mark survives so the next run retries this record.
	alice, _ := store.Row(0)
	assert.Equal(t, "TRUE", alice[record.ColFlushExtensions])

	assert.Contains(t, notifier.plain[0], "*Failures:* alice@berkeley.edu")
	assert.Contains(t, notifier.plain[0], "*Warnings:*")
}

func TestFlushExtensionsNoRecordsProcessed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRosterStoreWithRows(commandTestHeaders, []map[string]string{
		{record.ColEmail: "alice@berkeley.edu", "hw1": "2"},
	})
	notifier := &fakeNotifier{}
	h := NewFlushExtensionsHandler(store, commandTestCatalog(t), &fakeExtender{}, notifier, nil)

	result, err := h.Handle(ctx, FlushExtensionsCommand{NotifyWhenIdle: true})
	assert.NoError(t, err)
	assert.Empty(t, result.Successes)
	assert.Empty(t, result.Failures)
	assert.Contains(t, notifier.plain[0], "No student records processed.")
	assert.Contains(t, notifier.plain[0], "`flush_gradescope`")

	// Without the opt-in an idle pass posts nothing.
	quiet := &fakeNotifier{}
	h = NewFlushExtensionsHandler(store, commandTestCatalog(t), &fakeExtender{}, quiet, nil)
	_, err = h.Handle(ctx, FlushExtensionsCommand{})
	assert.NoError(t, err)
	assert.Empty(t, quiet.plain)
}

func TestFlushExtensionsDisabled(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRosterStoreWithRows(commandTestHeaders, []map[string]string{
		{record.ColEmail: "alice@berkeley.edu", record.ColFlushExtensions: "TRUE"},
	})
	notifier := &fakeNotifier{}
	h := NewFlushExtensionsHandler(store, commandTestCatalog(t), nil, notifier, nil)

	result, err := h.Handle(ctx, FlushExtensionsCommand{NotifyWhenIdle: true})
	assert.NoError(t, err)
	assert.Empty(t, result.Successes)
	assert.Contains(t, notifier.plain[0], "Extension application is disabled")
}
