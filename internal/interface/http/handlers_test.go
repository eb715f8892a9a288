package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"github.com/cs161-staff/extensions/internal/application/command"
	"github.com/cs161-staff/extensions/internal/application/policy"
	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/record"
	"github.com/cs161-staff/extensions/internal/infrastructure/persistence/memory"
)

const testSecret = "super-secret"

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type stubNotifier struct {
	errors []string
}

func (n *stubNotifier) SendPlainMessage(ctx context.Context, text string) error { return nil }

func (n *stubNotifier) SendInteractiveMessage(ctx context.Context, text string, actions []policy.Action) error {
	return nil
}

func (n *stubNotifier) SendError(ctx context.Context, errText string) error {
	n.errors = append(n.errors, errText)
	return nil
}

type stubMailer struct{}

func (m *stubMailer) Send(ctx context.Context, msg policy.Message) error { return nil }

type stubDedupe struct {
	first bool
	err   error
}

func (d *stubDedupe) FirstDelivery(ctx context.Context, payload map[string][]string) (bool, error) {
	return d.first, d.err
}

type stubAudit struct {
	outcomes []*policy.Outcome
}

func (a *stubAudit) Record(ctx context.Context, studentEmail string, outcome *policy.Outcome) error {
	a.outcomes = append(a.outcomes, outcome)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type serverFixture struct {
	server   *Server
	store    *memory.RosterStore
	notifier *stubNotifier
	audit    *stubAudit
	dedupe   *stubDedupe
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	catalog, err := assignment.NewCatalog([]*assignment.Assignment{
		{ID: "hw1", Name: "Homework 1", DueDate: time.Date(2022, 6, 21, 23, 59, 0, 0, time.UTC)},
	})
	assert.NoError(t, err)

	store := memory.NewRosterStoreWithRows(
		[]string{record.ColEmail, record.ColApprovalStatus, record.ColEmailStatus, "hw1"},
		[]map[string]string{{record.ColEmail: "alice@berkeley.edu"}},
	)

	notifier := &stubNotifier{}
	cfg := policy.DefaultConfig()
	cfg.Email = policy.EmailConfig{From: "staff@berkeley.edu", Subject: "Confirmation"}
	engine := policy.NewEngine(catalog, store, notifier, &stubMailer{}, nil, cfg, nil)

	questions := []map[string]string{
		{"question": "Email Address", "key": "email"},
		{"question": "Which assignments?", "key": "assignments"},
		{"question": "How many days?", "key": "days"},
		{"question": "Why?", "key": "reason"},
		{"question": "Timestamp", "key": "timestamp"},
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testSecret), bcrypt.MinCost)
	assert.NoError(t, err)

	serverCfg := DefaultConfig()
	serverCfg.SecretHash = string(hash)

	f := &serverFixture{
		store:    store,
		notifier: notifier,
		audit:    &stubAudit{},
		dedupe:   &stubDedupe{first: true},
	}
	f.server = NewServer(serverCfg, Dependencies{
		ProcessSubmission: command.NewProcessSubmissionHandler(questions, engine, time.UTC, nil),
		ProcessEmailQueue: command.NewProcessEmailQueueHandler(store, catalog, &stubMailer{}, notifier, cfg.Email, time.UTC, nil),
		FlushExtensions:   command.NewFlushExtensionsHandler(store, catalog, nil, notifier, nil),
		Dedupe:            f.dedupe,
		Notifier:          notifier,
		Audit:             f.audit,
	})
	return f
}

func (f *serverFixture) do(method, path, secret string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if secret != "" {
		req.Header.Set("X-App-Secret", secret)
	}
	rec := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func submitBody(t *testing.T, days string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"form_data": map[string][]string{
			"Email Address":      {"alice@berkeley.edu"},
			"Which assignments?": {"Homework 1"},
			"How many days?":     {days},
			"Why?":               {"got sick"},
			"Timestamp":          {"6/20/2022 10:00:00"},
		},
	})
	assert.NoError(t, err)
	return body
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

func TestRequireSecretRejectsBadSecret(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/webhook/form-submit", "wrong-secret", submitBody(t, "2"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/webhook/form-submit", "", submitBody(t, "2"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSecretUnconfigured(t *testing.T) {
	f := newServerFixture(t)
	f.server.config.SecretHash = ""

	rec := f.do(http.MethodPost, "/webhook/form-submit", testSecret, submitBody(t, "2"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthNeedsNoSecret(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

// ══════════════════════════════════════════════════════════════════════════════
// FORM SUBMISSION
// ══════════════════════════════════════════════════════════════════════════════

func TestFormSubmitProcessed(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/webhook/form-submit", testSecret, submitBody(t, "2"))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "processed", resp["status"])
	assert.Equal(t, true, resp["approved"])
	assert.NotEmpty(t, resp["invocation_id"])

	row, _ := f.store.Row(0)
	assert.Equal(t, string(record.ApprovalAutoApproved), row[record.ColApprovalStatus])

	// The outcome landed in the audit log.
	assert.Len(t, f.audit.outcomes, 1)
	assert.Equal(t, "alice@berkeley.edu", f.audit.outcomes[0].StudentEmail)
}

func TestFormSubmitDuplicateDelivery(t *testing.T) {
	f := newServerFixture(t)
	f.dedupe.first = false

	rec := f.do(http.MethodPost, "/webhook/form-submit", testSecret, submitBody(t, "2"))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate", resp["status"])

	// The duplicate was dropped before the engine ran.
	row, _ := f.store.Row(0)
	assert.Equal(t, "", row[record.ColApprovalStatus])
}

func TestFormSubmitDedupeFailureIsAdvisory(t *testing.T) {
	f := newServerFixture(t)
	f.dedupe.err = assert.AnError

	// A broken dedupe backend must not drop the submission.
	rec := f.do(http.MethodPost, "/webhook/form-submit", testSecret, submitBody(t, "2"))
	assert.Equal(t, http.StatusOK, rec.Code)

	row, _ := f.store.Row(0)
	assert.Equal(t, string(record.ApprovalAutoApproved), row[record.ColApprovalStatus])
}

func TestFormSubmitKnownErrorAcknowledged(t *testing.T) {
	f := newServerFixture(t)

	// Non-numeric days is a form input error: acknowledged with 200 so the
	// form provider does not retry, and mirrored to the staff channel.
	rec := f.do(http.MethodPost, "/webhook/form-submit", testSecret, submitBody(t, "three"))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
	assert.Len(t, f.notifier.errors, 1)
	assert.Contains(t, f.notifier.errors[0], "failed to cast student input")
}

func TestFormSubmitBadJSON(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/webhook/form-submit", testSecret, []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/webhook/form-submit", testSecret, []byte(`{"form_data":{}}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH JOBS
// ══════════════════════════════════════════════════════════════════════════════

func TestEmailQueueEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/jobs/email-queue", testSecret, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "processed", resp["status"])
	assert.Equal(t, float64(0), resp["sent_count"])
}

func TestFlushExtensionsEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/jobs/flush-extensions", testSecret, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "processed", resp["status"])
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "my-request-id")
	rec := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, "my-request-id", rec.Header().Get("X-Request-ID"))
}
