package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cs161-staff/extensions/internal/application/policy"
	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/record"
	"github.com/cs161-staff/extensions/internal/domain/shared"
	"github.com/cs161-staff/extensions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS EMAIL QUEUE COMMAND
// Walks the whole roster and delivers the confirmation email for every record
// a reviewer has marked "In Queue". Used after a batch of manual approvals.
// ══════════════════════════════════════════════════════════════════════════════

// ProcessEmailQueueCommand configures one queue run.
type ProcessEmailQueueCommand struct {
	// NotifyWhenEmpty posts the "zero emails" notification even when no
	// record was queued. Wanted for on-demand runs triggered by a human;
	// the scheduled worker keeps quiet on idle passes.
	NotifyWhenEmpty bool
}

// ProcessEmailQueueResult summarizes one queue run.
type ProcessEmailQueueResult struct {
	// SentCount is the number of emails delivered.
	SentCount int

	// Emails lists the recipients, in roster order.
	Emails []string
}

// ProcessEmailQueueHandler scans the roster for queued confirmation emails.
type ProcessEmailQueueHandler struct {
	store    record.Store
	catalog  *assignment.Catalog
	mailer   policy.EmailSender
	notifier policy.Notifier
	emailCfg policy.EmailConfig
	location *time.Location
	log      *logger.Logger
}

// NewProcessEmailQueueHandler creates the handler.
func NewProcessEmailQueueHandler(
	store record.Store,
	catalog *assignment.Catalog,
	mailer policy.EmailSender,
	notifier policy.Notifier,
	emailCfg policy.EmailConfig,
	location *time.Location,
	log *logger.Logger,
) *ProcessEmailQueueHandler {
	if location == nil {
		location = time.UTC
	}
	if log == nil {
		log = logger.Default()
	}
	return &ProcessEmailQueueHandler{
		store:    store,
		catalog:  catalog,
		mailer:   mailer,
		notifier: notifier,
		emailCfg: emailCfg,
		location: location,
		log:      log,
	}
}

// Handle sends every queued email and flips the record to "Auto Sent". A
// delivery failure aborts the run with its record untouched, so a re-run
// picks up exactly where this one stopped; already-sent records are marked
// and will not be sent twice.
func (h *ProcessEmailQueueHandler) Handle(ctx context.Context, cmd ProcessEmailQueueCommand) (*ProcessEmailQueueResult, error) {
	headers, err := h.store.Headers(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := h.store.Rows(ctx)
	if err != nil {
		return nil, err
	}

	result := &ProcessEmailQueueResult{}
	for i, fields := range rows {
		student := record.FromRow(i, fields, headers, h.store)
		if student.EmailStatus() != record.EmailInQueue {
			continue
		}

		msg, _, err := policy.BuildConfirmationEmail(student, h.catalog, h.emailCfg, h.location)
		if err == nil {
			err = h.mailer.Send(ctx, msg)
		}
		if err != nil {
			return result, shared.WrapKnownError("command", "process_email_queue", shared.ErrEmailDelivery,
				fmt.Sprintf("Attempted to send an email to %s, but failed.\n"+
					"Please follow up with this student manually and/or check email logs.\n"+
					"If this is a spreadsheet error, correct the error, and re-run the email queue processor.",
					student.Email()), err)
		}

		student.SetEmailStatusAutoSent()
		if err := student.Flush(ctx); err != nil {
			return result, err
		}

		result.Emails = append(result.Emails, student.Email().String())
		result.SentCount++
		h.log.Info("queued email sent", logger.StudentEmail(student.Email().String()))
	}

	if result.SentCount == 0 {
		if !cmd.NotifyWhenEmpty {
			return result, nil
		}
		return result, h.notifier.SendPlainMessage(ctx, "Sent zero emails from the queue...was it empty?")
	}
	summary := fmt.Sprintf("Sent %d emails from the queue. Emails: \n```\n%s\n```",
		result.SentCount, strings.Join(result.Emails, "\n"))
	return result, h.notifier.SendPlainMessage(ctx, summary)
}
