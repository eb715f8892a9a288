// Package policy contains the approval decision engine: the component that
// evaluates a parsed form submission against configurable thresholds and
// existing roster state, decides an outcome, and coordinates side effects
// (status transitions, deferred writes, outbound notifications) while keeping
// the decision unit {student} ∪ partners mutually consistent.
package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/record"
	"github.com/cs161-staff/extensions/internal/domain/submission"
	"github.com/cs161-staff/extensions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATOR CONTRACTS
// Outbound effects are abstract here; adapters live in infrastructure.
// ══════════════════════════════════════════════════════════════════════════════

// Action is a button attached to an interactive notification.
type Action struct {
	// Text is the button label.
	Text string

	// URL is the link target (typically the roster spreadsheet).
	URL string
}

// Notifier delivers operator-facing notifications (e.g. a Slack channel).
// A non-success transport status fails the invocation.
type Notifier interface {
	// SendPlainMessage sends a plain text message.
	SendPlainMessage(ctx context.Context, text string) error

	// SendInteractiveMessage sends a message with action buttons,
	// used for every non-auto-approved outcome.
	SendInteractiveMessage(ctx context.Context, text string, actions []Action) error
}

// Message is an outbound email.
type Message struct {
	To      string
	From    string
	CC      []string
	ReplyTo string
	Subject string
	Body    string
}

// EmailSender delivers confirmation emails to students.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// ExtensionApplier applies approved extensions on an external assignment
// service (e.g. Gradescope). Failures against individual targets are
// collected as warnings rather than aborting the batch.
type ExtensionApplier interface {
	Apply(ctx context.Context, targets []string, email string, days int) (warnings []string, err error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config is the explicit configuration value object for the engine.
// No ambient/global mutable state: everything the decision depends on is here.
type Config struct {
	// AutoApproveThreshold is the max number of days a non-DSP request may
	// ask for and still auto-approve. A value <= 0 disables auto-approval
	// entirely (every non-DSP request is flagged for review).
	AutoApproveThreshold int

	// AutoApproveThresholdDSP is the day threshold for DSP-claimed requests.
	AutoApproveThresholdDSP int

	// AutoApproveAssignmentThreshold caps how many assignments a single
	// non-DSP submission may cover. <= 0 disables the check.
	AutoApproveAssignmentThreshold int

	// MaxTotalRequestedExtensions caps the student's total outstanding
	// request count (existing + this submission, non-DSP only).
	// -1 disables the check; 0 rejects everything.
	MaxTotalRequestedExtensions int

	// SpreadsheetURL links interactive notifications back to the roster.
	SpreadsheetURL string

	// ReviewerTags are optional @-mention tags prepended to review requests.
	ReviewerTags []string

	// Location is the course's home timezone.
	Location *time.Location

	// Email holds the outbound email template settings.
	Email EmailConfig

	// Silent suppresses outbound email and extension application
	// (used by tests and dry runs). Record writes still happen.
	Silent bool
}

// DefaultConfig returns a Config with the check-disabling sentinels in place.
func DefaultConfig() Config {
	return Config{
		AutoApproveThreshold:        3,
		AutoApproveThresholdDSP:     7,
		MaxTotalRequestedExtensions: -1,
		Location:                    time.UTC,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOME
// ══════════════════════════════════════════════════════════════════════════════

// Outcome describes what the engine decided for one submission.
type Outcome struct {
	// InvocationID identifies this engine run in logs and notifications.
	InvocationID string

	// StudentEmail is the submitter's normalized email.
	StudentEmail string

	// Approved is true only for the auto-approval path.
	Approved bool

	// Reason is the first manual-review reason recorded, if any.
	Reason string

	// Warnings is the ordered, append-only warning list of this invocation,
	// consumed exactly once when the final notification is rendered.
	Warnings []string
}

func (o *Outcome) addWarning(w string) {
	o.Warnings = append(o.Warnings, w)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine is the approval decision engine. One Engine may serve many
// submissions, but each Apply call owns its records exclusively:
// single-threaded, synchronous, run-to-completion.
type Engine struct {
	catalog  *assignment.Catalog
	store    record.Store
	notifier Notifier
	mailer   EmailSender
	extender ExtensionApplier
	cfg      Config
	log      *logger.Logger
}

// NewEngine creates a new Engine. The extender may be nil when external
// extension application is disabled.
func NewEngine(
	catalog *assignment.Catalog,
	store record.Store,
	notifier Notifier,
	mailer EmailSender,
	extender ExtensionApplier,
	cfg Config,
	log *logger.Logger,
) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = logger.Default()
	}
	return &Engine{
		catalog:  catalog,
		store:    store,
		notifier: notifier,
		mailer:   mailer,
		extender: extender,
		cfg:      cfg,
		log:      log,
	}
}

// invocation owns the per-submission state: the decision unit and the
// warning list. It is created inside Apply and never shared.
type invocation struct {
	sub      *submission.Submission
	student  *record.StudentRecord
	partners []*record.StudentRecord
	outcome  *Outcome
}

// Apply runs the ordered decision steps for one submission:
//
//  1. meeting short-circuit,
//  2. per-request evaluation (first manual-review reason wins),
//  3. work-in-progress guard,
//  4. manual-review outcome,
//  5. auto-approval with outbound effects.
//
// Writes already flushed for one member of the decision unit are not rolled
// back if a later member's processing fails; that partial state is surfaced
// for manual follow-up rather than compensated.
func (e *Engine) Apply(ctx context.Context, sub *submission.Submission) (*Outcome, error) {
	inv := &invocation{
		sub: sub,
		outcome: &Outcome{
			InvocationID: uuid.NewString(),
			StudentEmail: sub.Email().String(),
		},
	}

	log := e.log.With(
		logger.InvocationID(inv.outcome.InvocationID),
		logger.StudentEmail(sub.Email().String()),
	)
	log.Info("processing submission")

	if err := e.fetchRecords(ctx, inv); err != nil {
		return inv.outcome, err
	}

	e.stageRunMetadata(inv)

	// Step 1: a general plea for help short-circuits everything else.
	if !sub.KnowsAssignments() {
		log.Info("student requested a support meeting")
		inv.student.SetLog("Requested student support meeting.")
		inv.student.SetStatusRequestedMeeting()
		if err := inv.student.Flush(ctx); err != nil {
			return inv.outcome, err
		}
		if err := e.notifyUpdate(ctx, inv, "A student requested a student support meeting.", false); err != nil {
			return inv.outcome, err
		}
		return inv.outcome, nil
	}

	// Step 2: evaluate every extension request and stage write-backs.
	if err := e.processRequests(ctx, inv); err != nil {
		return inv.outcome, err
	}

	// Step 3: existing work-in-progress blocks auto-approval regardless of
	// what step 2 concluded, and must not have its status touched.
	wipMessage, err := e.checkWorkInProgress(ctx, inv)
	if err != nil {
		return inv.outcome, err
	}
	if wipMessage != "" {
		log.Info("blocked by work-in-progress")
		if err := e.notifyUpdate(ctx, inv, wipMessage, false); err != nil {
			return inv.outcome, err
		}
		return inv.outcome, nil
	}

	// Step 4: the whole unit goes to manual review with the first reason.
	if inv.outcome.Reason != "" {
		log.Info("flagged for manual review", logger.String("reason", inv.outcome.Reason))
		if err := e.flagForReview(ctx, inv); err != nil {
			return inv.outcome, err
		}
		msg := fmt.Sprintf("An extension request needs review (%s).", inv.outcome.Reason)
		if err := e.notifyUpdate(ctx, inv, msg, false); err != nil {
			return inv.outcome, err
		}
		return inv.outcome, nil
	}

	// Step 5: all checks passed - auto-approve the whole unit.
	message, err := e.approve(ctx, inv)
	if err != nil {
		return inv.outcome, err
	}
	log.Info("auto-approved", logger.Int("partners", len(inv.partners)))

	if !e.cfg.Silent {
		e.sendEmail(ctx, inv, inv.student)
		for _, partner := range inv.partners {
			e.sendEmail(ctx, inv, partner)
		}

		e.applyExtensions(ctx, inv, inv.student)
		for _, partner := range inv.partners {
			e.applyExtensions(ctx, inv, partner)
		}
	}

	inv.outcome.Approved = true
	if err := e.notifyUpdate(ctx, inv, message, true); err != nil {
		return inv.outcome, err
	}

	return inv.outcome, nil
}

// fetchRecords loads the decision unit: the student plus any partners.
func (e *Engine) fetchRecords(ctx context.Context, inv *invocation) error {
	student, err := record.FromEmail(ctx, inv.sub.Email(), e.store)
	if err != nil {
		return err
	}
	inv.student = student

	if inv.sub.HasPartner() {
		for _, email := range inv.sub.PartnerEmails() {
			partner, err := record.FromEmail(ctx, email, e.store)
			if err != nil {
				return err
			}
			inv.partners = append(inv.partners, partner)
		}
	}
	return nil
}

// stageRunMetadata stages the last-run timestamp and reason/game-plan onto
// every member of the unit. Partners carry a source marker so reviewers can
// trace where the write came from.
func (e *Engine) stageRunMetadata(inv *invocation) {
	var reason string
	if inv.sub.KnowsAssignments() {
		reason = inv.sub.Reason()
	} else {
		reason = inv.sub.GamePlan()
	}

	ts := inv.sub.Timestamp()
	inv.student.SetLastRunTimestamp(ts, e.cfg.Location)
	inv.student.SetLastRunReason(reason)
	for _, partner := range inv.partners {
		partner.SetLastRunTimestamp(ts, e.cfg.Location)
		partner.SetLastRunReason(fmt.Sprintf("%s [source: %s]", reason, inv.sub.Email()))
	}
}

// processRequests walks each extension request in submission order, applies
// the monotonic-non-decreasing day coercion, evaluates the review conditions
// (first matching reason wins and is never overwritten), and stages
// write-backs for the student and, on partner assignments, every partner.
func (e *Engine) processRequests(ctx context.Context, inv *invocation) error {
	sub := inv.sub

	requests, err := sub.Requests(e.catalog)
	if err != nil {
		return err
	}
	numRequests := len(requests)

	// A pile of extensions in a single submission needs a human up front.
	if !sub.ClaimsDSP() && e.cfg.AutoApproveAssignmentThreshold > 0 &&
		numRequests > e.cfg.AutoApproveAssignmentThreshold {
		e.flag(inv, fmt.Sprintf(
			"this student has requested more assignment extensions (%d) than the auto-approve threshold (%d)",
			numRequests, e.cfg.AutoApproveAssignmentThreshold))
	}

	// Total outstanding = pre-submission roster count + this submission.
	existingCount, err := inv.student.CountRequests(e.catalog)
	if err != nil {
		return err
	}
	totalOutstanding := existingCount + numRequests

	for _, req := range requests {
		a := req.Assignment
		numDays := req.Days

		// If the new request is shorter than an existing one, keep the
		// existing count. This covers the case where partner A asks for 8
		// days and partner B later asks for 3: B must not clobber A's grant.
		existing, ok, err := inv.student.GetRequest(a.ID)
		if err != nil {
			return err
		}
		if ok && numDays <= existing {
			inv.outcome.addWarning(fmt.Sprintf(
				"[%s] student requested an extension for %d days, which was <= an existing request of %d days, so we kept the existing request in-place.",
				a.Name, numDays, existing))
			numDays = existing
		}

		switch {
		// Case #1: too many days (non-DSP).
		case !sub.ClaimsDSP() && numDays > e.cfg.AutoApproveThreshold:
			if e.cfg.AutoApproveThreshold <= 0 {
				e.flag(inv, "auto-approve is disabled")
			} else {
				e.flag(inv, fmt.Sprintf(
					"a request of %d days is greater than auto-approve threshold of %d days",
					numDays, e.cfg.AutoApproveThreshold))
			}

		// Case #2: too many days (DSP).
		case sub.ClaimsDSP() && numDays > e.cfg.AutoApproveThresholdDSP:
			e.flag(inv, fmt.Sprintf(
				"a DSP request of %d days is greater than DSP auto-approve threshold", numDays))

		// Case #3: the request is retroactive.
		case a.IsPastDue(sub.Timestamp()):
			e.flag(inv, "student requested a retroactive extension on an assignment")

		// Case #4: too many outstanding extensions in total (non-DSP).
		case !sub.ClaimsDSP() && e.cfg.MaxTotalRequestedExtensions != -1 &&
			totalOutstanding > e.cfg.MaxTotalRequestedExtensions:
			e.flag(inv, fmt.Sprintf(
				"a student requested extensions on more assignments (%d total) than the designated threshold",
				totalOutstanding))
		}

		// Whether or not a human is needed, the day count lands on the
		// roster; the write is deferred until Flush.
		inv.student.QueueRequest(a.ID, numDays)
		if a.Partner {
			for _, partner := range inv.partners {
				partner.QueueRequest(a.ID, numDays)
			}
		}
	}

	// A DSP claim that the roster does not back up is worth a human look,
	// but does not by itself force manual review.
	if sub.ClaimsDSP() && inv.student.RosterHasDSPFlag() && !inv.student.IsDSP() {
		inv.outcome.addWarning(fmt.Sprintf(
			"Student %s responded '%s' to DSP question in extension request, but is not marked for DSP approval on the roster. Please investigate!",
			sub.Email(), sub.DSPStatus()))
	}

	return nil
}

// flag records a manual-review reason. The first reason wins: later, lower
// priority reasons in the same submission never overwrite it.
func (e *Engine) flag(inv *invocation, reason string) {
	if inv.outcome.Reason == "" {
		inv.outcome.Reason = reason
	}
}

// checkWorkInProgress handles the three blocked configurations. It returns
// the notification message when the unit is blocked, or "" when clean.
func (e *Engine) checkWorkInProgress(ctx context.Context, inv *invocation) (string, error) {
	student := inv.student

	// Case (1): the submitter's own row is work-in-progress and partners are
	// in play. The submitter's status stays untouched; partners go Pending.
	if len(inv.partners) > 0 && student.HasWIPStatus() {
		if err := student.Flush(ctx); err != nil {
			return "", err
		}
		for _, partner := range inv.partners {
			partner.SetStatusPending()
			partner.SetLog(fmt.Sprintf(
				"Work-in-progress for form submitter [submitter: %s].", student.Email()))
			if err := partner.Flush(ctx); err != nil {
				return "", err
			}
		}
		return "An extension request needs review (there is work-in-progress for this student's record).", nil
	}

	// Case (2): at least one partner is work-in-progress. Dirty partners are
	// left as-is; clean partners and the submitter flip to Pending.
	if len(inv.partners) > 0 {
		var dirty, clean []*record.StudentRecord
		for _, partner := range inv.partners {
			if partner.HasWIPStatus() {
				dirty = append(dirty, partner)
			} else {
				clean = append(clean, partner)
			}
		}
		if len(dirty) > 0 {
			for _, partner := range dirty {
				if err := partner.Flush(ctx); err != nil {
					return "", err
				}
			}

			emails := make([]string, len(dirty))
			for i, partner := range dirty {
				emails[i] = partner.Email().String()
			}
			msg := fmt.Sprintf(
				"Work-in-progress for submitter's partner [submitter: %s] [partner(s) with WIP: %s].",
				inv.sub.Email(), strings.Join(emails, ", "))

			for _, partner := range clean {
				partner.SetStatusPending()
				partner.SetLog(msg)
				if err := partner.Flush(ctx); err != nil {
					return "", err
				}
			}
			student.SetStatusPending()
			student.SetLog(msg)
			if err := student.Flush(ctx); err != nil {
				return "", err
			}
			return "An extension request needs review (there is work-in-progress for this student's partner).", nil
		}
	}

	// Case (3): no partners, submitter's row is work-in-progress. The status
	// stays as a human left it (e.g. "Requested Meeting"), but the staged day
	// counts still land on the roster.
	if student.HasWIPStatus() {
		if err := student.Flush(ctx); err != nil {
			return "", err
		}
		return "An extension request needs review (there is work-in-progress for this student's record).", nil
	}

	return "", nil
}

// flagForReview transitions the whole unit to Pending with the recorded
// reason as the log note.
func (e *Engine) flagForReview(ctx context.Context, inv *invocation) error {
	note := capitalize(inv.outcome.Reason)
	studentNote := note
	if len(inv.partners) > 0 {
		studentNote = fmt.Sprintf("%s [submitter: %s]", note, inv.student.Email())
	}

	inv.student.SetStatusPending()
	inv.student.SetLog(studentNote)
	if err := inv.student.Flush(ctx); err != nil {
		return err
	}

	for _, partner := range inv.partners {
		partner.SetStatusPending()
		partner.SetLog(fmt.Sprintf("%s [submitter: %s]", note, inv.student.Email()))
		if err := partner.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// approve transitions the whole unit to Auto Approved and returns the
// aggregated notification message.
func (e *Engine) approve(ctx context.Context, inv *invocation) (string, error) {
	inv.student.SetStatusApproved()
	inv.student.SetLog("Auto-approved.")
	if err := inv.student.Flush(ctx); err != nil {
		return "", err
	}

	if len(inv.partners) == 0 {
		return "An extension request was automatically approved!", nil
	}

	for _, partner := range inv.partners {
		partner.SetStatusApproved()
		partner.SetLog(fmt.Sprintf("Auto-approved [request source: %s].", inv.student.Email()))
		if err := partner.Flush(ctx); err != nil {
			return "", err
		}
	}
	return "An extension request was automatically approved (for the submitter's partner(s), too!)", nil
}

// sendEmail sends the confirmation email to one member of the unit.
// By this point the roster writes have succeeded, so a delivery failure is
// downgraded to a warning that demands manual follow-up, never a rollback.
func (e *Engine) sendEmail(ctx context.Context, inv *invocation, target *record.StudentRecord) {
	msg, warnings, err := BuildConfirmationEmail(target, e.catalog, e.cfg.Email, e.cfg.Location)
	for _, w := range warnings {
		inv.outcome.addWarning(w)
	}
	if err == nil {
		err = e.mailer.Send(ctx, msg)
	}
	if err != nil {
		e.log.Error("confirmation email failed",
			logger.StudentEmail(target.Email().String()), logger.Err(err))
		inv.outcome.addWarning(
			"Writes to spreadsheet succeed, but email to student failed.\n" +
				"Please follow up with this student manually and/or check email logs.\n" +
				"Error: " + err.Error())
	}
}

// applyExtensions pushes approved extensions to the external service for
// every assignment the target has a request on. Per-target failures are
// advisory warnings; one broken target must not block the others.
func (e *Engine) applyExtensions(ctx context.Context, inv *invocation, target *record.StudentRecord) {
	if e.extender == nil {
		return
	}

	for _, a := range e.catalog.All() {
		numDays, ok, err := target.GetRequest(a.ID)
		if err != nil || !ok {
			continue
		}

		if len(a.ExtensionTargets) == 0 {
			continue
		}
		if !a.HasDueDate() {
			inv.outcome.addWarning(fmt.Sprintf(
				"[%s] could not extend assignment deadline for %s (deadline not set).",
				a.Name, target.Email()))
			continue
		}

		warnings, err := e.extender.Apply(ctx, a.ExtensionTargets, target.Email().String(), numDays)
		for _, w := range warnings {
			inv.outcome.addWarning(w)
		}
		if err != nil {
			inv.outcome.addWarning(fmt.Sprintf(
				"[%s] could not extend assignment deadline for %s: %v", a.Name, target.Email(), err))
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
