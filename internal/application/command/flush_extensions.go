package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/cs161-staff/extensions/internal/application/policy"
	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/record"
	"github.com/cs161-staff/extensions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FLUSH EXTENSIONS COMMAND
// Pushes manually-approved extensions to the external assignment service for
// every roster record marked for flushing. Reviewers opt a record in by
// setting its flush column to TRUE; a successful flush resets it to FALSE.
// ══════════════════════════════════════════════════════════════════════════════

// FlushExtensionsCommand configures one flush run.
type FlushExtensionsCommand struct {
	// NotifyWhenIdle posts the summary notification even when no record
	// was marked for flushing. Wanted for on-demand runs; the scheduled
	// worker keeps quiet on idle passes.
	NotifyWhenIdle bool
}

// FlushExtensionsResult summarizes one flush run.
type FlushExtensionsResult struct {
	// Successes lists records whose every extension applied cleanly.
	Successes []string

	// Failures lists records that produced at least one warning.
	Failures []string

	// Warnings is the aggregated warning list across all records.
	Warnings []string
}

// FlushExtensionsHandler scans the roster and applies marked extensions.
type FlushExtensionsHandler struct {
	store    record.Store
	catalog  *assignment.Catalog
	extender policy.ExtensionApplier
	notifier policy.Notifier
	log      *logger.Logger
}

// NewFlushExtensionsHandler creates the handler.
func NewFlushExtensionsHandler(
	store record.Store,
	catalog *assignment.Catalog,
	extender policy.ExtensionApplier,
	notifier policy.Notifier,
	log *logger.Logger,
) *FlushExtensionsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &FlushExtensionsHandler{
		store:    store,
		catalog:  catalog,
		extender: extender,
		notifier: notifier,
		log:      log,
	}
}

// Handle walks the roster once. Records with warnings keep their flush mark
// so the next run retries them after the operator fixes the underlying issue.
func (h *FlushExtensionsHandler) Handle(ctx context.Context, cmd FlushExtensionsCommand) (*FlushExtensionsResult, error) {
	if h.extender == nil {
		if !cmd.NotifyWhenIdle {
			return &FlushExtensionsResult{}, nil
		}
		return &FlushExtensionsResult{}, h.notifier.SendPlainMessage(ctx,
			"Flush Extensions Summary:\nExtension application is disabled for this course, so nothing was flushed.")
	}

	headers, err := h.store.Headers(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := h.store.Rows(ctx)
	if err != nil {
		return nil, err
	}

	result := &FlushExtensionsResult{}
	for i, fields := range rows {
		student := record.FromRow(i, fields, headers, h.store)
		if !student.ShouldFlushExtensions() {
			continue
		}

		warnings := h.applyExtensions(ctx, student)
		if len(warnings) > 0 {
			result.Failures = append(result.Failures, student.Email().String())
			result.Warnings = append(result.Warnings, warnings...)
			h.log.Warn("extension flush incomplete",
				logger.StudentEmail(student.Email().String()),
				logger.Int("warnings", len(warnings)))
		} else {
			result.Successes = append(result.Successes, student.Email().String())
			student.SetFlushExtensionsDone()
		}

		if err := student.Flush(ctx); err != nil {
			return result, err
		}
	}

	if len(result.Successes)+len(result.Failures) == 0 && !cmd.NotifyWhenIdle {
		return result, nil
	}
	return result, h.notifier.SendPlainMessage(ctx, h.summary(result))
}

// applyExtensions pushes every requested extension of one record to the
// external service, collecting per-assignment warnings instead of stopping.
func (h *FlushExtensionsHandler) applyExtensions(ctx context.Context, student *record.StudentRecord) []string {
	var warnings []string
	for _, a := range h.catalog.All() {
		numDays, ok, err := student.GetRequest(a.ID)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf(
				"[%s] could not read request for %s: %v", a.Name, student.Email(), err))
			continue
		}
		if !ok || len(a.ExtensionTargets) == 0 {
			continue
		}
		if !a.HasDueDate() {
			warnings = append(warnings, fmt.Sprintf(
				"[%s] could not extend assignment deadline for %s (deadline not set).",
				a.Name, student.Email()))
			continue
		}

		applyWarnings, err := h.extender.Apply(ctx, a.ExtensionTargets, student.Email().String(), numDays)
		warnings = append(warnings, applyWarnings...)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf(
				"[%s] could not extend assignment deadline for %s: %v", a.Name, student.Email(), err))
		}
	}
	return warnings
}

func (h *FlushExtensionsHandler) summary(result *FlushExtensionsResult) string {
	summary := "Flush Extensions Summary:\n"
	if len(result.Successes) > 0 {
		summary += "\n*Successes:* " + strings.Join(result.Successes, ", ")
	}
	if len(result.Failures) > 0 {
		summary += "\n*Failures:* " + strings.Join(result.Failures, ", ")
	}
	if len(result.Successes)+len(result.Failures) == 0 {
		summary += "\nNo student records processed. To process a student record, create a " +
			"`flush_gradescope` column on the Roster sheet, and set the value to TRUE " +
			"for each record you would like to flush."
	}
	if len(result.Warnings) > 0 {
		summary += "\n*Warnings:*\n```\n" + strings.Join(result.Warnings, "\n") + "\n```"
	}
	return summary
}
