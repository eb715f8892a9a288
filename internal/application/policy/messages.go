package policy

import (
	"context"
	"fmt"
	"strings"
)

// notifyUpdate renders the full student update (headline, quoted submission
// details, request summary table, warnings) and delivers it. Auto-approvals
// go out as plain text; everything else is interactive with a link back to
// the roster so a reviewer can act on it. The invocation's warning list is
// consumed exactly once, here.
func (e *Engine) notifyUpdate(ctx context.Context, inv *invocation, message string, approved bool) error {
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n")
	b.WriteString(e.submissionDetails(inv))

	b.WriteString("\n")
	b.WriteString("This student's extension request summary is below:")
	b.WriteString("```")
	b.WriteString(e.requestSummaryTable(inv))
	b.WriteString("```")
	b.WriteString("\n\n")

	if len(inv.outcome.Warnings) > 0 {
		b.WriteString("*Warnings:*\n")
		b.WriteString("```\n")
		for _, w := range inv.outcome.Warnings {
			b.WriteString(w)
			b.WriteString("\n")
		}
		b.WriteString("```")
	}

	text := b.String()
	if approved {
		return e.notifier.SendPlainMessage(ctx, text)
	}

	if len(e.cfg.ReviewerTags) > 0 {
		text = strings.Join(e.cfg.ReviewerTags, " ") + "\n" + text
	}
	return e.notifier.SendInteractiveMessage(ctx, text, []Action{
		{Text: "View Spreadsheet", URL: e.cfg.SpreadsheetURL},
	})
}

// submissionDetails quotes the raw form answers for reviewer context.
func (e *Engine) submissionDetails(inv *invocation) string {
	sub := inv.sub

	if !sub.KnowsAssignments() {
		return "> *Email*: " + sub.Email().String() + "\n" +
			"> *Notes*: " + sub.GamePlan() + "\n"
	}

	var b strings.Builder
	b.WriteString("> *Email*: " + sub.Email().String() + "\n")
	b.WriteString("> *Assignment(s)*: " + sub.RawAssignments() + "\n")
	b.WriteString("> *Days*: " + sub.RawDays() + "\n")
	b.WriteString("> *Reason*: " + sub.Reason() + "\n")
	if sub.HasPartner() {
		emails := make([]string, 0, len(sub.PartnerEmails()))
		for _, email := range sub.PartnerEmails() {
			emails = append(emails, email.String())
		}
		b.WriteString("> *Partner Email*: " + strings.Join(emails, ", ") + "\n")
	}
	return b.String()
}

// requestSummaryTable renders the submitter's current per-assignment day
// counts as a fixed-width table (the roster state after staging/flushing,
// not just this submission's rows).
func (e *Engine) requestSummaryTable(inv *invocation) string {
	type row struct {
		name string
		days int
	}

	var rows []row
	for _, a := range e.catalog.All() {
		numDays, ok, err := inv.student.GetRequest(a.ID)
		if err != nil || !ok {
			continue
		}
		rows = append(rows, row{name: a.Name, days: numDays})
	}

	const nameHeader = "Assignment"
	const daysHeader = "# Days Requested"

	nameWidth := len(nameHeader)
	for _, r := range rows {
		if len(r.name) > nameWidth {
			nameWidth = len(r.name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-*s  %s\n", nameWidth, nameHeader, daysHeader)
	fmt.Fprintf(&b, "%s  %s\n", strings.Repeat("-", nameWidth), strings.Repeat("-", len(daysHeader)))
	for _, r := range rows {
		fmt.Fprintf(&b, "%-*s  %*d\n", nameWidth, r.name, len(daysHeader), r.days)
	}
	return b.String()
}
