package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/record"
	"github.com/cs161-staff/extensions/internal/domain/shared"
	"github.com/cs161-staff/extensions/pkg/timeutil"
)

// EmailConfig holds the template settings for confirmation emails.
type EmailConfig struct {
	From      string
	ReplyTo   string
	CC        []string
	Subject   string
	Signature string
}

// Validate checks that the required template fields are present.
func (c EmailConfig) Validate() error {
	const op = "email_config.validate"
	if strings.TrimSpace(c.From) == "" {
		return shared.Configuration("policy", op, "email 'from' address is not configured")
	}
	if strings.TrimSpace(c.Subject) == "" {
		return shared.Configuration("policy", op, "email subject is not configured")
	}
	return nil
}

// BuildConfirmationEmail renders the plain text confirmation email for one
// student, listing every assignment the roster currently holds a request for
// with its original and extended deadline. Requests whose extended deadline
// was clamped to the hard due date are still listed with the clamped date,
// and a warning is returned so staff can mention the cap to the student.
func BuildConfirmationEmail(
	target *record.StudentRecord,
	catalog *assignment.Catalog,
	cfg EmailConfig,
	loc *time.Location,
) (Message, []string, error) {
	if err := cfg.Validate(); err != nil {
		return Message{}, nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	var warnings []string
	var b strings.Builder

	b.WriteString("Hi,\n\n")
	b.WriteString("You recently requested an extension for an assignment. " +
		"We've processed this extension, and here are your updated due dates:\n\n")

	for _, a := range catalog.All() {
		numDays, ok, err := target.GetRequest(a.ID)
		if err != nil {
			return Message{}, warnings, err
		}
		if !ok {
			continue
		}

		fmt.Fprintf(&b, "%s (%d Day Extension)\n", a.Name, numDays)
		if a.HasDueDate() {
			extended, capped := a.ExtendedDueDate(numDays)
			fmt.Fprintf(&b, "Original Deadline: %s\n", timeutil.FormatDeadline(a.DueDate, loc))
			fmt.Fprintf(&b, "Extended Deadline: %s\n\n", timeutil.FormatDeadline(extended, loc))
			if capped {
				warnings = append(warnings, fmt.Sprintf(
					"[%s] the extended deadline for %s was clamped to the hard due date (%s).",
					a.Name, target.Email(), timeutil.FormatDeadline(extended, loc)))
			}
		} else {
			b.WriteString("Original Deadline: TBD\n")
			b.WriteString("Extended Deadline: TBD\n\n")
		}
	}

	if comments := target.EmailComments(); comments != "" {
		fmt.Fprintf(&b, "Additional comments: %s\n\n", comments)
	}

	b.WriteString("If something doesn't look right, please reply to this email!\n\n")
	b.WriteString("Best,\n\n")
	b.WriteString(cfg.Signature)
	b.WriteString("\n\n")
	b.WriteString("Disclaimer: This is an auto-generated email. We may follow up with you in" +
		" this thread, and feel free to reply to this thread if you'd like to follow up with us!")

	return Message{
		To:      target.Email().String(),
		From:    cfg.From,
		CC:      cfg.CC,
		ReplyTo: cfg.ReplyTo,
		Subject: cfg.Subject,
		Body:    b.String(),
	}, warnings, nil
}
