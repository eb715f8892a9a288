// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/cs161-staff/extensions/internal/application/policy"
	"github.com/cs161-staff/extensions/internal/domain/submission"
	"github.com/cs161-staff/extensions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS SUBMISSION COMMAND
// Parses a raw extension-request form payload into a submission and runs it
// through the approval decision engine.
// ══════════════════════════════════════════════════════════════════════════════

// ProcessSubmissionCommand carries one raw form payload: question text mapped
// to the (possibly repeated) answer values, exactly as the form provider
// posts them.
type ProcessSubmissionCommand struct {
	Payload map[string][]string

	// CorrelationID for tracing.
	CorrelationID string
}

// ProcessSubmissionHandler wires the form-question mapping and the engine.
type ProcessSubmissionHandler struct {
	questions []map[string]string
	engine    *policy.Engine
	location  *time.Location
	log       *logger.Logger
}

// NewProcessSubmissionHandler creates the handler. questions is the ordered
// question/key mapping rows from the configuration sheet.
func NewProcessSubmissionHandler(
	questions []map[string]string,
	engine *policy.Engine,
	location *time.Location,
	log *logger.Logger,
) *ProcessSubmissionHandler {
	if location == nil {
		location = time.UTC
	}
	if log == nil {
		log = logger.Default()
	}
	return &ProcessSubmissionHandler{
		questions: questions,
		engine:    engine,
		location:  location,
		log:       log,
	}
}

// Handle parses the payload and applies the decision policy.
func (h *ProcessSubmissionHandler) Handle(ctx context.Context, cmd ProcessSubmissionCommand) (*policy.Outcome, error) {
	sub, err := submission.New(cmd.Payload, h.questions, h.location)
	if err != nil {
		h.log.Error("failed to parse form submission", logger.Err(err))
		return nil, err
	}

	log := h.log.With(logger.StudentEmail(sub.Email().String()))
	if cmd.CorrelationID != "" {
		log = log.WithRequestID(cmd.CorrelationID)
	}

	start := time.Now()
	outcome, err := h.engine.Apply(ctx, sub)
	if err != nil {
		log.Error("submission processing failed", logger.Err(err))
		return outcome, err
	}

	log.Info("submission processed",
		logger.Bool("approved", outcome.Approved),
		logger.Int("warnings", len(outcome.Warnings)),
		logger.Latency(time.Since(start)),
	)
	return outcome, nil
}
