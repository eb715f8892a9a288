package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cs161-staff/extensions/internal/application/command"
	"github.com/cs161-staff/extensions/internal/domain/shared"
	"github.com/cs161-staff/extensions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// requireSecret checks the shared secret before invoking the handler. The
// configured value is a bcrypt hash, so a leaked config file does not leak
// the secret itself.
func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.SecretHash == "" {
			writeJSONError(w, http.StatusServiceUnavailable, "not_configured",
				"webhook secret is not configured")
			return
		}

		secret := r.Header.Get("X-App-Secret")
		if err := bcrypt.CompareHashAndPassword([]byte(s.config.SecretHash), []byte(secret)); err != nil {
			s.logger.Warn("webhook auth failed",
				logger.String("path", r.URL.Path),
				logger.String("request_id", requestID(r.Context())),
			)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid secret")
			return
		}
		next(w, r)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	startedAt := s.startedAt
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(startedAt).String(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// FORM SUBMISSION WEBHOOK
// ══════════════════════════════════════════════════════════════════════════════

// formSubmitRequest is the payload the form provider posts: the raw question
// text mapped to answer values.
type formSubmitRequest struct {
	FormData map[string][]string `json:"form_data"`
}

// handleFormSubmit runs one submission through the decision engine. Known
// processing failures are reported to the staff channel and acknowledged
// with 200, so the form provider does not retry a submission that will fail
// the same way again; a human picks it up from the channel instead.
func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req formSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if len(req.FormData) == 0 {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "form_data is required")
		return
	}

	if s.deps.Dedupe != nil {
		first, err := s.deps.Dedupe.FirstDelivery(ctx, req.FormData)
		if err != nil {
			// Dedupe is advisory. Processing a duplicate is recoverable by a
			// human; silently dropping a real submission is not.
			s.logger.Error("dedupe check failed", logger.Err(err))
		} else if !first {
			s.logger.Info("duplicate delivery dropped",
				logger.String("request_id", requestID(ctx)))
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	outcome, err := s.deps.ProcessSubmission.Handle(ctx, command.ProcessSubmissionCommand{
		Payload:       req.FormData,
		CorrelationID: requestID(ctx),
	})
	if err != nil {
		s.reportError(r, err)
		if shared.IsKnown(err) {
			// Acknowledged: staff were notified, a retry will not help.
			writeJSON(w, http.StatusOK, map[string]string{
				"status": "error",
				"error":  err.Error(),
			})
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "internal_error",
			"submission processing failed")
		return
	}

	if s.deps.Audit != nil {
		if auditErr := s.deps.Audit.Record(ctx, outcome.StudentEmail, outcome); auditErr != nil {
			s.logger.Error("audit record failed", logger.Err(auditErr))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "processed",
		"invocation_id": outcome.InvocationID,
		"approved":      outcome.Approved,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH JOBS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleEmailQueue(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ProcessEmailQueue.Handle(r.Context(), command.ProcessEmailQueueCommand{NotifyWhenEmpty: true})
	if err != nil {
		s.reportError(r, err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "processed",
		"sent_count": result.SentCount,
		"emails":     result.Emails,
	})
}

func (s *Server) handleFlushExtensions(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.FlushExtensions.Handle(r.Context(), command.FlushExtensionsCommand{NotifyWhenIdle: true})
	if err != nil {
		s.reportError(r, err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "processed",
		"successes": result.Successes,
		"failures":  result.Failures,
		"warnings":  result.Warnings,
	})
}

// reportError logs the failure and mirrors it to the staff channel.
func (s *Server) reportError(r *http.Request, err error) {
	s.logger.Error("request processing failed",
		logger.String("path", r.URL.Path),
		logger.String("request_id", requestID(r.Context())),
		logger.Err(err),
	)
	if s.deps.Notifier != nil {
		text := err.Error()
		if !shared.IsKnown(err) {
			text = fmt.Sprintf("An internal error occurred. Please check the application logs. [request: %s]",
				requestID(r.Context()))
		}
		if notifyErr := s.deps.Notifier.SendError(r.Context(), text); notifyErr != nil {
			s.logger.Error("failed to notify staff channel", logger.Err(notifyErr))
		}
	}
}
