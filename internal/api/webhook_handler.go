package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sourceforge-bot/jobcore/internal/ports"
	"github.com/sourceforge-bot/jobcore/internal/telemetry"
	"github.com/sourceforge-bot/jobcore/internal/webhook"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MiB, generous upper bound for a single webhook delivery

// HandleWebhook — ingress вебхука source-forge (C8 через C9).
// POST /webhook
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
	if err != nil {
		BadRequest(w, "failed to read request body")
		return
	}
	if len(body) > maxWebhookBodyBytes {
		BadRequest(w, "request body too large")
		return
	}

	signatureHeader := r.Header.Get("X-Hub-Signature-256")
	if !webhook.ValidateSignature(h.webhookSecret, body, signatureHeader) {
		Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid signature")
		return
	}

	if h.audit != nil {
		h.audit.Record(r.Context(), ports.AuditEvent{
			Category:   ports.AuditWebhookValidated,
			Message:    "webhook signature validated",
			OccurredAt: time.Now(),
		})
	}

	eventType := r.Header.Get("X-GitHub-Event")
	result, err := h.webhook.HandleEvent(r.Context(), eventType, body)
	if err != nil {
		if errors.Is(err, webhook.ErrMalformedPayload) {
			BadRequest(w, "malformed webhook payload")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	if !result.Enqueued {
		Success(w, map[string]string{"status": "ignored"})
		return
	}

	jobID := telemetry.StripCRLF(result.JobID)
	JSON(w, http.StatusAccepted, DispatchAcceptedResponse{
		JobID:     jobID,
		StatusURL: "/jobs/" + jobID + "/status",
	})
}
