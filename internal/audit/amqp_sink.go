package audit

import (
	"context"
	"log/slog"

	"github.com/sourceforge-bot/jobcore/internal/mq"
	"github.com/sourceforge-bot/jobcore/internal/ports"
	"github.com/sourceforge-bot/jobcore/internal/telemetry"
)

// auditWirePayload — форма сообщения на проводе jobcore.audit.
type auditWirePayload struct {
	CorrelationID string            `json:"correlation_id"`
	Message       string            `json:"message"`
	DurationMs    int64             `json:"duration_ms"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AMQPSink публикует события аудита в RabbitMQ. Fire-and-forget: ошибки
// публикации деградируют к логированием и никогда не блокируют или не
// проваливают вызывающую операцию (spec §6 — audit sink допускается быть
// eventually consistent и внешним).
type AMQPSink struct {
	publisher *mq.Publisher
	logger    *slog.Logger
}

// NewAMQPSink оборачивает уже подключённый Publisher.
func NewAMQPSink(publisher *mq.Publisher, logger *slog.Logger) *AMQPSink {
	return &AMQPSink{publisher: publisher, logger: logger}
}

// Record реализует ports.AuditSink.
func (s *AMQPSink) Record(ctx context.Context, event ports.AuditEvent) {
	payload := auditWirePayload{
		CorrelationID: telemetry.StripCRLF(event.CorrelationID),
		Message:       telemetry.StripCRLF(event.Message),
		DurationMs:    event.Duration.Milliseconds(),
		Metadata:      event.Metadata,
	}

	if err := s.publisher.PublishJSON(ctx, mq.MessageType(event.Category), payload); err != nil {
		s.logger.Warn("failed to publish audit event",
			"category", event.Category,
			"correlation_id", payload.CorrelationID,
			"error", err,
		)
	}
}
