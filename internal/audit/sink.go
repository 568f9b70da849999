// Package audit реализует ports.AuditSink: приёмник событий аудита (spec
// §6), опубликованных webhook-обработчиком и процессором. AMQPSink
// адаптирует teacher-пакет internal/mq (reconnect-коннекшн + publisher) под
// единственный exchange jobcore.audit; LoggingSink — деградация, когда
// AMQP_URL не задан, в духе "worker running in polling-only mode" у
// teacher-воркера при недоступном RabbitMQ.
package audit

import (
	"context"
	"log/slog"

	"github.com/sourceforge-bot/jobcore/internal/ports"
	"github.com/sourceforge-bot/jobcore/internal/telemetry"
)

// LoggingSink пишет события аудита структурированным логом и ничего не
// отправляет по сети. Используется когда AMQP_URL не настроен.
type LoggingSink struct {
	logger *slog.Logger
}

// NewLoggingSink создаёт sink, пишущий события в logger.
func NewLoggingSink(logger *slog.Logger) *LoggingSink {
	return &LoggingSink{logger: logger}
}

// Record реализует ports.AuditSink.
func (s *LoggingSink) Record(_ context.Context, event ports.AuditEvent) {
	s.logger.Info("audit event",
		"category", event.Category,
		"correlation_id", telemetry.StripCRLF(event.CorrelationID),
		"message", telemetry.StripCRLF(event.Message),
		"duration_ms", event.Duration.Milliseconds(),
	)
}
