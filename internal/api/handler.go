package api

import (
	"log/slog"

	"github.com/sourceforge-bot/jobcore/internal/dispatch"
	"github.com/sourceforge-bot/jobcore/internal/jobstore"
	"github.com/sourceforge-bot/jobcore/internal/ports"
	"github.com/sourceforge-bot/jobcore/internal/webhook"
)

// Handler — главный обработчик HTTP-поверхности (C9) со всеми зависимостями.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	jobs       jobstore.Store
	webhook    *webhook.Handler
	audit      ports.AuditSink

	webhookSecret string
	probes        []Prober

	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Dispatcher    *dispatch.Dispatcher
	Jobs          jobstore.Store
	Webhook       *webhook.Handler
	Audit         ports.AuditSink
	WebhookSecret string
	Probes        []Prober
	Logger        *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		dispatcher:    cfg.Dispatcher,
		jobs:          cfg.Jobs,
		webhook:       cfg.Webhook,
		audit:         cfg.Audit,
		webhookSecret: cfg.WebhookSecret,
		probes:        cfg.Probes,
		logger:        cfg.Logger,
	}
}
