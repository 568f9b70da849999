// Package webhook реализует C8 — Webhook Handler: маршрутизацию уже
// провалидированных на HTTP-границе событий source-forge в task store (C7)
// и dispatcher (C5). Единственная точка входа, которая пишет в Task Store
// прямо с ingress — дальнейшие переходы статуса задачи выполняет обработчик
// planning job, а не этот пакет.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sourceforge-bot/jobcore/internal/dispatch"
	"github.com/sourceforge-bot/jobcore/internal/domain"
	"github.com/sourceforge-bot/jobcore/internal/jobstore"
	"github.com/sourceforge-bot/jobcore/internal/taskstore"
	"github.com/sourceforge-bot/jobcore/internal/telemetry"
)

// JobTypePlan — тип job, который диспетчеризует issues/labeled.
const JobTypePlan = "plan"

// MetadataInstallationIDKey — ключ в Job.Metadata, по которому cascade
// при installation/deleted находит job'ы, принадлежащие installation.
const MetadataInstallationIDKey = "installation_id"

// maxCascadePage — верхняя граница одной страницы при перечислении задач и
// job'ов для installation при деинсталляции. Реальные инсталляции
// source-forge обслуживают far fewer активных задач, чем это значение.
const maxCascadePage = 10000

// ErrMalformedPayload — тело запроса не распознано как ожидаемая полезная
// нагрузка события (400 на HTTP-границе).
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Result — исход обработки одной доставки вебхука.
type Result struct {
	JobID    string
	Enqueued bool
}

// Handler — C8.
type Handler struct {
	tasks           taskstore.Store
	jobs            jobstore.Store
	dispatcher      *dispatch.Dispatcher
	activationLabel string
	logger          *slog.Logger
	now             func() time.Time
}

// Config конфигурирует Handler.
type Config struct {
	Tasks           taskstore.Store
	Jobs            jobstore.Store
	Dispatcher      *dispatch.Dispatcher
	ActivationLabel string
	Logger          *slog.Logger
}

// New создаёт Handler.
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		tasks:           cfg.Tasks,
		jobs:            cfg.Jobs,
		dispatcher:      cfg.Dispatcher,
		activationLabel: cfg.ActivationLabel,
		logger:          logger,
		now:             time.Now,
	}
}

// HandleEvent маршрутизирует одну уже провалидированную доставку вебхука по
// значению заголовка X-GitHub-Event. Событие неизвестного типа либо
// нерелевантного action — no-op (200 на границе, без мутации состояния).
func (h *Handler) HandleEvent(ctx context.Context, eventType string, body []byte) (Result, error) {
	switch eventType {
	case "installation":
		return Result{}, h.handleInstallation(ctx, body)
	case "issues":
		return h.handleIssues(ctx, body)
	default:
		h.logger.Debug("ignoring unrecognized webhook event type", "event_type", telemetry.StripCRLF(eventType))
		return Result{}, nil
	}
}

func (h *Handler) handleInstallation(ctx context.Context, body []byte) error {
	var payload installationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if payload.Action != "deleted" {
		return nil
	}
	return h.cascadeUninstall(ctx, payload.Installation.ID)
}

// cascadeUninstall реализует spec §4.8/§4.9 "Uninstall cascade": все
// нетерминальные задачи installation переходят в Cancelled, все
// нетерминальные job'ы с совпадающим installation id в метаданных получают
// сигнал отмены через Dispatcher.
func (h *Handler) cascadeUninstall(ctx context.Context, installationID int64) error {
	now := h.now()

	tasks, err := h.tasks.ListByInstallation(ctx, installationID, 0, maxCascadePage)
	if err != nil {
		return fmt.Errorf("list tasks by installation: %w", err)
	}
	for _, task := range tasks {
		if task.Status.IsTerminal() {
			continue
		}
		task.Status = domain.AgentTaskCancelled
		task.CompletedAt = &now
		if err := h.tasks.Update(ctx, task); err != nil {
			h.logger.Error("failed to cancel task on uninstall", "task_id", telemetry.StripCRLF(task.ID), "error", err)
		}
	}

	installationTag := strconv.FormatInt(installationID, 10)
	nonTerminal := []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusProcessing, domain.JobStatusRetrying}
	for _, status := range nonTerminal {
		records, err := h.jobs.ListByStatus(ctx, status, 0, maxCascadePage)
		if err != nil {
			h.logger.Error("failed to list jobs for uninstall cascade", "status", status, "error", err)
			continue
		}
		for _, record := range records {
			if record.Metadata[MetadataInstallationIDKey] != installationTag {
				continue
			}
			h.dispatcher.Cancel(record.JobID)
		}
	}

	h.logger.Info("handled installation uninstall cascade", "installation_id", installationID, "tasks_scanned", len(tasks))
	return nil
}

func (h *Handler) handleIssues(ctx context.Context, body []byte) (Result, error) {
	var payload issuesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if payload.Action != "labeled" || payload.Label.Name != h.activationLabel {
		return Result{}, nil
	}

	taskID := domain.TaskID(payload.Repository.Owner.Login, payload.Repository.Name, payload.Issue.Number)

	existing, found, err := h.tasks.Get(ctx, taskID)
	if err != nil {
		return Result{}, fmt.Errorf("load task: %w", err)
	}

	task := existing
	if !found {
		task = &domain.AgentTask{
			ID:          taskID,
			Owner:       payload.Repository.Owner.Login,
			Repo:        payload.Repository.Name,
			IssueNumber: payload.Issue.Number,
			CreatedAt:   h.now(),
		}
	}
	task.InstallationID = payload.Installation.ID
	task.Status = domain.AgentTaskPendingPlanning
	task.Error = ""

	if err := h.tasks.Update(ctx, task); err != nil {
		return Result{}, fmt.Errorf("upsert task: %w", err)
	}

	planPayload, err := json.Marshal(planningJobPayload{
		TaskID:         taskID,
		InstallationID: payload.Installation.ID,
		IssueTitle:     payload.Issue.Title,
		IssueBody:      payload.Issue.Body,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal planning payload: %w", err)
	}

	job := domain.Job{
		Type:           JobTypePlan,
		Payload:        string(planPayload),
		IdempotencyKey: "plan:" + taskID,
		Metadata: map[string]string{
			dispatch.MetadataSourceKey: "webhook",
			MetadataInstallationIDKey:  strconv.FormatInt(payload.Installation.ID, 10),
		},
	}

	jobID, accepted := h.dispatcher.Dispatch(ctx, job)
	return Result{JobID: jobID, Enqueued: accepted}, nil
}

// planningJobPayload — сериализуемая полезная нагрузка planning job'а,
// которую десериализует обработчик, зарегистрированный под JobTypePlan.
type planningJobPayload struct {
	TaskID         string `json:"taskId"`
	InstallationID int64  `json:"installationId"`
	IssueTitle     string `json:"issueTitle"`
	IssueBody      string `json:"issueBody"`
}
