// Package ports содержит интерфейсы внешних коллабораторов процессора и
// webhook-обработчика (spec §6): обработчик job, LLM-планировщик, менеджер
// контейнеров, клиент source-forge и приёмник аудита. Пакет не содержит
// реализаций — только контракты, аналогично тому, как worker.Executor
// описывает контракт выполнения шага, не завязываясь на конкретный тип.
package ports

import (
	"context"
	"time"

	"github.com/sourceforge-bot/jobcore/internal/domain"
)

// CancelToken — кооперативный токен отмены одной попытки выполнения job.
//
// Обёртывает context.Context, привязанный к корневому контексту процессора:
// Cancel() срабатывает при Dispatcher.Cancel, процессор её не вызывает сам
// при успешном завершении попытки (только отменяет derived context).
type CancelToken interface {
	// Context возвращает контекст, привязанный к времени жизни попытки.
	Context() context.Context

	// Cancel сигнализирует об отмене. Идемпотентен.
	Cancel()

	// Cancelled сообщает, была ли уже сигнализирована отмена.
	Cancelled() bool
}

// JobHandler — контракт обработчика одного типа job (spec §6 Handler port).
type JobHandler interface {
	// JobType — тег типа, по которому Dispatcher индексирует обработчик.
	JobType() string

	// Execute выполняет одну попытку. Паника внутри Execute конвертируется
	// процессором в JobResult{Success: false, ShouldRetry: true}.
	Execute(job *domain.Job, token CancelToken) domain.JobResult
}

// PlanRequest — вход LLM-планировщика.
type PlanRequest struct {
	IssueTitle           string
	IssueBody            string
	RepositorySummary    string
	InstructionsMarkdown string
}

// Planner — LLM planner port. CreatePlan может завершиться транзиентной
// ошибкой; решение о retryability принимает вызывающий handler, не сам порт.
type Planner interface {
	CreatePlan(ctx context.Context, req PlanRequest) (*domain.Plan, error)
}

// ExecResult — результат выполнения команды в контейнере.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ContainerManager — container manager port. Все операции принимают
// CancelToken для кооперативной отмены долгих операций.
type ContainerManager interface {
	CreateContainer(ctx context.Context, owner, repo, token, branch string) (containerID string, err error)
	Execute(ctx context.Context, containerID, command string, args []string) (ExecResult, error)
	ReadFile(ctx context.Context, containerID, path string) ([]byte, error)
	WriteFile(ctx context.Context, containerID, path string, content []byte) error
	CommitAndPush(ctx context.Context, containerID, commitMessage string) error
	Cleanup(ctx context.Context, containerID string) error
}

// SourceForgeClient — source-forge client port (the hosted git/PR provider).
type SourceForgeClient interface {
	CreateWorkingBranch(ctx context.Context, owner, repo, baseBranch, newBranch string) error
	CreateDraftPullRequest(ctx context.Context, owner, repo, branch, title, body string) (prNumber int, err error)
	UpdatePullRequestDescription(ctx context.Context, owner, repo string, prNumber int, body string) error
	PostPullRequestComment(ctx context.Context, owner, repo string, prNumber int, comment string) error
	GetPullRequestNumberForBranch(ctx context.Context, owner, repo, branch string) (prNumber int, found bool, err error)
}

// AuditCategory — тег категории события аудита.
type AuditCategory string

const (
	AuditWebhookValidated AuditCategory = "webhook.validated"
	AuditContainerOp      AuditCategory = "container.op"
	AuditFileOp           AuditCategory = "file.op"
	AuditPlanGenerated    AuditCategory = "plan.generated"
	AuditPlanExecuted     AuditCategory = "plan.executed"
)

// AuditEvent — одно размеченное событие аудита с correlation id и длительностью.
type AuditEvent struct {
	Category      AuditCategory
	CorrelationID string
	Message       string
	Duration      time.Duration
	Metadata      map[string]string
	OccurredAt    time.Time
}

// AuditSink — audit sink port (spec §6). Fire-and-forget: реализации не
// должны блокировать вызывающую сторону на медленном транспорте дольше,
// чем занимает постановка события в очередь на публикацию.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent)
}
