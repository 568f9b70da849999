package domain

import (
	"strconv"
	"time"
)

// AgentTaskStatus — статус жизненного цикла AgentTask.
//
// Жизненный цикл:
//
//	PendingPlanning → Planned → Executing → Completed (терминальный)
//
// Failed и Cancelled достижимы из любого нетерминального статуса.
type AgentTaskStatus string

const (
	AgentTaskPendingPlanning AgentTaskStatus = "pending_planning"
	AgentTaskPlanned         AgentTaskStatus = "planned"
	AgentTaskExecuting       AgentTaskStatus = "executing"
	AgentTaskCompleted       AgentTaskStatus = "completed"
	AgentTaskFailed          AgentTaskStatus = "failed"
	AgentTaskCancelled       AgentTaskStatus = "cancelled"
)

// IsTerminal возвращает true для Completed, Failed, Cancelled.
func (s AgentTaskStatus) IsTerminal() bool {
	switch s {
	case AgentTaskCompleted, AgentTaskFailed, AgentTaskCancelled:
		return true
	default:
		return false
	}
}

// PlanStep — один шаг плана реализации.
type PlanStep struct {
	ID      string
	Title   string
	Details string
	Done    bool
}

// Plan — агрегат плана, которым владеет AgentTask по значению.
//
// Plan заменяется целиком (see domain.AgentTask.Plan); единственное
// допустимое частичное изменение — флаг Done на отдельном шаге
// (PlanStep.Done), выполняемое вызывающей стороной перед тем как
// вызвать Update с новой копией плана.
type Plan struct {
	ProblemSummary string
	Constraints    []string
	Steps          []PlanStep
	Checklist      []string
	FileTargets    []string
}

// AgentTask — единица автоматизации уровня issue: планирование + выполнение.
//
// ID имеет формат "<owner>/<repo>/issues/<number>".
type AgentTask struct {
	ID             string
	InstallationID int64
	Owner          string
	Repo           string
	IssueNumber    int
	Status         AgentTaskStatus
	Plan           *Plan
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	Error          string
}

// Clone возвращает глубокую копию — Task Store никогда не должен отдавать
// читателям указатель на собственное внутреннее состояние.
func (t *AgentTask) Clone() *AgentTask {
	if t == nil {
		return nil
	}
	cp := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		cp.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		cp.CompletedAt = &v
	}
	if t.Plan != nil {
		p := *t.Plan
		if t.Plan.Constraints != nil {
			p.Constraints = append([]string(nil), t.Plan.Constraints...)
		}
		if t.Plan.Steps != nil {
			p.Steps = append([]PlanStep(nil), t.Plan.Steps...)
		}
		if t.Plan.Checklist != nil {
			p.Checklist = append([]string(nil), t.Plan.Checklist...)
		}
		if t.Plan.FileTargets != nil {
			p.FileTargets = append([]string(nil), t.Plan.FileTargets...)
		}
		cp.Plan = &p
	}
	return &cp
}

// TaskID формирует канонический идентификатор AgentTask из owner/repo/issue.
func TaskID(owner, repo string, issueNumber int) string {
	return owner + "/" + repo + "/issues/" + strconv.Itoa(issueNumber)
}
