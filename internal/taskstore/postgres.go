package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sourceforge-bot/jobcore/internal/domain"
	"github.com/sourceforge-bot/jobcore/internal/repo"
)

// postgresUniqueViolation — код ошибки Postgres для нарушения unique/PK.
const postgresUniqueViolation = "23505"

// Postgres — durable реализация Store поверх pgx, основана на
// internal/repo/task_repo.go teacher-репозитория.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres создаёт Postgres-хранилище задач.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Get возвращает задачу по id.
func (p *Postgres) Get(ctx context.Context, id string) (*domain.AgentTask, bool, error) {
	query := `
		SELECT id, installation_id, owner, repo, issue_number, status, plan,
		       created_at, started_at, completed_at, error
		FROM agent_tasks
		WHERE id = $1
	`
	task, err := scanTask(p.pool.QueryRow(ctx, query, id))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// Create вставляет новую задачу; ErrAlreadyExists при конфликте id.
func (p *Postgres) Create(ctx context.Context, task *domain.AgentTask) error {
	planJSON, err := json.Marshal(task.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	query := `
		INSERT INTO agent_tasks (id, installation_id, owner, repo, issue_number, status, plan, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = p.pool.Exec(ctx, query,
		task.ID, task.InstallationID, task.Owner, task.Repo, task.IssueNumber,
		task.Status, planJSON, task.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert agent task: %w", err)
	}
	return nil
}

// Update делает upsert задачи — обновление несуществующего id создаёт его
// (spec §4.7, §9: намеренная affordance для webhook-обработчика).
func (p *Postgres) Update(ctx context.Context, task *domain.AgentTask) error {
	planJSON, err := json.Marshal(task.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	query := `
		INSERT INTO agent_tasks (
			id, installation_id, owner, repo, issue_number, status, plan,
			created_at, started_at, completed_at, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			installation_id = EXCLUDED.installation_id,
			owner = EXCLUDED.owner,
			repo = EXCLUDED.repo,
			issue_number = EXCLUDED.issue_number,
			status = EXCLUDED.status,
			plan = EXCLUDED.plan,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			error = EXCLUDED.error
	`
	_, err = p.pool.Exec(ctx, query,
		task.ID, task.InstallationID, task.Owner, task.Repo, task.IssueNumber,
		task.Status, planJSON, task.CreatedAt, task.StartedAt, task.CompletedAt,
		nullString(task.Error),
	)
	if err != nil {
		return fmt.Errorf("upsert agent task: %w", err)
	}
	return nil
}

// ListByInstallation возвращает задачи installation, пагинировано, от старых к новым.
func (p *Postgres) ListByInstallation(ctx context.Context, installationID int64, skip, take int) ([]*domain.AgentTask, error) {
	if take <= 0 {
		take = 100
	}

	query := `
		SELECT id, installation_id, owner, repo, issue_number, status, plan,
		       created_at, started_at, completed_at, error
		FROM agent_tasks
		WHERE installation_id = $1
		ORDER BY created_at ASC
		OFFSET $2 LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, installationID, skip, take)
	if err != nil {
		return nil, fmt.Errorf("list agent tasks by installation: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.AgentTask
	for rows.Next() {
		task, err := scanTaskFromRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*domain.AgentTask, error) {
	var task domain.AgentTask
	var planJSON []byte
	var errMsg *string

	err := row.Scan(
		&task.ID, &task.InstallationID, &task.Owner, &task.Repo, &task.IssueNumber,
		&task.Status, &planJSON, &task.CreatedAt, &task.StartedAt, &task.CompletedAt, &errMsg,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent task: %w", err)
	}
	return finishTaskScan(&task, planJSON, errMsg)
}

func scanTaskFromRows(rows pgx.Rows) (*domain.AgentTask, error) {
	var task domain.AgentTask
	var planJSON []byte
	var errMsg *string

	err := rows.Scan(
		&task.ID, &task.InstallationID, &task.Owner, &task.Repo, &task.IssueNumber,
		&task.Status, &planJSON, &task.CreatedAt, &task.StartedAt, &task.CompletedAt, &errMsg,
	)
	if err != nil {
		return nil, fmt.Errorf("scan agent task: %w", err)
	}
	return finishTaskScan(&task, planJSON, errMsg)
}

func finishTaskScan(task *domain.AgentTask, planJSON []byte, errMsg *string) (*domain.AgentTask, error) {
	if errMsg != nil {
		task.Error = *errMsg
	}
	if len(planJSON) > 0 && string(planJSON) != "null" {
		var plan domain.Plan
		if err := json.Unmarshal(planJSON, &plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
		task.Plan = &plan
	}
	return task, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
