package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sourceforge-bot/jobcore/internal/domain"
	"github.com/sourceforge-bot/jobcore/internal/repo"
)

// Postgres — durable реализация Store поверх pgx, для развёртываний где
// job-статусы должны пережить рестарт процесса (spec §1 Non-goals:
// "status is persisted; pending work in the queue is not").
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres создаёт Postgres-хранилище статусов job.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Set делает upsert записи по job_id.
func (p *Postgres) Set(ctx context.Context, record *domain.JobStatusRecord) error {
	attemptsJSON, err := json.Marshal(record.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO job_status_records (
			job_id, type, source, status, created_at, started_at, completed_at,
			last_error, exception_type, retry_count, max_retries, attempts,
			idempotency_key, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (job_id) DO UPDATE SET
			type = EXCLUDED.type,
			source = EXCLUDED.source,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			last_error = EXCLUDED.last_error,
			exception_type = EXCLUDED.exception_type,
			retry_count = EXCLUDED.retry_count,
			max_retries = EXCLUDED.max_retries,
			attempts = EXCLUDED.attempts,
			idempotency_key = EXCLUDED.idempotency_key,
			metadata = EXCLUDED.metadata
	`
	_, err = p.pool.Exec(ctx, query,
		record.JobID,
		record.Type,
		nullString(record.Source),
		record.Status,
		record.CreatedAt,
		record.StartedAt,
		record.CompletedAt,
		nullString(record.LastError),
		nullString(record.ExceptionType),
		record.RetryCount,
		record.MaxRetries,
		attemptsJSON,
		nullString(record.IdempotencyKey),
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert job status: %w", err)
	}
	return nil
}

// Get возвращает запись по job_id.
func (p *Postgres) Get(ctx context.Context, jobID string) (*domain.JobStatusRecord, bool, error) {
	query := `
		SELECT job_id, type, source, status, created_at, started_at, completed_at,
		       last_error, exception_type, retry_count, max_retries, attempts,
		       idempotency_key, metadata
		FROM job_status_records
		WHERE job_id = $1
	`
	record, err := scanRecord(p.pool.QueryRow(ctx, query, jobID))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// List возвращает отфильтрованные, пагинированные записи, новые сначала.
func (p *Postgres) List(ctx context.Context, filter ListFilter) ([]*domain.JobStatusRecord, error) {
	query := `
		SELECT job_id, type, source, status, created_at, started_at, completed_at,
		       last_error, exception_type, retry_count, max_retries, attempts,
		       idempotency_key, metadata
		FROM job_status_records
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2 = '' OR type = $2)
		  AND ($3 = '' OR source = $3)
		ORDER BY created_at DESC
		OFFSET $4 LIMIT $5
	`

	var statusArg *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusArg = &s
	}

	take := filter.Take
	if take <= 0 {
		take = 100
	}

	rows, err := p.pool.Query(ctx, query, statusArg, filter.Type, filter.Source, filter.Skip, take)
	if err != nil {
		return nil, fmt.Errorf("list job status: %w", err)
	}
	defer rows.Close()

	var records []*domain.JobStatusRecord
	for rows.Next() {
		record, err := scanRecordFromRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ListByStatus — удобный частный случай List.
func (p *Postgres) ListByStatus(ctx context.Context, status domain.JobStatus, skip, take int) ([]*domain.JobStatusRecord, error) {
	return p.List(ctx, ListFilter{Status: &status, Skip: skip, Take: take})
}

// Metrics агрегирует текущее состояние через один проход по таблице.
func (p *Postgres) Metrics(ctx context.Context, queueDepth int) (domain.MetricsSnapshot, error) {
	snapshot := domain.MetricsSnapshot{
		GeneratedAt:   time.Now(),
		TotalByStatus: make(map[domain.JobStatus]int),
		ByType:        make(map[string]domain.TypeMetrics),
		QueueDepth:    queueDepth,
	}

	rows, err := p.pool.Query(ctx, `SELECT status, type FROM job_status_records`)
	if err != nil {
		return snapshot, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.JobStatus
		var jobType string
		if err := rows.Scan(&status, &jobType); err != nil {
			return snapshot, fmt.Errorf("scan metrics row: %w", err)
		}

		snapshot.TotalByStatus[status]++

		if status == domain.JobStatusDeadLetter {
			snapshot.DeadLetterTotal++
			continue
		}

		tm := snapshot.ByType[jobType]
		tm.Total++
		switch status {
		case domain.JobStatusCompleted:
			tm.Succeeded++
		case domain.JobStatusFailed:
			tm.Failed++
		}
		snapshot.ByType[jobType] = tm
	}

	return snapshot, rows.Err()
}

func scanRecord(row pgx.Row) (*domain.JobStatusRecord, error) {
	var record domain.JobStatusRecord
	var source, lastError, exceptionType, idempotencyKey *string
	var attemptsJSON, metadataJSON []byte

	err := row.Scan(
		&record.JobID,
		&record.Type,
		&source,
		&record.Status,
		&record.CreatedAt,
		&record.StartedAt,
		&record.CompletedAt,
		&lastError,
		&exceptionType,
		&record.RetryCount,
		&record.MaxRetries,
		&attemptsJSON,
		&idempotencyKey,
		&metadataJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job status: %w", err)
	}

	return finishScan(&record, source, lastError, exceptionType, idempotencyKey, attemptsJSON, metadataJSON)
}

func scanRecordFromRows(rows pgx.Rows) (*domain.JobStatusRecord, error) {
	var record domain.JobStatusRecord
	var source, lastError, exceptionType, idempotencyKey *string
	var attemptsJSON, metadataJSON []byte

	err := rows.Scan(
		&record.JobID,
		&record.Type,
		&source,
		&record.Status,
		&record.CreatedAt,
		&record.StartedAt,
		&record.CompletedAt,
		&lastError,
		&exceptionType,
		&record.RetryCount,
		&record.MaxRetries,
		&attemptsJSON,
		&idempotencyKey,
		&metadataJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("scan job status: %w", err)
	}

	return finishScan(&record, source, lastError, exceptionType, idempotencyKey, attemptsJSON, metadataJSON)
}

func finishScan(record *domain.JobStatusRecord, source, lastError, exceptionType, idempotencyKey *string, attemptsJSON, metadataJSON []byte) (*domain.JobStatusRecord, error) {
	if source != nil {
		record.Source = *source
	}
	if lastError != nil {
		record.LastError = *lastError
	}
	if exceptionType != nil {
		record.ExceptionType = *exceptionType
	}
	if idempotencyKey != nil {
		record.IdempotencyKey = *idempotencyKey
	}
	if attemptsJSON != nil {
		if err := json.Unmarshal(attemptsJSON, &record.Attempts); err != nil {
			return nil, fmt.Errorf("unmarshal attempts: %w", err)
		}
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return record, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
