// Package jobstore реализует C3 — хранилище статусов job: upsert, выборка
// с фильтрами и пагинацией, агрегированные метрики. Интерфейс Store
// абстрагирует реализацию хранения; Memory — потокобезопасная реализация
// в памяти процесса (используется в тестах и как реестр "живых" job'ов),
// Postgres — durable реализация поверх pgx, основанная на идиомах
// internal/repo teacher-репозитория.
package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sourceforge-bot/jobcore/internal/domain"
)

// ListFilter задаёт необязательные фильтры и пагинацию для List.
type ListFilter struct {
	Status *domain.JobStatus
	Type   string
	Source string
	Skip   int
	Take   int
}

// Store — контракт Status Store (C3).
type Store interface {
	// Set делает upsert записи по JobID; атомарен относительно читателей.
	Set(ctx context.Context, record *domain.JobStatusRecord) error

	// Get возвращает запись по id job, либо (nil, false).
	Get(ctx context.Context, jobID string) (*domain.JobStatusRecord, bool, error)

	// List возвращает отфильтрованные записи, отсортированные по CreatedAt
	// по убыванию (самые новые первыми).
	List(ctx context.Context, filter ListFilter) ([]*domain.JobStatusRecord, error)

	// ListByStatus — удобный частный случай List.
	ListByStatus(ctx context.Context, status domain.JobStatus, skip, take int) ([]*domain.JobStatusRecord, error)

	// Metrics агрегирует текущее состояние без инкрементальных счётчиков.
	Metrics(ctx context.Context, queueDepth int) (domain.MetricsSnapshot, error)
}

// Memory — потокобезопасное in-memory хранилище статусов job.
//
// Это основная реализация, используемая core-компонентами (Dispatcher,
// Processor) напрямую в тестах и в однопроцессных развёртываниях без
// Postgres; Postgres оборачивает тот же контракт для durable-хранения.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*domain.JobStatusRecord
}

// NewMemory создаёт пустое in-memory хранилище.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*domain.JobStatusRecord),
	}
}

// Set делает upsert записи. Копирует входящую запись, чтобы последующие
// мутации вызывающей стороны не повредили хранимое состояние (no torn
// reads of the attempts list, spec §4.3).
func (m *Memory) Set(_ context.Context, record *domain.JobStatusRecord) error {
	cp := record.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[cp.JobID] = cp
	return nil
}

// Get возвращает копию записи по id job.
func (m *Memory) Get(_ context.Context, jobID string) (*domain.JobStatusRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[jobID]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

// List возвращает отфильтрованные записи, отсортированные по CreatedAt
// по убыванию, с пагинацией skip/take.
func (m *Memory) List(_ context.Context, filter ListFilter) ([]*domain.JobStatusRecord, error) {
	m.mu.RLock()
	matches := make([]*domain.JobStatusRecord, 0, len(m.records))
	for _, record := range m.records {
		if !matchesFilter(record, filter) {
			continue
		}
		matches = append(matches, record.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	return paginate(matches, filter.Skip, filter.Take), nil
}

// ListByStatus — удобный частный случай List.
func (m *Memory) ListByStatus(ctx context.Context, status domain.JobStatus, skip, take int) ([]*domain.JobStatusRecord, error) {
	return m.List(ctx, ListFilter{Status: &status, Skip: skip, Take: take})
}

// Metrics агрегирует текущее состояние хранилища по запросу — без
// инкрементальных счётчиков, как того требует spec §4.3/§9.
func (m *Memory) Metrics(_ context.Context, queueDepth int) (domain.MetricsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := domain.MetricsSnapshot{
		GeneratedAt:   time.Now(),
		TotalByStatus: make(map[domain.JobStatus]int),
		ByType:        make(map[string]domain.TypeMetrics),
		QueueDepth:    queueDepth,
	}

	for _, record := range m.records {
		snapshot.TotalByStatus[record.Status]++

		if record.Status == domain.JobStatusDeadLetter {
			snapshot.DeadLetterTotal++
			continue // исключается из per-type success/failure, spec §4.3
		}

		tm := snapshot.ByType[record.Type]
		tm.Total++
		switch record.Status {
		case domain.JobStatusCompleted:
			tm.Succeeded++
		case domain.JobStatusFailed:
			tm.Failed++
		}
		snapshot.ByType[record.Type] = tm
	}

	return snapshot, nil
}

func matchesFilter(record *domain.JobStatusRecord, filter ListFilter) bool {
	if filter.Status != nil && record.Status != *filter.Status {
		return false
	}
	if filter.Type != "" && record.Type != filter.Type {
		return false
	}
	if filter.Source != "" && record.Source != filter.Source {
		return false
	}
	return true
}

func paginate[T any](items []T, skip, take int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if take > 0 && take < len(items) {
		items = items[:take]
	}
	return items
}
