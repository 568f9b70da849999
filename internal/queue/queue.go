// Package queue реализует C4 — ограниченный потокобезопасный FIFO буфер
// job'ов, ожидающих обработки. В отличие от очереди на базе RabbitMQ у
// teacher-репозитория (internal/mq), это чисто in-process буферное
// хранилище: спецификация явно исключает распределённую и durable
// семантику очереди (Non-goals), так что канал Go — достаточная и более
// простая реализация, чем брокер сообщений.
package queue

import (
	"context"
	"sync"

	"github.com/sourceforge-bot/jobcore/internal/domain"
)

// Queue — ограниченный FIFO буфер job'ов.
type Queue struct {
	ch chan domain.Job

	closeOnce sync.Once
	closed    chan struct{}
}

// New создаёт Queue с заданной ёмкостью (MaxQueueSize).
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:     make(chan domain.Job, capacity),
		closed: make(chan struct{}),
	}
}

// Offer пытается поместить job в очередь без блокировки.
// Возвращает false, если очередь заполнена или уже закрыта.
func (q *Queue) Offer(job domain.Job) bool {
	select {
	case <-q.closed:
		return false
	default:
	}

	select {
	case q.ch <- job:
		return true
	default:
		return false
	}
}

// Take блокируется до появления job, отмены ctx или закрытия очереди.
func (q *Queue) Take(ctx context.Context) (domain.Job, bool) {
	// Приоритет отдаём уже буферизованным job'ам — иначе конкурентное
	// закрытие могло бы выбрать ветку <-q.closed в select'е ниже даже
	// когда в буфере есть готовая к выдаче работа.
	select {
	case job := <-q.ch:
		return job, true
	default:
	}

	select {
	case job := <-q.ch:
		return job, true
	case <-ctx.Done():
		return domain.Job{}, false
	case <-q.closed:
		// Продолжаем сливать буфер после close, пока он не опустеет —
		// иначе job'ы, уже принятые Offer, потерялись бы молча.
		select {
		case job := <-q.ch:
			return job, true
		default:
			return domain.Job{}, false
		}
	}
}

// Count возвращает текущее количество job'ов, ожидающих в буфере.
func (q *Queue) Count() int {
	return len(q.ch)
}

// Close будит все блокированные Take и запрещает дальнейшие Offer.
// Идемпотентен.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}
