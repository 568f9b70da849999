package dispatch

import (
	"fmt"
	"sync"

	"github.com/sourceforge-bot/jobcore/internal/ports"
)

// HandlerRegistry индексирует ports.JobHandler по их заявленному типу.
// Разделяется между Dispatcher (проверка "есть ли обработчик" при
// диспетчеризации) и Processor (собственно вызов Execute), как
// worker.Registry у teacher-репозитория разделяется между циклом воркера
// и тем, что его населяет при старте.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ports.JobHandler
}

// NewHandlerRegistry создаёт пустой реестр обработчиков.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]ports.JobHandler)}
}

// Register индексирует handler по JobType(). Повторная регистрация одного
// типа — ошибка конфигурации (spec §4.5).
func (r *HandlerRegistry) Register(handler ports.JobHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobType := handler.JobType()
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerAlreadyRegistered, jobType)
	}
	r.handlers[jobType] = handler
	return nil
}

// Get возвращает handler для типа, либо (nil, false).
func (r *HandlerRegistry) Get(jobType string) (ports.JobHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}
