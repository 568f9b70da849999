// Package dedup реализует C2 — сервис дедупликации по idempotency key.
//
// Регистрация атомарна: конкурентные вызыватели с одним и тем же ключом
// видят ровно один успешный Register. Пустой ключ никогда не регистрируется —
// вызывающая сторона (Dispatcher) решает, нужна ли дедупликация вообще.
package dedup

import "sync"

// Service хранит отображение idempotency key → id владеющего job.
type Service struct {
	mu      sync.Mutex
	holders map[string]string
}

// New создаёт пустой Service.
func New() *Service {
	return &Service{holders: make(map[string]string)}
}

// Register пытается закрепить key за jobID. Возвращает false, если key пуст
// или уже удерживается другим job — в этом случае состояние не меняется.
func (s *Service) Register(jobID, key string) bool {
	if key == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.holders[key]; ok && existing != jobID {
		return false
	}

	s.holders[key] = jobID
	return true
}

// GetInFlight возвращает id job, удерживающего key, если такой есть.
func (s *Service) GetInFlight(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.holders[key]
	return id, ok
}

// Unregister освобождает все ключи, удерживаемые jobID. Проверка владения —
// повторный вызов для уже освобождённого ключа является no-op.
func (s *Service) Unregister(jobID string) {
	if jobID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, holder := range s.holders {
		if holder == jobID {
			delete(s.holders, key)
		}
	}
}

// ClearAll удаляет все регистрации. Используется в тестах и при полном
// сбросе состояния процесса.
func (s *Service) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders = make(map[string]string)
}

// Count возвращает число активных регистраций — удобно для метрик/тестов.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holders)
}
