package api

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Prober — именованная проверка готовности одной зависимости (БД, очередь).
type Prober interface {
	Name() string
	Check(ctx context.Context) error
}

// ProberFunc адаптирует функцию к интерфейсу Prober.
type ProberFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p ProberFunc) Name() string                   { return p.ProbeName }
func (p ProberFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

type probeResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type detailedHealthResponse struct {
	Status string        `json:"status"`
	Probes []probeResult `json:"probes"`
}

// Health отвечает 200 OK без дальнейшей проверки зависимостей — liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// HealthDetailed запускает каждую зарегистрированную пробу и агрегирует
// результат: 200 если все пробы здоровы, 503 если хотя бы одна упала.
func (h *Handler) HealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := detailedHealthResponse{Status: "ok"}
	allHealthy := true

	for _, p := range h.probes {
		result := probeResult{Name: p.Name(), Healthy: true}
		if err := p.Check(ctx); err != nil {
			result.Healthy = false
			result.Error = err.Error()
			allHealthy = false
		}
		resp.Probes = append(resp.Probes, result)
	}

	status := http.StatusOK
	if !allHealthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, resp)
}
