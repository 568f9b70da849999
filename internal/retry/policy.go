// Package retry реализует чистые функции вычисления retry-политики (C1).
//
// NextDelay и ShouldRetry не держат состояния и не обращаются к хранилищу —
// они принимают всё необходимое параметрами, что делает их тривиально
// тестируемыми без моков. Процессор (internal/processor) — единственный
// вызывающий код в репозитории.
package retry

import (
	"math"
	"math/rand"

	"github.com/sourceforge-bot/jobcore/internal/domain"
)

// NextDelay возвращает задержку перед указанной (0-based) попыткой retry.
//
// retryCount=0 — задержка перед первым retry. Возвращает 0, если политика
// выключена. Результат всегда неотрицателен.
func NextDelay(policy domain.RetryPolicy, retryCount int) int64 {
	return NextDelayRand(policy, retryCount, rand.Float64)
}

// NextDelayRand — версия NextDelay с внешним источником случайности для
// детерминированных тестов jitter-границ.
func NextDelayRand(policy domain.RetryPolicy, retryCount int, randFloat func() float64) int64 {
	if !policy.Enabled {
		return 0
	}

	base := float64(policy.BaseDelay.Milliseconds())
	var delay float64

	switch policy.Strategy {
	case domain.BackoffLinear:
		delay = base * float64(retryCount+1)
	case domain.BackoffExponential:
		delay = base * math.Pow(2, float64(retryCount))
	default: // domain.BackoffConstant и любое нераспознанное значение
		delay = base
	}

	if policy.MaxDelay > 0 {
		maxMs := float64(policy.MaxDelay.Milliseconds())
		if delay > maxMs {
			delay = maxMs
		}
	}

	jitterSpan := policy.MaxJitterFactor - policy.MinJitterFactor
	f := policy.MinJitterFactor
	if jitterSpan > 0 {
		f += randFloat() * jitterSpan
	}

	result := math.Round(delay * (1 + f))
	if result < 0 {
		result = 0
	}
	return int64(result)
}

// ShouldRetry реализует spec §4.1: retry только если политика включена,
// есть остаток бюджета (retryCount < maxRetries) и handler явно сигнализировал
// retryability. retryCount == maxRetries возвращает false — бюджет исчерпан.
func ShouldRetry(policy domain.RetryPolicy, retryCount, maxRetries int, handlerSignaledRetry bool) bool {
	if !policy.Enabled {
		return false
	}
	if retryCount >= maxRetries {
		return false
	}
	return handlerSignaledRetry
}
