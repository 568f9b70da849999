// Package config читает конфигурацию процесса из переменных окружения —
// тем же способом, каким cmd/automata-* у teacher-репозитория читает
// DB_URL/AMQP_URL через os.Getenv с значениями по умолчанию. Парсер
// конфигурационных файлов не вводится: teacher-репозиторий его не несёт.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sourceforge-bot/jobcore/internal/domain"
)

// Config — конфигурация процесса jobcore, читается один раз при старте.
type Config struct {
	HTTPPort string

	DatabaseURL string
	AMQPURL     string // пусто — Audit Sink работает в logging-only режиме

	MaxConcurrency int
	MaxQueueSize   int
	RetryPolicy    domain.RetryPolicy

	ActivationLabel string
	WebhookSecret   string // пусто отключает проверку подписи (spec §6)

	LogLevel  string
	LogFormat string
}

// Load читает Config из окружения процесса, подставляя значения по
// умолчанию из spec §6.
func Load() (Config, error) {
	maxConcurrency, err := getEnvInt("MAX_CONCURRENCY", 4)
	if err != nil {
		return Config{}, err
	}
	maxQueueSize, err := getEnvInt("MAX_QUEUE_SIZE", 1000)
	if err != nil {
		return Config{}, err
	}

	policy, err := retryPolicyFromEnv()
	if err != nil {
		return Config{}, err
	}

	return Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DatabaseURL:     os.Getenv("DB_URL"),
		AMQPURL:         os.Getenv("AMQP_URL"),
		MaxConcurrency:  maxConcurrency,
		MaxQueueSize:    maxQueueSize,
		RetryPolicy:     policy,
		ActivationLabel: getEnv("ACTIVATION_LABEL", "agent-go"),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}, nil
}

func retryPolicyFromEnv() (domain.RetryPolicy, error) {
	policy := domain.DefaultRetryPolicy()

	enabled, err := getEnvBool("RETRY_ENABLED", policy.Enabled)
	if err != nil {
		return domain.RetryPolicy{}, err
	}
	policy.Enabled = enabled

	maxRetries, err := getEnvInt("RETRY_MAX_RETRIES", policy.MaxRetries)
	if err != nil {
		return domain.RetryPolicy{}, err
	}
	policy.MaxRetries = maxRetries

	if strategy := os.Getenv("RETRY_STRATEGY"); strategy != "" {
		policy.Strategy = domain.BackoffStrategy(strategy)
	}

	baseDelayMs, err := getEnvInt("RETRY_BASE_DELAY_MS", int(policy.BaseDelay.Milliseconds()))
	if err != nil {
		return domain.RetryPolicy{}, err
	}
	policy.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond

	maxDelayMs, err := getEnvInt("RETRY_MAX_DELAY_MS", int(policy.MaxDelay.Milliseconds()))
	if err != nil {
		return domain.RetryPolicy{}, err
	}
	policy.MaxDelay = time.Duration(maxDelayMs) * time.Millisecond

	return policy, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
