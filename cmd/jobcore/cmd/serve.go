// Package cmd содержит cobra-команды бинарника jobcore: serve запускает
// HTTP-поверхность (C9) и процессор (C6) в одном процессе; остальные
// команды (jobs, audit) — операторский клиент поверх internal/cli,
// смонтированный тем же деревом команд, как automata-cli у
// teacher-репозитория монтирует internal/cli.NewRunCmd и соседей.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sourceforge-bot/jobcore/internal/api"
	"github.com/sourceforge-bot/jobcore/internal/audit"
	"github.com/sourceforge-bot/jobcore/internal/config"
	"github.com/sourceforge-bot/jobcore/internal/dedup"
	"github.com/sourceforge-bot/jobcore/internal/dispatch"
	"github.com/sourceforge-bot/jobcore/internal/jobstore"
	"github.com/sourceforge-bot/jobcore/internal/mq"
	"github.com/sourceforge-bot/jobcore/internal/ports"
	"github.com/sourceforge-bot/jobcore/internal/processor"
	"github.com/sourceforge-bot/jobcore/internal/queue"
	"github.com/sourceforge-bot/jobcore/internal/repo"
	"github.com/sourceforge-bot/jobcore/internal/taskstore"
	"github.com/sourceforge-bot/jobcore/internal/telemetry"
	"github.com/sourceforge-bot/jobcore/internal/webhook"
)

// NewServeCmd создаёт команду "serve".
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the jobcore HTTP surface and processor in a single process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	logger := telemetry.SetupLogger()
	logger.Info("starting jobcore")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var pool *pgxpool.Pool
	var jobs jobstore.Store
	var tasks taskstore.Store

	if cfg.DatabaseURL != "" {
		pool, err = repo.NewPool(ctx)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		logger.Info("database connected")
		jobs = jobstore.NewPostgres(pool)
		tasks = taskstore.NewPostgres(pool)
	} else {
		logger.Warn("DB_URL not set, running with in-memory status and task stores")
		jobs = jobstore.NewMemory()
		tasks = taskstore.NewMemory()
	}

	var auditSink ports.AuditSink
	var mqConn *mq.Connection
	if cfg.AMQPURL != "" {
		mqConn, err = mq.NewConnection(cfg.AMQPURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, audit events will be logged only", "error", err)
			auditSink = audit.NewLoggingSink(logger)
		} else {
			defer mqConn.Close()
			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to set up audit topology", "error", err)
			}
			auditSink = audit.NewAMQPSink(mq.NewPublisher(mqConn, logger), logger)
			logger.Info("RabbitMQ audit sink connected")
		}
	} else {
		auditSink = audit.NewLoggingSink(logger)
	}

	registry := dispatch.NewHandlerRegistry()
	q := queue.New(cfg.MaxQueueSize)
	dedupSvc := dedup.New()

	dispatcher := dispatch.New(registry, q, dedupSvc, jobs, logger)

	proc := processor.New(processor.Config{
		Registry:       registry,
		Queue:          q,
		Dedup:          dedupSvc,
		Store:          jobs,
		Policy:         cfg.RetryPolicy,
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         logger,
	})
	dispatcher.SetCanceller(proc)
	proc.Start(ctx)
	defer proc.Stop()

	webhookHandler := webhook.New(webhook.Config{
		Tasks:           tasks,
		Jobs:            jobs,
		Dispatcher:      dispatcher,
		ActivationLabel: cfg.ActivationLabel,
		Logger:          logger,
	})

	probes := []api.Prober{}
	if pool != nil {
		probes = append(probes, api.ProberFunc{ProbeName: "database", Fn: func(ctx context.Context) error { return pool.Ping(ctx) }})
	}
	if mqConn != nil {
		probes = append(probes, api.ProberFunc{ProbeName: "rabbitmq", Fn: func(context.Context) error {
			if !mqConn.IsConnected() {
				return fmt.Errorf("not connected")
			}
			return nil
		}})
	}

	handler := api.NewHandler(api.Config{
		Dispatcher:    dispatcher,
		Jobs:          jobs,
		Webhook:       webhookHandler,
		Audit:         auditSink,
		WebhookSecret: cfg.WebhookSecret,
		Probes:        probes,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	go reportQueueDepth(ctx, q)

	server := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("jobcore stopped")
	return nil
}

// reportQueueDepth keeps the jobcore_queue_depth gauge current; the queue
// itself has no subscriber hook, so this polls at a cadence far below any
// scrape interval a deployment is likely to configure.
func reportQueueDepth(ctx context.Context, q *queue.Queue) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			telemetry.QueueDepth.Set(float64(q.Count()))
		}
	}
}
