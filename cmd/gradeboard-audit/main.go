// Command gradeboard-audit consumes dataset load events and keeps running
// totals of what was uploaded, logging a summary periodically.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"gradeboard/internal/cache"
	"gradeboard/internal/cli"
	applog "gradeboard/internal/log"
	"gradeboard/internal/storage"
	"gradeboard/internal/worker"
)

const (
	summaryInterval = 15 * time.Minute
	retryDelay      = 5 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentAudit)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the audit worker")
		os.Exit(1)
	}
	amqpClient, err := cli.ConnectAMQP(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	auditWorker := worker.NewAuditWorker()
	var repo *storage.SQLiteRepository
	if cfg.AuditStoreEnabled() {
		repo, err = storage.NewSQLiteRepository(cfg.AuditDBPath)
		if err != nil {
			logger.Error("Failed to open audit database", applog.FieldError, err, "path", cfg.AuditDBPath)
			os.Exit(1)
		}
		auditWorker.WithStore(repo)
		logStoredTotals(logger, repo)
	} else {
		logger.Info("Audit events kept in memory only")
	}
	caches := cache.NewManager()
	caches.Register(auditWorker.Cleaner())
	caches.StartCleanup(10 * time.Minute)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		caches.Stop()
		auditWorker.LogSummary(ctx)
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", applog.FieldError, err)
		}
		if repo != nil {
			logStoredTotals(logger, repo)
			if err := repo.Close(); err != nil {
				logger.Warn("Audit database close error", applog.FieldError, err)
			}
		}
	})

	go func() {
		ticker := time.NewTicker(summaryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				auditWorker.LogSummary(ctx)
			}
		}
	}()

	logger.Info("Starting gradeboard-audit", "queue", cfg.AMQPQueue)
	for {
		err := amqpClient.ConsumeDatasetLoaded(ctx, auditWorker.HandleDatasetLoaded)
		if ctx.Err() != nil {
			break
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed, retrying", applog.FieldError, err, "retry_in", retryDelay)
		}
		select {
		case <-ctx.Done():
		case <-time.After(retryDelay):
		}
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Audit worker stopped")
}

func logStoredTotals(logger *applog.Logger, repo *storage.SQLiteRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	totals, err := repo.Totals(ctx)
	if err != nil {
		logger.Warn("Failed to read audit totals", applog.FieldError, err)
		return
	}
	sources, err := repo.SourceCounts(ctx)
	if err != nil {
		logger.Warn("Failed to read audit sources", applog.FieldError, err)
		return
	}
	args := []any{
		"events", totals.Events,
		"sessions", totals.Sessions,
		applog.FieldStudents, totals.Students,
		"sources", len(sources),
	}
	if !totals.Last.IsZero() {
		args = append(args, "last_load", totals.Last.Format(time.RFC3339))
	}
	logger.Info("Stored audit totals", args...)
}
