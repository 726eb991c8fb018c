package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"gradeboard/internal/backend"
	"gradeboard/internal/cli"
	apphttp "gradeboard/internal/http"
	applog "gradeboard/internal/log"
	"gradeboard/internal/session"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := backend.NewFactory(logger).CreateBackend(initCtx, backendConfig)
	initCancel()
	if err != nil {
		logger.Error("Failed to initialize data backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	sessions := session.NewStore(cfg.MaxSessions, cfg.SessionTTL)
	sessions.SetSecureCookies(cfg.SecureCookies)

	opts := apphttp.Options{
		MaxUploadBytes:   cfg.MaxUploadBytes,
		UploadsPerMinute: cfg.UploadsPerMin,
		DatasetCacheTTL:  cfg.DatasetCacheTTL,
		LoaderOptions:    cfg.LoaderOptions(),
		SourceName:       result.Backend.SourceName(),
		Logger:           logger.WithComponent(applog.ComponentHTTP),
	}

	// Events are optional; the dashboard runs without a broker.
	amqpClient, err := cli.ConnectAMQP(logger, cfg)
	if err != nil {
		logger.Warn("AMQP unavailable, dataset events disabled", applog.FieldError, err)
	}
	if amqpClient != nil {
		opts.Publisher = amqpClient
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, result.Backend, sessions, opts)
	if err != nil {
		logger.Error("Failed to create server", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err)
			}
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Warn("Backend cleanup error", applog.FieldError, err)
			}
		}
	})

	logger.Info("Starting gradeboard server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		applog.FieldSource, result.Backend.SourceName(),
		"amqp", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
