package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"

	"mailcast/internal/config"
	"mailcast/internal/httpserver"
	"mailcast/internal/logging"
)

func main() {
	cfg := config.LoadMockProvider()
	logging.Init("mock-provider", cfg.LogFormat, cfg.LogLevel)

	m := &mockProvider{
		failRate:     cfg.FailRate,
		latency:      cfg.Latency,
		webhookURL:   cfg.WebhookURL,
		webhookDelay: cfg.WebhookDelay,
		callbacks: resty.New().
			SetTimeout(5 * time.Second).
			SetRetryCount(3).
			SetRetryWaitTime(250 * time.Millisecond),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpserver.Logging(m.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("mock-provider shutdown", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	slog.Info("mock-provider listening", "port", cfg.Port, "fail_rate", cfg.FailRate, "webhook_url", cfg.WebhookURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("mock-provider server failed", "err", err)
		os.Exit(1)
	}
}
