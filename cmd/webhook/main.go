package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mailcast/internal/awsutil"
	"mailcast/internal/billing"
	"mailcast/internal/config"
	"mailcast/internal/events"
	"mailcast/internal/httpserver"
	"mailcast/internal/logging"
	"mailcast/internal/observability"
	"mailcast/internal/providers/sendgrid"
	sqsqueue "mailcast/internal/queue/sqs"
	"mailcast/internal/store/pg"
)

func main() {
	cfg := config.LoadWebhook()
	logging.Init("webhook", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, cfg.PoolOptions())
	if err != nil {
		slog.Error("webhook db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	st := pg.New(db)

	observability.Register(prometheus.DefaultRegisterer)

	wh := &httpserver.Webhook{ResendSecret: cfg.ResendWebhookSecret}

	if cfg.WebhookQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("webhook sqs client init failed", "err", err)
			os.Exit(1)
		}
		producer := &sqsqueue.WebhookProducer{SQS: sqsClient, QueueURL: cfg.WebhookQueueURL}
		wh.Sink = producer.Enqueue
	} else {
		slog.Warn("WEBHOOK_QUEUE_URL not set, events are applied inline")
		wh.Sink = (&events.Processor{Store: st}).Apply
	}

	if cfg.SendGridPublicKey != "" {
		verify, err := sendgrid.NewVerifier(cfg.SendGridPublicKey)
		if err != nil {
			slog.Error("webhook sendgrid public key invalid", "err", err)
			os.Exit(1)
		}
		wh.VerifySendGrid = verify
	}
	if cfg.StripeWebhookSecret != "" {
		wh.Billing = &billing.Service{Store: st, WebhookSecret: cfg.StripeWebhookSecret}
	}

	s := httpserver.New(observability.APIRequests)
	wh.Register(s.Mux)
	s.Probes(func(ctx context.Context) error { return db.Ping(ctx) })
	s.MetricsHandler()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("webhook shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("webhook listening", "port", cfg.Port,
		"sendgrid_verify", wh.VerifySendGrid != nil,
		"resend_verify", wh.ResendSecret != "",
		"stripe", wh.Billing != nil,
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("webhook server failed", "err", err)
		os.Exit(1)
	}
}
