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
	"mailcast/internal/config"
	"mailcast/internal/events"
	"mailcast/internal/httpserver"
	"mailcast/internal/logging"
	"mailcast/internal/observability"
	"mailcast/internal/providers/registry"
	sqsqueue "mailcast/internal/queue/sqs"
	"mailcast/internal/sender"
	"mailcast/internal/service"
	"mailcast/internal/store/pg"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, cfg.PoolOptions())
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	st := pg.New(db)

	observability.Register(prometheus.DefaultRegisterer)

	provider, err := registry.New(cfg.RegistryOptions())
	if err != nil {
		slog.Error("api provider init failed", "err", err)
		os.Exit(1)
	}

	tracker := &sender.Tracker{Store: st}
	pipeline := &sender.Pipeline{
		Store:   st,
		Tracker: tracker,
		Dispatcher: &sender.Dispatcher{
			Sender:      provider,
			Recorder:    st,
			AppURL:      cfg.AppURL,
			BatchSize:   cfg.BatchSize,
			Concurrency: cfg.BatchConcurrency,
		},
	}
	svc := &service.CampaignService{
		Store:     st,
		Pipeline:  pipeline,
		Scheduler: tracker,
	}
	if cfg.CampaignQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("api sqs client init failed", "err", err)
			os.Exit(1)
		}
		svc.Queue = &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.CampaignQueueURL}
	} else {
		slog.Warn("CAMPAIGN_QUEUE_URL not set, sends run in-process")
	}

	// with a queue the worker releases scheduled campaigns
	releaseDone := make(chan struct{})
	if svc.Queue == nil {
		releaser := &service.DueReleaser{
			Store: st,
			Release: func(ctx context.Context, id string) error {
				_, err := svc.RequestSend(ctx, id)
				return err
			},
			Interval: cfg.SchedulePollInterval,
			Hold:     cfg.ScheduleReleaseHold,
		}
		go func() {
			defer close(releaseDone)
			_ = releaser.Run(ctx)
		}()
	} else {
		close(releaseDone)
	}

	// pixel opens are rare enough to write straight through
	processor := &events.Processor{Store: st}

	s := httpserver.New(observability.APIRequests)
	(&httpserver.API{Svc: svc}).Register(s.Mux)
	(&httpserver.Tracker{Sink: processor.Apply}).Register(s.Mux)
	s.Probes(func(ctx context.Context) error { return db.Ping(ctx) })
	s.MetricsHandler()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	idle := make(chan struct{})
	go func() {
		defer close(idle)
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port, "provider", cfg.EmailProvider)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}

	// ListenAndServe returns as soon as Shutdown starts; in-process sends
	// outlive the request that started them
	<-idle
	<-releaseDone
	slog.Info("api waiting for in-process sends")
	svc.Wait()
	slog.Info("api stopped")
}
