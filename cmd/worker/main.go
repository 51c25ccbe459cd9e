package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailcast/internal/awsutil"
	"mailcast/internal/config"
	"mailcast/internal/domain"
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
	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, cfg.PoolOptions())
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	st := pg.New(db)

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("worker sqs client init failed", "err", err)
		os.Exit(1)
	}
	queueReachable := func(c context.Context) error {
		_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
			QueueUrl:       &cfg.CampaignQueueURL,
			AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
		})
		return err
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if err := queueReachable(startupCtx); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	provider, err := registry.New(cfg.RegistryOptions())
	if err != nil {
		slog.Error("worker provider init failed", "err", err)
		os.Exit(1)
	}
	pipeline := &sender.Pipeline{
		Store:   st,
		Tracker: &sender.Tracker{Store: st},
		Dispatcher: &sender.Dispatcher{
			Sender:      provider,
			Recorder:    st,
			AppURL:      cfg.AppURL,
			BatchSize:   cfg.BatchSize,
			Concurrency: cfg.BatchConcurrency,
		},
	}

	// A failed campaign must not be resurrected by redelivery, so jobs are
	// deleted whatever the pipeline returned.
	consumer := &sqsqueue.Consumer[sqsqueue.CampaignSendJob]{
		SQS:               sqsClient,
		QueueURL:          cfg.CampaignQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
		DeleteOnError:     true,
	}

	producer := &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.CampaignQueueURL}
	releaser := &service.DueReleaser{
		Store: st,
		Release: func(ctx context.Context, id string) error {
			return producer.EnqueueCampaignSend(ctx, sqsqueue.CampaignSendJob{CampaignID: id, RequestedAt: time.Now().UTC()})
		},
		Interval: cfg.SchedulePollInterval,
		Hold:     cfg.ScheduleReleaseHold,
	}

	health := httpserver.New(nil)
	health.Probes(
		func(c context.Context) error { return db.Ping(c) },
		queueReachable,
	)
	healthSrv := &http.Server{Addr: ":" + cfg.Port, Handler: health.Mux}
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()
	metricsErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker metrics listening", "port", cfg.MetricsPort)
		metricsErrCh <- metricsSrv.ListenAndServe()
	}()

	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker starting poll", "queue_url", cfg.CampaignQueueURL)
		pollErrCh <- consumer.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, job sqsqueue.CampaignSendJob) error {
			start := time.Now()
			slog.Info("worker job start", "campaign_id", job.CampaignID, "queued_for", time.Since(job.RequestedAt))
			// a started campaign runs to the end even once shutdown begins
			out, err := pipeline.Send(context.WithoutCancel(ctx), job.CampaignID)
			if errors.Is(err, domain.ErrInvalidTransition) {
				// another worker or a duplicate release got there first
				slog.Info("worker job skipped", "campaign_id", job.CampaignID, "err", err)
				return nil
			}
			slog.Info("worker job finish",
				"campaign_id", job.CampaignID,
				"sent", out.Sent,
				"batches", out.Batches,
				"duration", time.Since(start),
				"err", err,
			)
			return err
		})
	}()

	releaseDone := make(chan struct{})
	go func() {
		defer close(releaseDone)
		_ = releaser.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pollStopped := false
	select {
	case err := <-pollErrCh:
		pollStopped = true
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("worker poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case err := <-metricsErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	// in-flight campaigns keep sending; the poll loop waits for them
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	// a campaign cut off mid-send would be left in sending, so wait it out
	slog.Info("worker waiting for in-flight campaigns")
	if !pollStopped {
		<-pollErrCh
	}
	<-releaseDone
	slog.Info("worker stopped")
}
