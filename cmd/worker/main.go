package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/bazaar-backend/internal/listings"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/uploads"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/instance"
	"github.com/angelmondragon/bazaar-backend/pkg/idempotency"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/mailer"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/angelmondragon/bazaar-backend/pkg/pubsub"
	"github.com/angelmondragon/bazaar-backend/pkg/push"
	"github.com/angelmondragon/bazaar-backend/pkg/queue"
	"github.com/angelmondragon/bazaar-backend/pkg/realtime"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
	"github.com/angelmondragon/bazaar-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs client", err)
		}
	}()

	var pushSender push.Sender = push.NopSender{}
	if cfg.FeatureFlags.PushEnabled {
		fcm, err := push.NewFCMSender(ctx, cfg.Firebase, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap firebase messaging", err)
			os.Exit(1)
		}
		pushSender = fcm
	}

	queueMetrics := metrics.NewQueueMetrics(prometheus.DefaultRegisterer)
	backend, err := queue.NewRedisBackend(redisClient.Raw())
	if err != nil {
		logg.Error(ctx, "failed to create queue backend", err)
		os.Exit(1)
	}
	uploadQueue, err := queue.New(queue.QueueImageUpload, backend, queue.Options{
		Attempts:      cfg.Queue.ImageUploadAttempts,
		Backoff:       cfg.Queue.ImageUploadBackoff,
		KeepCompleted: cfg.Queue.KeepCompleted,
		KeepFailed:    cfg.Queue.KeepFailed,
	}, queueMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create image upload queue", err)
		os.Exit(1)
	}
	emailQueue, err := queue.New(queue.QueueEmail, backend, queue.Options{
		Attempts:      cfg.Queue.EmailAttempts,
		Backoff:       cfg.Queue.EmailBackoff,
		KeepCompleted: cfg.Queue.KeepCompleted,
		KeepFailed:    cfg.Queue.KeepFailed,
	}, queueMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create email queue", err)
		os.Exit(1)
	}

	var emailSender mailer.Sender
	if cfg.FeatureFlags.EmailEnabled {
		queued, err := mailer.NewQueueSender(emailQueue)
		if err != nil {
			logg.Error(ctx, "failed to create email queue sender", err)
			os.Exit(1)
		}
		emailSender = queued
	}

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repository:  notifications.NewRepository(dbClient.DB()),
		Users:       users.NewRepository(dbClient.DB()),
		TxRunner:    dbClient,
		Realtime:    realtime.NewRedisEmitter(redisClient.Raw()),
		Mailer:      emailSender,
		Push:        pushSender,
		SideEffects: metrics.NewSideEffectMetrics(prometheus.DefaultRegisterer),
		Logger:      logg,
		PublicURL:   cfg.App.PublicURL,
	})
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}

	uploadProcessor, err := uploads.NewProcessor(gcsClient, listings.NewRepository(dbClient.DB()), notificationService, logg)
	if err != nil {
		logg.Error(ctx, "failed to create upload processor", err)
		os.Exit(1)
	}
	uploadWorker, err := queue.NewWorker(uploadQueue, uploadProcessor, queue.WorkerOptions{
		Concurrency:  cfg.Queue.ImageUploadConcurrency,
		PollInterval: cfg.Queue.PollInterval,
		Lease:        cfg.Queue.Lease,
	}, logg)
	if err != nil {
		logg.Error(ctx, "failed to create image upload worker", err)
		os.Exit(1)
	}

	var emailWorker *queue.Worker
	if cfg.FeatureFlags.EmailEnabled {
		smtpSender, err := mailer.NewSMTPSender(cfg.SMTP)
		if err != nil {
			logg.Error(ctx, "failed to create smtp sender", err)
			os.Exit(1)
		}
		emailProcessor, err := mailer.NewProcessor(smtpSender, logg)
		if err != nil {
			logg.Error(ctx, "failed to create email processor", err)
			os.Exit(1)
		}
		emailWorker, err = queue.NewWorker(emailQueue, emailProcessor, queue.WorkerOptions{
			Concurrency:  cfg.Queue.EmailConcurrency,
			PollInterval: cfg.Queue.PollInterval,
			Lease:        cfg.Queue.Lease,
		}, logg)
		if err != nil {
			logg.Error(ctx, "failed to create email worker", err)
			os.Exit(1)
		}
	}

	tracker, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}
	consumer, err := notifications.NewConsumer(notificationService, pubsubClient.NotificationSubscription(), tracker, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notification consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Logger:               logg,
		UploadWorker:         uploadWorker,
		EmailWorker:          emailWorker,
		NotificationConsumer: consumer,
		Dependencies: map[string]pinger{
			"database": dbClient.Ping,
			"redis":    redisClient.Ping,
			"pubsub":   pubsubClient.Ping,
			"gcs":      gcsClient.Ping,
		},
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"instance":    instance.GetID("worker"),
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting worker")

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(gctx) })
	group.Go(func() error { return metrics.Serve(gctx, cfg.App.MetricsAddr, logg) })
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}
