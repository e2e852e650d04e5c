package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	"github.com/angelmondragon/bazaar-backend/api/routes"
	"github.com/angelmondragon/bazaar-backend/internal/categories"
	"github.com/angelmondragon/bazaar-backend/internal/listings"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/stores"
	"github.com/angelmondragon/bazaar-backend/internal/subscriptions"
	"github.com/angelmondragon/bazaar-backend/internal/uploads"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	stripewebhook "github.com/angelmondragon/bazaar-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/instance"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/queue"
	"github.com/angelmondragon/bazaar-backend/pkg/realtime"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
	"github.com/angelmondragon/bazaar-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	deps, hub, err := buildDeps(cfg, logg, dbClient, redisClient, stripeClient)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"instance":   instance.GetID("api"),
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(groupCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return hub.Relay(groupCtx, redisClient.Raw(), logg)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Shutdown(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func buildDeps(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, stripeClient *stripe.Client) (routes.Deps, *realtime.Hub, error) {
	gormDB := dbClient.DB()
	sideEffects := metrics.NewSideEffectMetrics(prometheus.DefaultRegisterer)

	storeRepo := stores.NewRepository(gormDB)
	storeService, err := stores.NewService(storeRepo, logg)
	if err != nil {
		return routes.Deps{}, nil, err
	}

	categoryService, err := categories.NewService(categories.NewRepository(gormDB), storeRepo, dbClient, logg)
	if err != nil {
		return routes.Deps{}, nil, err
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repository:       subscriptions.NewRepository(gormDB),
		TxRunner:         dbClient,
		Logger:           logg,
		TrialMaxListings: cfg.Listings.TrialMaxListings,
		TrialDays:        cfg.Listings.TrialDays,
	})
	if err != nil {
		return routes.Deps{}, nil, err
	}

	backend, err := queue.NewRedisBackend(redisClient.Raw())
	if err != nil {
		return routes.Deps{}, nil, err
	}
	uploadQueue, err := queue.New(queue.QueueImageUpload, backend, queue.Options{
		Attempts:      cfg.Queue.ImageUploadAttempts,
		Backoff:       cfg.Queue.ImageUploadBackoff,
		KeepCompleted: cfg.Queue.KeepCompleted,
		KeepFailed:    cfg.Queue.KeepFailed,
	}, metrics.NewQueueMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return routes.Deps{}, nil, err
	}
	uploadClient, err := uploads.NewClient(uploadQueue, cfg.Queue.ImageUploadDelay)
	if err != nil {
		return routes.Deps{}, nil, err
	}

	listingService, err := listings.NewService(listings.ServiceParams{
		Repository:      listings.NewRepository(gormDB),
		Categories:      categoryService,
		Gate:            subscriptionService,
		Profiles:        users.NewProfileRepository(gormDB),
		Outbox:          outbox.NewService(outbox.NewRepository(gormDB), logg),
		Uploads:         uploadClient,
		TxRunner:        dbClient,
		Logger:          logg,
		SideEffects:     sideEffects,
		MaxQueuedImages: cfg.Listings.MaxQueuedImages,
	})
	if err != nil {
		return routes.Deps{}, nil, err
	}

	userRepo := users.NewRepository(gormDB)
	userService, err := users.NewService(userRepo)
	if err != nil {
		return routes.Deps{}, nil, err
	}

	// Delivery channels run in cmd/worker; the API only reads and updates rows.
	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repository:  notifications.NewRepository(gormDB),
		Users:       userRepo,
		TxRunner:    dbClient,
		SideEffects: sideEffects,
		Logger:      logg,
		PublicURL:   cfg.App.PublicURL,
	})
	if err != nil {
		return routes.Deps{}, nil, err
	}

	drafts, err := payments.NewDraftStore(redisClient, cfg.Payments.DraftTTL)
	if err != nil {
		return routes.Deps{}, nil, err
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Drafts:      drafts,
		Stripe:      stripeClient,
		Listings:    listingService,
		Logger:      logg,
		AmountCents: cfg.Payments.ListingFeeCents,
		Currency:    cfg.Payments.Currency,
		DraftTTL:    cfg.Payments.DraftTTL,
	})
	if err != nil {
		return routes.Deps{}, nil, err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Subscriptions: subscriptionService,
		Payments:      paymentService,
		Logger:        logg,
	})
	if err != nil {
		return routes.Deps{}, nil, err
	}
	webhookGuard, err := stripewebhook.NewGuard(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		return routes.Deps{}, nil, err
	}

	hub := realtime.NewHub(logg)

	return routes.Deps{
		Pingers: map[string]controllers.Pinger{
			"database": dbClient.Ping,
			"redis":    redisClient.Ping,
		},
		Cache:          redisClient,
		Categories:     categoryService,
		Listings:       listingService,
		Notifications:  notificationService,
		Stores:         storeService,
		Subscriptions:  subscriptionService,
		Users:          userService,
		Payments:       paymentService,
		StripeWebhooks: webhookService,
		StripeVerifier: stripeClient,
		WebhookGuard:   webhookGuard,
		Realtime:       realtime.NewServer(hub, cfg.Realtime),
	}, hub, nil
}
