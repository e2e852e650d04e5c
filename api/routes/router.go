package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/webhooks"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/categories"
	"github.com/angelmondragon/bazaar-backend/internal/listings"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/stores"
	"github.com/angelmondragon/bazaar-backend/internal/subscriptions"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// Cache is the Redis surface used by the idempotency and rate limit middleware.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(policy, subject string) string
}

type StripeVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

type WebhookGuard interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type SocketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

// Deps carries everything the HTTP surface calls into. Nil services answer
// with an internal error instead of panicking.
type Deps struct {
	Pingers map[string]controllers.Pinger
	Cache   Cache

	Categories    categories.Service
	Listings      listings.Service
	Notifications notifications.Service
	Stores        stores.Service
	Subscriptions subscriptions.Service
	Users         users.Service
	Payments      payments.Service

	StripeWebhooks webhookcontrollers.StripeWebhookService
	StripeVerifier StripeVerifier
	WebhookGuard   WebhookGuard

	Realtime SocketServer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Pingers, logg))
	})
	r.Handle("/metrics", promhttp.Handler())

	listingBody := cfg.Listings.MaxBodyBytes()
	intentPolicy := middleware.RateLimitPolicy{
		Name:   "listing-intents",
		Window: cfg.Payments.IntentRateWindow,
		Limit:  cfg.Payments.IntentRateLimit,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhooks, deps.StripeVerifier, deps.WebhookGuard, logg))

		r.With(middleware.SocketAuth(cfg.JWT, logg)).Get("/realtime", controllers.Realtime(deps.Realtime, logg))

		// Catalogue reads are public.
		r.Group(func(r chi.Router) {
			r.Get("/categories/{id}", controllers.GetCategory(deps.Categories, logg))
			r.Get("/categories/{id}/schema", controllers.CategorySchema(deps.Categories, logg))
			r.Get("/stores/{storeId}", controllers.GetStore(deps.Stores, logg))
			r.Get("/stores/{storeId}/categories", controllers.ListCategories(deps.Categories, logg))
			r.Get("/stores/{storeId}/categories/tree", controllers.CategoryTree(deps.Categories, logg))
			r.Get("/listings", controllers.ListListings(deps.Listings, logg))
			r.Get("/listings/{id}", controllers.GetListing(deps.Listings, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(deps.Cache, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(logg))
				r.Post("/categories", controllers.CreateCategory(deps.Categories, logg))
				r.Patch("/categories/{id}", controllers.UpdateCategory(deps.Categories, logg))
				r.Delete("/categories/{id}", controllers.DeleteCategory(deps.Categories, logg))
			})

			r.Post("/stores", controllers.CreateStore(deps.Stores, logg))
			r.Post("/stores/{storeId}/listings", controllers.CreateListing(deps.Listings, listingBody, logg))
			r.Get("/stores/{storeId}/notification-preferences", controllers.GetNotificationPreference(deps.Notifications, logg))
			r.Put("/stores/{storeId}/notification-preferences", controllers.UpdateNotificationPreference(deps.Notifications, logg))

			r.Patch("/listings/{id}", controllers.UpdateListing(deps.Listings, listingBody, logg))
			r.Delete("/listings/{id}", controllers.DeleteListing(deps.Listings, logg))
			r.Get("/uploads/{jobId}", controllers.UploadStatus(deps.Listings, logg))

			r.Get("/notifications", controllers.ListNotifications(deps.Notifications, logg))
			r.Get("/notifications/unread-count", controllers.UnreadNotificationCount(deps.Notifications, logg))
			r.Post("/notifications/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/notifications/bulk-delete", controllers.BulkDeleteNotifications(deps.Notifications, logg))
			r.Post("/notifications/{id}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Delete("/notifications/{id}", controllers.DeleteNotification(deps.Notifications, logg))

			r.Get("/me", controllers.Me(deps.Users, logg))
			r.Post("/me/push-tokens", controllers.RegisterPushToken(deps.Users, logg))
			r.Delete("/me/push-tokens", controllers.UnregisterPushToken(deps.Users, logg))

			r.Get("/subscriptions/me", controllers.CurrentSubscription(deps.Subscriptions, logg))
			r.Get("/subscriptions/eligibility", controllers.ListingEligibility(deps.Subscriptions, logg))
			r.Post("/subscriptions/trial", controllers.StartTrial(deps.Subscriptions, logg))

			r.With(middleware.RateLimit(intentPolicy, deps.Cache, logg)).
				Post("/payments/listing-intents", controllers.CreateListingIntent(deps.Payments, listingBody, logg))
			r.Post("/payments/confirm", controllers.ConfirmPayment(deps.Payments, logg))
		})
	})

	return r
}
