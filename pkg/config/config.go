package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Queue        QueueConfig
	Listings     ListingsConfig
	SMTP         SMTPConfig
	Firebase     FirebaseConfig
	Realtime     RealtimeConfig
	Stripe       StripeConfig
	Payments     PaymentsConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BAZAAR_APP_ENV" required:"true"`
	Port         string `envconfig:"BAZAAR_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"BAZAAR_APP_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"BAZAAR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BAZAAR_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"BAZAAR_LOG_FORMAT" default:"json"`
	MetricsAddr  string `envconfig:"BAZAAR_METRICS_ADDR" default:":9090"`

	CORSAllowedOrigins []string `envconfig:"BAZAAR_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BAZAAR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BAZAAR_DB_DSN"`
	Driver string `envconfig:"BAZAAR_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BAZAAR_DB_HOST"`
	Port     int    `envconfig:"BAZAAR_DB_PORT" default:"5432"`
	User     string `envconfig:"BAZAAR_DB_USER"`
	Password string `envconfig:"BAZAAR_DB_PASSWORD"`
	Name     string `envconfig:"BAZAAR_DB_NAME"`
	SSLMode  string `envconfig:"BAZAAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZAAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZAAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZAAR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAZAAR_REDIS_ADDR"`
	Password     string        `envconfig:"BAZAAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZAAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZAAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZAAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZAAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZAAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZAAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BAZAAR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAZAAR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAZAAR_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite    bool `envconfig:"BAZAAR_USE_SQLITE" default:"false"`
	AutoMigrate  bool `envconfig:"BAZAAR_AUTO_MIGRATE" default:"false"`
	PushEnabled  bool `envconfig:"BAZAAR_FEATURE_PUSH" default:"true"`
	EmailEnabled bool `envconfig:"BAZAAR_FEATURE_EMAIL" default:"true"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"BAZAAR_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BAZAAR_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BAZAAR_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BAZAAR_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"BAZAAR_GCS_BUCKET_NAME"`
	PublicBaseURL string `envconfig:"BAZAAR_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

type PubSubConfig struct {
	ListingEventsTopic         string `envconfig:"BAZAAR_PUBSUB_LISTING_EVENTS_TOPIC" default:"bazaar-listing-events"`
	NotificationSubscription   string `envconfig:"BAZAAR_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"bazaar-listing-events-notifications"`
	NotificationMaxOutstanding int    `envconfig:"BAZAAR_PUBSUB_NOTIFICATION_MAX_OUTSTANDING" default:"20"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BAZAAR_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BAZAAR_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BAZAAR_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// QueueConfig tunes the Redis-backed job queues consumed by cmd/worker.
type QueueConfig struct {
	ImageUploadConcurrency int           `envconfig:"BAZAAR_QUEUE_IMAGE_UPLOAD_CONCURRENCY" default:"3"`
	ImageUploadAttempts    int           `envconfig:"BAZAAR_QUEUE_IMAGE_UPLOAD_ATTEMPTS" default:"3"`
	ImageUploadBackoff     time.Duration `envconfig:"BAZAAR_QUEUE_IMAGE_UPLOAD_BACKOFF" default:"2s"`
	ImageUploadDelay       time.Duration `envconfig:"BAZAAR_QUEUE_IMAGE_UPLOAD_DELAY" default:"2s"`
	EmailConcurrency       int           `envconfig:"BAZAAR_QUEUE_EMAIL_CONCURRENCY" default:"5"`
	EmailAttempts          int           `envconfig:"BAZAAR_QUEUE_EMAIL_ATTEMPTS" default:"5"`
	EmailBackoff           time.Duration `envconfig:"BAZAAR_QUEUE_EMAIL_BACKOFF" default:"1s"`
	KeepCompleted          int           `envconfig:"BAZAAR_QUEUE_KEEP_COMPLETED" default:"20"`
	KeepFailed             int           `envconfig:"BAZAAR_QUEUE_KEEP_FAILED" default:"5"`
	PollInterval           time.Duration `envconfig:"BAZAAR_QUEUE_POLL_INTERVAL" default:"1s"`
	Lease                  time.Duration `envconfig:"BAZAAR_QUEUE_LEASE" default:"30s"`
}

type ListingsConfig struct {
	TrialMaxListings int `envconfig:"BAZAAR_TRIAL_MAX_LISTINGS" default:"1"`
	TrialDays        int `envconfig:"BAZAAR_TRIAL_DAYS" default:"14"`
	MaxQueuedImages  int   `envconfig:"BAZAAR_MAX_QUEUED_IMAGES" default:"10"`
	MaxImageBytes    int64 `envconfig:"BAZAAR_MAX_IMAGE_BYTES" default:"8388608"`
}

// listingBodyOverhead covers the non-image fields of a listing draft.
const listingBodyOverhead = 256 << 10

// MaxBodyBytes caps listing write bodies: every queued image at full size,
// base64 encoded, plus room for the listing values.
func (c ListingsConfig) MaxBodyBytes() int64 {
	images := int64(max(c.MaxQueuedImages, 1))
	perImage := max(c.MaxImageBytes, 1<<20)
	return images*perImage*4/3 + listingBodyOverhead
}

type SMTPConfig struct {
	Host     string `envconfig:"BAZAAR_SMTP_HOST"`
	Port     int    `envconfig:"BAZAAR_SMTP_PORT" default:"587"`
	Username string `envconfig:"BAZAAR_SMTP_USERNAME"`
	Password string `envconfig:"BAZAAR_SMTP_PASSWORD"`
	From     string `envconfig:"BAZAAR_SMTP_FROM" default:"no-reply@bazaar.local"`
	FromName string `envconfig:"BAZAAR_SMTP_FROM_NAME" default:"Bazaar"`
}

// Enabled reports whether SMTP delivery has enough configuration to dial.
func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

type FirebaseConfig struct {
	CredentialsFile string `envconfig:"BAZAAR_FIREBASE_CREDENTIALS_FILE"`
	CredentialsJSON string `envconfig:"BAZAAR_FIREBASE_CREDENTIALS_JSON"`
	ProjectID       string `envconfig:"BAZAAR_FIREBASE_PROJECT_ID"`
}

type RealtimeConfig struct {
	AllowedOrigins []string      `envconfig:"BAZAAR_REALTIME_ALLOWED_ORIGINS"`
	PingInterval   time.Duration `envconfig:"BAZAAR_REALTIME_PING_INTERVAL" default:"54s"`
	SendBuffer     int           `envconfig:"BAZAAR_REALTIME_SEND_BUFFER" default:"64"`
}

type StripeConfig struct {
	APIKey string `envconfig:"BAZAAR_STRIPE_API_KEY"`
	Secret string `envconfig:"BAZAAR_STRIPE_SECRET"`
	Env    string `envconfig:"BAZAAR_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PaymentsConfig struct {
	ListingFeeCents int64         `envconfig:"BAZAAR_LISTING_FEE_CENTS" default:"999"`
	Currency        string        `envconfig:"BAZAAR_LISTING_FEE_CURRENCY" default:"usd"`
	DraftTTL        time.Duration `envconfig:"BAZAAR_LISTING_DRAFT_TTL" default:"30m"`

	// Per-user cap on listing payment intents.
	IntentRateWindow time.Duration `envconfig:"BAZAAR_LISTING_INTENT_RATE_WINDOW" default:"1m"`
	IntentRateLimit  int           `envconfig:"BAZAAR_LISTING_INTENT_RATE_LIMIT" default:"10"`
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"BAZAAR_CRON_INTERVAL" default:"1h"`
	LockTTL                   time.Duration `envconfig:"BAZAAR_CRON_LOCK_TTL" default:"10m"`
	NotificationRetentionDays int           `envconfig:"BAZAAR_NOTIFICATION_RETENTION_DAYS" default:"30"`
	OutboxRetentionDays       int           `envconfig:"BAZAAR_OUTBOX_RETENTION_DAYS" default:"7"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
