package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Idempotency  IdempotencyConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port           string   `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel       string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat      string   `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack   bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	AllowedOrigins []string `envconfig:"STOREFRONT_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" default:"storefront"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// AccessTTL returns the access token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`

	// SessionCheck disables the redis access-session lookup when false.
	SessionCheck bool `envconfig:"STOREFRONT_SESSION_CHECK" default:"true"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-order-events"`
	OrdersSubscription string `envconfig:"STOREFRONT_PUBSUB_ORDERS_SUBSCRIPTION"`
	PaymentsTopic      string `envconfig:"STOREFRONT_PUBSUB_PAYMENTS_TOPIC" default:"storefront-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives cmd/cron-worker.
type CronConfig struct {
	Interval        time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	LockTTL         time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"10m"`
	UnpaidOrderTTL  time.Duration `envconfig:"STOREFRONT_CRON_UNPAID_ORDER_TTL" default:"24h"`
	ExpiryBatchSize int           `envconfig:"STOREFRONT_CRON_EXPIRY_BATCH_SIZE" default:"100"`
	OutboxRetention time.Duration `envconfig:"STOREFRONT_CRON_OUTBOX_RETENTION" default:"720h"`
	DLQRetention    time.Duration `envconfig:"STOREFRONT_CRON_DLQ_RETENTION" default:"2160h"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"STOREFRONT_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
	SuccessURL    string `envconfig:"STOREFRONT_STRIPE_SUCCESS_URL" default:"http://localhost:3000/orders/{ORDER_ID}/success"`
	CancelURL     string `envconfig:"STOREFRONT_STRIPE_CANCEL_URL" default:"http://localhost:3000/orders/{ORDER_ID}/cancelled"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CheckoutConfig holds the pricing policy applied when an order is created.
type CheckoutConfig struct {
	Currency                 string `envconfig:"STOREFRONT_CHECKOUT_CURRENCY" default:"usd"`
	TaxRate                  string `envconfig:"STOREFRONT_CHECKOUT_TAX_RATE" default:"0"`
	ShippingFeeCents         int64  `envconfig:"STOREFRONT_CHECKOUT_SHIPPING_FEE_CENTS" default:"0"`
	FreeShippingMinimumCents int64  `envconfig:"STOREFRONT_CHECKOUT_FREE_SHIPPING_MIN_CENTS" default:"0"`
}

// TaxRateDecimal parses the configured tax rate. Validated by Load.
func (c CheckoutConfig) TaxRateDecimal() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (c CheckoutConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvCheckoutTaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1)", EnvCheckoutTaxRate)
	}
	if c.ShippingFeeCents < 0 || c.FreeShippingMinimumCents < 0 {
		return fmt.Errorf("shipping amounts must not be negative")
	}
	return nil
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"STOREFRONT_IDEMPOTENCY_TTL" default:"24h"`
}

// RateLimitConfig throttles writes per caller. A zero limit disables it.
type RateLimitConfig struct {
	Window      time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_WINDOW" default:"1m"`
	WriteLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_WRITES" default:"120"`
	RefundLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_REFUNDS" default:"10"`
}

const (
	SnapshotStoreMemory = "memory"
	SnapshotStoreFile   = "file"
	SnapshotStoreRedis  = "redis"
)

// ClientConfig configures a shopper process talking to the storefront API.
// It is loaded on its own so a client never needs server secrets.
type ClientConfig struct {
	APIBaseURL    string        `envconfig:"STOREFRONT_CLIENT_API_URL" default:"http://localhost:8080"`
	AccessToken   string        `envconfig:"STOREFRONT_CLIENT_TOKEN"`
	Timeout       time.Duration `envconfig:"STOREFRONT_CLIENT_TIMEOUT" default:"10s"`
	SnapshotStore string        `envconfig:"STOREFRONT_CLIENT_SNAPSHOT_STORE" default:"file"`
	SnapshotDir   string        `envconfig:"STOREFRONT_CLIENT_SNAPSHOT_DIR" default:".storefront"`
	SnapshotKey   string        `envconfig:"STOREFRONT_CLIENT_SNAPSHOT_KEY" default:"default"`
	SnapshotTTL   time.Duration `envconfig:"STOREFRONT_CLIENT_SNAPSHOT_TTL" default:"720h"`
	LogLevel      string        `envconfig:"STOREFRONT_LOG_LEVEL" default:"warn"`
	LogFormat     string        `envconfig:"STOREFRONT_CLIENT_LOG_FORMAT" default:"console"`
	Redis         RedisConfig
}

func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s must be an absolute url", EnvClientAPIURL)
	}
	switch cfg.SnapshotStore {
	case SnapshotStoreMemory, SnapshotStoreFile, SnapshotStoreRedis:
	default:
		return nil, fmt.Errorf("%s must be one of memory, file, redis", EnvClientSnapshotStore)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvClientTimeout)
	}
	return &cfg, nil
}

// LoadJWT reads only the token settings, for tools that mint access tokens.
func LoadJWT() (*JWTConfig, error) {
	var cfg JWTConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing jwt config: %w", err)
	}
	return &cfg, nil
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" || sqlite {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
