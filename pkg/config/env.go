package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "STOREFRONT_APP_ENV"
	EnvPort      = "STOREFRONT_APP_PORT"
	EnvDBDSN     = "STOREFRONT_DB_DSN"
	EnvDBHost    = "STOREFRONT_DB_HOST"
	EnvDBUser    = "STOREFRONT_DB_USER"
	EnvDBName    = "STOREFRONT_DB_NAME"
	EnvUseSQLite = "STOREFRONT_USE_SQLITE"
	EnvRedisURL  = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvCheckoutTaxRate          = "STOREFRONT_CHECKOUT_TAX_RATE"
	EnvCheckoutShippingFeeCents = "STOREFRONT_CHECKOUT_SHIPPING_FEE_CENTS"
	EnvStripeAPIKey             = "STOREFRONT_STRIPE_API_KEY"

	EnvClientAPIURL        = "STOREFRONT_CLIENT_API_URL"
	EnvClientToken         = "STOREFRONT_CLIENT_TOKEN"
	EnvClientTimeout       = "STOREFRONT_CLIENT_TIMEOUT"
	EnvClientSnapshotStore = "STOREFRONT_CLIENT_SNAPSHOT_STORE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
