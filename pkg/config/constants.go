package config

const (
	EnvPrefix = "DASHBOARD"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EnvAppEnv   = "DASHBOARD_APP_ENV"
	EnvPort     = "DASHBOARD_APP_PORT"
	EnvLogLevel = "DASHBOARD_LOG_LEVEL"

	EnvDBDSN    = "DASHBOARD_DB_DSN"
	EnvDBDriver = "DASHBOARD_DB_DRIVER"
	EnvDBHost   = "DASHBOARD_DB_HOST"
	EnvDBUser   = "DASHBOARD_DB_USER"
	EnvDBName   = "DASHBOARD_DB_NAME"

	EnvRedisURL = "DASHBOARD_REDIS_URL"

	EnvWebhookTolerance = "DASHBOARD_WEBHOOK_TOLERANCE"

	EnvPaymentsEnabled       = "DASHBOARD_PAYMENTS_ENABLED"
	EnvPaymentsWebhookSecret = "DASHBOARD_PAYMENTS_WEBHOOK_SECRET"
	EnvIdentityEnabled       = "DASHBOARD_IDENTITY_ENABLED"
	EnvIdentityWebhookSecret = "DASHBOARD_IDENTITY_WEBHOOK_SECRET"

	EnvPubSubAlertsTopic = "DASHBOARD_PUBSUB_ALERTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
