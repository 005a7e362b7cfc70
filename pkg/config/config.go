package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	FeatureFlags  FeatureFlagsConfig
	Webhooks      WebhookConfig
	Payments      PaymentsConfig
	Identity      IdentityConfig
	Notifications NotificationsConfig
	SMTP          SMTPConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Ledger        LedgerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that would let webhook deliveries through
// unverified. An enabled provider without a signing secret is fatal.
func (c *Config) Validate() error {
	if c.Payments.Enabled && strings.TrimSpace(c.Payments.WebhookSecret) == "" {
		return fmt.Errorf("%s is required when payments webhooks are enabled", EnvPaymentsWebhookSecret)
	}
	if c.Identity.Enabled && strings.TrimSpace(c.Identity.WebhookSecret) == "" {
		return fmt.Errorf("%s is required when identity webhooks are enabled", EnvIdentityWebhookSecret)
	}
	if !c.Payments.Enabled && !c.Identity.Enabled {
		return fmt.Errorf("at least one webhook provider must be enabled")
	}
	if c.Webhooks.Tolerance < 0 {
		return fmt.Errorf("webhook tolerance must be non-negative")
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"DASHBOARD_APP_ENV" required:"true"`
	Port         string `envconfig:"DASHBOARD_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DASHBOARD_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"DASHBOARD_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"DASHBOARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DASHBOARD_DB_DSN"`
	Driver string `envconfig:"DASHBOARD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DASHBOARD_DB_HOST"`
	LegacyPort     int    `envconfig:"DASHBOARD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DASHBOARD_DB_USER"`
	LegacyPassword string `envconfig:"DASHBOARD_DB_PASSWORD"`
	LegacyName     string `envconfig:"DASHBOARD_DB_NAME"`
	LegacySSLMode  string `envconfig:"DASHBOARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DASHBOARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DASHBOARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DASHBOARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DASHBOARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"DASHBOARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DASHBOARD_REDIS_ADDR"`
	Password     string        `envconfig:"DASHBOARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"DASHBOARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DASHBOARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DASHBOARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DASHBOARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DASHBOARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DASHBOARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DASHBOARD_AUTO_MIGRATE" default:"false"`
}

type WebhookConfig struct {
	Tolerance        time.Duration `envconfig:"DASHBOARD_WEBHOOK_TOLERANCE" default:"5m"`
	ReconcileTimeout time.Duration `envconfig:"DASHBOARD_WEBHOOK_RECONCILE_TIMEOUT" default:"15s"`
	MaxBodyBytes     int64         `envconfig:"DASHBOARD_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
}

type PaymentsConfig struct {
	Enabled       bool   `envconfig:"DASHBOARD_PAYMENTS_ENABLED" default:"true"`
	APIKey        string `envconfig:"DASHBOARD_PAYMENTS_API_KEY"`
	WebhookSecret string `envconfig:"DASHBOARD_PAYMENTS_WEBHOOK_SECRET"`
	Env           string `envconfig:"DASHBOARD_PAYMENTS_ENV" default:"test"`
}

// Environment returns the normalized payments environment (test/live).
func (p PaymentsConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "test"
	}
	return env
}

type IdentityConfig struct {
	Enabled       bool   `envconfig:"DASHBOARD_IDENTITY_ENABLED" default:"true"`
	WebhookSecret string `envconfig:"DASHBOARD_IDENTITY_WEBHOOK_SECRET"`
}

type NotificationsConfig struct {
	Workers       int           `envconfig:"DASHBOARD_NOTIFY_WORKERS" default:"4"`
	QueueSize     int           `envconfig:"DASHBOARD_NOTIFY_QUEUE_SIZE" default:"256"`
	SendTimeout   time.Duration `envconfig:"DASHBOARD_NOTIFY_SEND_TIMEOUT" default:"10s"`
	OperatorEmail string        `envconfig:"DASHBOARD_NOTIFY_OPERATOR_EMAIL"`
	DedupeTTL     time.Duration `envconfig:"DASHBOARD_NOTIFY_DEDUPE_TTL" default:"24h"`
}

type SMTPConfig struct {
	Host     string `envconfig:"DASHBOARD_SMTP_HOST"`
	Port     int    `envconfig:"DASHBOARD_SMTP_PORT" default:"465"`
	Username string `envconfig:"DASHBOARD_SMTP_USERNAME"`
	Password string `envconfig:"DASHBOARD_SMTP_PASSWORD"`
	From     string `envconfig:"DASHBOARD_SMTP_FROM"`
	FromName string `envconfig:"DASHBOARD_SMTP_FROM_NAME" default:"Dashboard Notifications"`
}

// Configured reports whether enough SMTP settings exist to send mail.
func (s SMTPConfig) Configured() bool {
	return strings.TrimSpace(s.Host) != "" && strings.TrimSpace(s.From) != ""
}

type GCPConfig struct {
	ProjectID       string `envconfig:"DASHBOARD_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"DASHBOARD_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	AlertsTopic string `envconfig:"DASHBOARD_PUBSUB_ALERTS_TOPIC"`
}

type LedgerConfig struct {
	RetentionDays int           `envconfig:"DASHBOARD_LEDGER_RETENTION_DAYS" default:"90"`
	CronInterval  time.Duration `envconfig:"DASHBOARD_CRON_INTERVAL" default:"24h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
