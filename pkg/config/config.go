package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	FeatureFlags  FeatureFlagsConfig
	Checkout      CheckoutConfig
	Payments      PaymentsConfig
	Cache         CacheConfig
	Cron          CronConfig
	Eventing      EventingConfig
	Outbox        OutboxConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Kafka         KafkaConfig
	BigQuery      BigQueryConfig
}

// Load reads every PARTYSHOP_* variable and reports all semantic problems
// together.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	err := multierr.Combine(
		cfg.DB.ensureDSN(),
		cfg.Checkout.validate(),
		cfg.Eventing.validate(cfg.Kafka),
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PARTYSHOP_APP_ENV" required:"true"`
	Port         string `envconfig:"PARTYSHOP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PARTYSHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PARTYSHOP_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"PARTYSHOP_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"PARTYSHOP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PARTYSHOP_DB_DSN"`
	Driver string `envconfig:"PARTYSHOP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PARTYSHOP_DB_HOST"`
	LegacyPort     int    `envconfig:"PARTYSHOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PARTYSHOP_DB_USER"`
	LegacyPassword string `envconfig:"PARTYSHOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"PARTYSHOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"PARTYSHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PARTYSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PARTYSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PARTYSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PARTYSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"PARTYSHOP_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PARTYSHOP_REDIS_URL"`
	Address      string        `envconfig:"PARTYSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"PARTYSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"PARTYSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PARTYSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PARTYSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PARTYSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PARTYSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PARTYSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
	LockTTL      time.Duration `envconfig:"PARTYSHOP_REDIS_LOCK_TTL" default:"10s"`
	LockWait     time.Duration `envconfig:"PARTYSHOP_REDIS_LOCK_WAIT" default:"3s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PARTYSHOP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PARTYSHOP_JWT_ISSUER" default:"partyshop"`
	ExpirationMinutes int    `envconfig:"PARTYSHOP_JWT_EXPIRATION_MINUTES" default:"10080"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PARTYSHOP_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PARTYSHOP_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PARTYSHOP_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PARTYSHOP_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PARTYSHOP_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"PARTYSHOP_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"15m"`
	LoginEmailLimit    int           `envconfig:"PARTYSHOP_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"10"`
	LoginIPLimit       int           `envconfig:"PARTYSHOP_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"10"`
	RegisterWindow     time.Duration `envconfig:"PARTYSHOP_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"15m"`
	RegisterEmailLimit int           `envconfig:"PARTYSHOP_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"10"`
	RegisterIPLimit    int           `envconfig:"PARTYSHOP_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"10"`
}

type RateLimitConfig struct {
	Window  time.Duration `envconfig:"PARTYSHOP_RATE_LIMIT_WINDOW" default:"15m"`
	IPLimit int           `envconfig:"PARTYSHOP_RATE_LIMIT_IP_LIMIT" default:"1000"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"PARTYSHOP_CORS_ALLOWED_ORIGINS" default:"*"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PARTYSHOP_AUTO_MIGRATE" default:"false"`
}

type CheckoutConfig struct {
	MinPerParticipant string        `envconfig:"PARTYSHOP_CHECKOUT_MIN_PER_PARTICIPANT" default:"100"`
	PreferenceExpiry  time.Duration `envconfig:"PARTYSHOP_CHECKOUT_PREFERENCE_EXPIRY" default:"24h"`
	Currency          string        `envconfig:"PARTYSHOP_CHECKOUT_CURRENCY" default:"BRL"`
}

// MinimumContribution returns the parsed per-participant floor.
func (c CheckoutConfig) MinimumContribution() decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(c.MinPerParticipant))
	if err != nil {
		return decimal.NewFromInt(DefaultMinPerParticipant)
	}
	return value
}

func (c CheckoutConfig) validate() error {
	raw := strings.TrimSpace(c.MinPerParticipant)
	if raw == "" {
		return nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvCheckoutMinPerParticipant, err)
	}
	if value.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvCheckoutMinPerParticipant)
	}
	return nil
}

type PaymentsConfig struct {
	AccessToken string        `envconfig:"PARTYSHOP_SQUARE_ACCESS_TOKEN"`
	Env         string        `envconfig:"PARTYSHOP_SQUARE_ENV" default:"sandbox"`
	LocationID  string        `envconfig:"PARTYSHOP_SQUARE_LOCATION_ID"`
	RedirectURL string        `envconfig:"PARTYSHOP_SQUARE_REDIRECT_URL"`
	BaseURL     string        `envconfig:"PARTYSHOP_SQUARE_BASE_URL"`
	Timeout     time.Duration `envconfig:"PARTYSHOP_PAYMENTS_TIMEOUT" default:"5s"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (p PaymentsConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type CacheConfig struct {
	Size int           `envconfig:"PARTYSHOP_CACHE_SIZE" default:"1024"`
	TTL  time.Duration `envconfig:"PARTYSHOP_CACHE_TTL" default:"5m"`
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"PARTYSHOP_CRON_INTERVAL" default:"15m"`
	JobTimeout         time.Duration `envconfig:"PARTYSHOP_CRON_JOB_TIMEOUT"`
	GuestRetentionDays int           `envconfig:"PARTYSHOP_CRON_GUEST_RETENTION_DAYS" default:"30"`
	CategoriesCacheTTL time.Duration `envconfig:"PARTYSHOP_CRON_CATEGORIES_TTL" default:"15m"`
}

type EventingConfig struct {
	Broker               string        `envconfig:"PARTYSHOP_EVENTING_BROKER" default:"pubsub"`
	OutboxIdempotencyTTL time.Duration `envconfig:"PARTYSHOP_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

func (e *EventingConfig) validate(kafka KafkaConfig) error {
	e.Broker = strings.ToLower(strings.TrimSpace(e.Broker))
	switch e.Broker {
	case BrokerPubSub:
		return nil
	case BrokerKafka:
		if len(kafka.Brokers) == 0 {
			return fmt.Errorf("%s is required when %s=%s", EnvKafkaBrokers, EnvEventingBroker, BrokerKafka)
		}
		return nil
	}
	return fmt.Errorf("%s must be %q or %q, got %q", EnvEventingBroker, BrokerPubSub, BrokerKafka, e.Broker)
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PARTYSHOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PARTYSHOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PARTYSHOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"PARTYSHOP_OUTBOX_RETENTION_DAYS" default:"30"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PARTYSHOP_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PARTYSHOP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PARTYSHOP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"PARTYSHOP_PUBSUB_ORDERS_TOPIC" default:"partyshop-order-events"`
	OrdersSubscription string `envconfig:"PARTYSHOP_PUBSUB_ORDERS_SUBSCRIPTION" default:"partyshop-order-events-analytics"`
}

type KafkaConfig struct {
	Brokers       []string      `envconfig:"PARTYSHOP_KAFKA_BROKERS"`
	OrdersTopic   string        `envconfig:"PARTYSHOP_KAFKA_ORDERS_TOPIC" default:"order.events"`
	ConsumerGroup string        `envconfig:"PARTYSHOP_KAFKA_CONSUMER_GROUP" default:"partyshop-analytics"`
	WriteTimeout  time.Duration `envconfig:"PARTYSHOP_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"PARTYSHOP_BIGQUERY_DATASET" default:"partyshop"`
	OrderEventsTable string `envconfig:"PARTYSHOP_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
	InsertBatchSize  int    `envconfig:"PARTYSHOP_BIGQUERY_INSERT_BATCH_SIZE" default:"1"`
	InsertRetries    uint64 `envconfig:"PARTYSHOP_BIGQUERY_INSERT_RETRIES" default:"2"`
}

// ensureDSN assembles a postgres URL from the discrete PARTYSHOP_DB_* parts
// when no DSN is given.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	parts := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	var missing []string
	for _, env := range legacyDBEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.LegacyUser),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacyPassword != "" {
		u.User = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	if db.LegacySSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}
