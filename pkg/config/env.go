package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "PARTYSHOP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultMinPerParticipant = 100
)

const (
	EnvAppEnv   = "PARTYSHOP_APP_ENV"
	EnvPort     = "PARTYSHOP_APP_PORT"
	EnvLogLevel = "PARTYSHOP_LOG_LEVEL"

	EnvDBDSN  = "PARTYSHOP_DB_DSN"
	EnvDBHost = "PARTYSHOP_DB_HOST"
	EnvDBUser = "PARTYSHOP_DB_USER"
	EnvDBName = "PARTYSHOP_DB_NAME"

	EnvRedisURL = "PARTYSHOP_REDIS_URL"

	EnvJWTSecret  = "PARTYSHOP_JWT_SECRET"
	EnvJWTIssuer  = "PARTYSHOP_JWT_ISSUER"
	EnvJWTExpMins = "PARTYSHOP_JWT_EXPIRATION_MINUTES"

	EnvCheckoutMinPerParticipant = "PARTYSHOP_CHECKOUT_MIN_PER_PARTICIPANT"

	EnvEventingBroker = "PARTYSHOP_EVENTING_BROKER"
	EnvKafkaBrokers   = "PARTYSHOP_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

const (
	BrokerPubSub = "pubsub"
	BrokerKafka  = "kafka"
)
