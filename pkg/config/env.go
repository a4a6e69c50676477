package config

const (
	EnvPrefix = "FLASHTICKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "FLASHTICKET_APP_ENV"
	EnvPort   = "FLASHTICKET_APP_PORT"

	EnvDBDSN  = "FLASHTICKET_DB_DSN"
	EnvDBHost = "FLASHTICKET_DB_HOST"
	EnvDBUser = "FLASHTICKET_DB_USER"
	EnvDBName = "FLASHTICKET_DB_NAME"

	EnvRedisURL = "FLASHTICKET_REDIS_URL"

	EnvEventsDriver   = "FLASHTICKET_EVENTS_DRIVER"
	EnvEventsDelivery = "FLASHTICKET_EVENTS_DELIVERY"
	EnvKafkaBrokers   = "FLASHTICKET_KAFKA_BROKERS"
	EnvGCPProjectID   = "FLASHTICKET_GCP_PROJECT_ID"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EventsDriverKafka  = "kafka"
	EventsDriverPubSub = "pubsub"
	EventsDriverLog    = "log"

	EventsDeliveryDirect = "direct"
	EventsDeliveryOutbox = "outbox"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
