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
	FeatureFlags FeatureFlagsConfig
	Reservation  ReservationConfig
	Queue        QueueConfig
	Reclaimer    ReclaimerConfig
	Events       EventsConfig
	Kafka        KafkaConfig
	GCP          GCPConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Events.validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FLASHTICKET_APP_ENV" required:"true"`
	Port         string `envconfig:"FLASHTICKET_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FLASHTICKET_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"FLASHTICKET_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"FLASHTICKET_LOG_WARN_STACK" default:"false"`

	CORSOrigins     []string      `envconfig:"FLASHTICKET_CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"FLASHTICKET_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind       string `envconfig:"FLASHTICKET_SERVICE_KIND" default:"api"`
	InstanceID string `envconfig:"FLASHTICKET_INSTANCE_ID" default:"local"`
}

type DBConfig struct {
	DSN    string `envconfig:"FLASHTICKET_DB_DSN"`
	Driver string `envconfig:"FLASHTICKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FLASHTICKET_DB_HOST"`
	LegacyPort     int    `envconfig:"FLASHTICKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FLASHTICKET_DB_USER"`
	LegacyPassword string `envconfig:"FLASHTICKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"FLASHTICKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"FLASHTICKET_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"FLASHTICKET_SQLITE_PATH" default:"file:flashticket.db?cache=shared&_busy_timeout=5000"`

	MaxOpenConns    int           `envconfig:"FLASHTICKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FLASHTICKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FLASHTICKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FLASHTICKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FLASHTICKET_REDIS_URL"`
	Address      string        `envconfig:"FLASHTICKET_REDIS_ADDR"`
	Password     string        `envconfig:"FLASHTICKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"FLASHTICKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FLASHTICKET_REDIS_POOL_SIZE" default:"50"`
	MinIdleConns int           `envconfig:"FLASHTICKET_REDIS_MIN_IDLE_CONNS" default:"5"`
	DialTimeout  time.Duration `envconfig:"FLASHTICKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FLASHTICKET_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"FLASHTICKET_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FLASHTICKET_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FLASHTICKET_AUTO_MIGRATE" default:"false"`
}

// ReservationConfig holds the claim workflow timings.
type ReservationConfig struct {
	TTL               time.Duration `envconfig:"FLASHTICKET_RESERVATION_TTL" default:"5m"`
	LockWait          time.Duration `envconfig:"FLASHTICKET_RESERVATION_LOCK_WAIT" default:"3s"`
	LockLease         time.Duration `envconfig:"FLASHTICKET_RESERVATION_LOCK_LEASE" default:"5s"`
	LockRetryInterval time.Duration `envconfig:"FLASHTICKET_RESERVATION_LOCK_RETRY_INTERVAL" default:"25ms"`
	CounterTTL        time.Duration `envconfig:"FLASHTICKET_STOCK_COUNTER_TTL" default:"30m"`
}

type QueueConfig struct {
	AdmissionRatePerSecond int `envconfig:"FLASHTICKET_QUEUE_ADMISSION_RATE" default:"100"`
	MaxAdmitBatch          int `envconfig:"FLASHTICKET_QUEUE_MAX_ADMIT_BATCH" default:"1000"`
}

type ReclaimerConfig struct {
	Interval  time.Duration `envconfig:"FLASHTICKET_RECLAIMER_INTERVAL" default:"1m"`
	BatchSize int           `envconfig:"FLASHTICKET_RECLAIMER_BATCH_SIZE" default:"500"`
	LockTTL   time.Duration `envconfig:"FLASHTICKET_RECLAIMER_LOCK_TTL" default:"2m"`
}

type EventsConfig struct {
	Driver         string        `envconfig:"FLASHTICKET_EVENTS_DRIVER" default:"log"`
	Delivery       string        `envconfig:"FLASHTICKET_EVENTS_DELIVERY" default:"direct"`
	Topic          string        `envconfig:"FLASHTICKET_EVENTS_TOPIC" default:"reservation-events"`
	PublishTimeout time.Duration `envconfig:"FLASHTICKET_EVENTS_PUBLISH_TIMEOUT" default:"2s"`
}

func (e EventsConfig) validate(cfg Config) error {
	switch strings.ToLower(e.Driver) {
	case EventsDriverLog:
	case EventsDriverKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("%s is required when %s=%s", EnvKafkaBrokers, EnvEventsDriver, EventsDriverKafka)
		}
	case EventsDriverPubSub:
		if strings.TrimSpace(cfg.GCP.ProjectID) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvGCPProjectID, EnvEventsDriver, EventsDriverPubSub)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvEventsDriver, e.Driver)
	}
	switch strings.ToLower(e.Delivery) {
	case EventsDeliveryDirect, EventsDeliveryOutbox:
	default:
		return fmt.Errorf("unsupported %s %q", EnvEventsDelivery, e.Delivery)
	}
	return nil
}

// UsesOutbox reports whether lifecycle events are staged in the outbox table.
func (e EventsConfig) UsesOutbox() bool {
	return strings.EqualFold(e.Delivery, EventsDeliveryOutbox)
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"FLASHTICKET_KAFKA_BROKERS"`
	DLQTopic     string        `envconfig:"FLASHTICKET_KAFKA_DLQ_TOPIC"`
	Compression  string        `envconfig:"FLASHTICKET_KAFKA_COMPRESSION" default:"snappy"`
	RequiredAcks int           `envconfig:"FLASHTICKET_KAFKA_REQUIRED_ACKS" default:"-1"`
	MaxAttempts  int           `envconfig:"FLASHTICKET_KAFKA_MAX_ATTEMPTS" default:"3"`
	BatchTimeout time.Duration `envconfig:"FLASHTICKET_KAFKA_BATCH_TIMEOUT" default:"10ms"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FLASHTICKET_GCP_PROJECT_ID"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FLASHTICKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FLASHTICKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FLASHTICKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite || db.DSN != "" {
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
