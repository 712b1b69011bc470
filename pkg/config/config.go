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
	Rentals      RentalsConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Rentals.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LIBRARY_APP_ENV" required:"true"`
	Port         string `envconfig:"LIBRARY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LIBRARY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LIBRARY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LIBRARY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LIBRARY_DB_DSN"`
	Driver string `envconfig:"LIBRARY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LIBRARY_DB_HOST"`
	LegacyPort     int    `envconfig:"LIBRARY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LIBRARY_DB_USER"`
	LegacyPassword string `envconfig:"LIBRARY_DB_PASSWORD"`
	LegacyName     string `envconfig:"LIBRARY_DB_NAME"`
	LegacySSLMode  string `envconfig:"LIBRARY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LIBRARY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LIBRARY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Queries slower than this are logged at warn level; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"LIBRARY_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

// IsSQLite reports whether the record store is the embedded SQLite backend.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LIBRARY_REDIS_URL"`
	Address      string        `envconfig:"LIBRARY_REDIS_ADDR"`
	Password     string        `envconfig:"LIBRARY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LIBRARY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LIBRARY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LIBRARY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LIBRARY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LIBRARY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LIBRARY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LIBRARY_AUTO_MIGRATE" default:"false"`
}

type RentalsConfig struct {
	DefaultLoanDays int           `envconfig:"LIBRARY_RENTAL_DEFAULT_LOAN_DAYS" default:"14"`
	MaxLoanDays     int           `envconfig:"LIBRARY_RENTAL_MAX_LOAN_DAYS" default:"365"`
	IdempotencyTTL  time.Duration `envconfig:"LIBRARY_RENTAL_IDEMPOTENCY_TTL" default:"24h"`
}

func (r RentalsConfig) validate() error {
	if r.DefaultLoanDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvRentalDefaultLoanDays)
	}
	if r.MaxLoanDays < r.DefaultLoanDays {
		return fmt.Errorf("%s must be >= %s", EnvRentalMaxLoanDays, EnvRentalDefaultLoanDays)
	}
	return nil
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"LIBRARY_CRON_INTERVAL" default:"1h"`
	JobTimeout          time.Duration `envconfig:"LIBRARY_CRON_JOB_TIMEOUT" default:"5m"`
	OutboxRetentionDays int           `envconfig:"LIBRARY_OUTBOX_RETENTION_DAYS" default:"30"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LIBRARY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LIBRARY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LIBRARY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	RentalsTopic string `envconfig:"LIBRARY_PUBSUB_RENTALS_TOPIC" default:"library-rental-events"`
	// CatalogTopic receives book and borrower deletions; empty means RentalsTopic.
	CatalogTopic string `envconfig:"LIBRARY_PUBSUB_CATALOG_TOPIC"`
}

// CatalogTopicOrDefault resolves the topic for catalog events.
func (p PubSubConfig) CatalogTopicOrDefault() string {
	if t := strings.TrimSpace(p.CatalogTopic); t != "" {
		return t
	}
	return p.RentalsTopic
}

// Topics lists the distinct configured topics.
func (p PubSubConfig) Topics() []string {
	topics := []string{p.RentalsTopic}
	if catalog := p.CatalogTopicOrDefault(); catalog != p.RentalsTopic {
		topics = append(topics, catalog)
	}
	return topics
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LIBRARY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LIBRARY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LIBRARY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = DefaultSQLiteDSN
		}
		return nil
	}
	if db.DSN != "" {
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
