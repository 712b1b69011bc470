package config

const EnvPrefix = "LIBRARY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	DefaultSQLiteDSN = "file:library.db?_fk=1"
)

const (
	EnvAppEnv   = "LIBRARY_APP_ENV"
	EnvPort     = "LIBRARY_APP_PORT"
	EnvLogLevel = "LIBRARY_LOG_LEVEL"

	EnvDBDSN    = "LIBRARY_DB_DSN"
	EnvDBDriver = "LIBRARY_DB_DRIVER"
	EnvDBHost   = "LIBRARY_DB_HOST"
	EnvDBPort   = "LIBRARY_DB_PORT"
	EnvDBUser   = "LIBRARY_DB_USER"
	EnvDBPass   = "LIBRARY_DB_PASSWORD"
	EnvDBName   = "LIBRARY_DB_NAME"

	EnvRedisURL = "LIBRARY_REDIS_URL"

	EnvRentalDefaultLoanDays = "LIBRARY_RENTAL_DEFAULT_LOAN_DAYS"
	EnvRentalMaxLoanDays     = "LIBRARY_RENTAL_MAX_LOAN_DAYS"

	EnvCronInterval        = "LIBRARY_CRON_INTERVAL"
	EnvCronJobTimeout      = "LIBRARY_CRON_JOB_TIMEOUT"
	EnvGCPProjectID        = "LIBRARY_GCP_PROJECT_ID"
	EnvPubSubRentalsTopic  = "LIBRARY_PUBSUB_RENTALS_TOPIC"
	EnvPubSubCatalogTopic  = "LIBRARY_PUBSUB_CATALOG_TOPIC"
	EnvOutboxRetentionDays = "LIBRARY_OUTBOX_RETENTION_DAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
