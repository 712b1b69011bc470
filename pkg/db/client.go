package db

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

// Client wraps the shared GORM connection for either record store backend.
type Client struct {
	conn   *gorm.DB
	driver string
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the backend selected by cfg.Driver and applies pool settings.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	dialector, driver, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 queryLogger(logg, cfg),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", driver, err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	configurePool(sqlDB, driver, cfg)

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":         driver,
			"max_open_conns": sqlDB.Stats().MaxOpenConnections,
		}), "database connection established")
	}
	return &Client{conn: conn, driver: driver}, nil
}

// FromGorm wraps an already opened connection for tests and tooling that
// manage the connection lifecycle themselves.
func FromGorm(conn *gorm.DB) *Client {
	driver := config.DBDriverPostgres
	if conn != nil && conn.Dialector != nil && conn.Dialector.Name() == "sqlite" {
		driver = config.DBDriverSQLite
	}
	return &Client{conn: conn, driver: driver}
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, string, error) {
	switch {
	case cfg.IsSQLite():
		return sqlite.Open(cfg.DSN), config.DBDriverSQLite, nil
	case cfg.Driver == "" || cfg.Driver == config.DBDriverPostgres:
		return postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		}), config.DBDriverPostgres, nil
	}
	return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// configurePool applies cfg to sqlDB. SQLite allows one writer, so its pool
// is pinned to a single connection.
func configurePool(sqlDB *sql.DB, driver string, cfg config.DBConfig) {
	maxOpen := cfg.MaxOpenConns
	if driver == config.DBDriverSQLite {
		maxOpen = 1
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// queryLogger reports slow queries through the service logger. Without a
// logger or threshold GORM stays silent.
func queryLogger(logg *logger.Logger, cfg config.DBConfig) gormlogger.Interface {
	if logg == nil || cfg.SlowQueryThreshold <= 0 {
		return gormlogger.Discard
	}
	return gormlogger.New(slowQueryWriter{logg: logg}, gormlogger.Config{
		SlowThreshold:             cfg.SlowQueryThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})
}

type slowQueryWriter struct {
	logg *logger.Logger
}

func (w slowQueryWriter) Printf(format string, args ...any) {
	w.logg.Warn(context.Background(), fmt.Sprintf(format, args...))
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Driver reports the configured record store backend.
func (c *Client) Driver() string {
	return c.driver
}

// SQL returns the pooled database/sql handle.
func (c *Client) SQL() (*sql.DB, error) {
	return c.conn.DB()
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Exec runs a statement bound to ctx.
func (c *Client) Exec(ctx context.Context, query string, args ...any) *gorm.DB {
	return c.conn.WithContext(ctx).Exec(query, args...)
}

// Raw builds a raw query bound to ctx.
func (c *Client) Raw(ctx context.Context, query string, args ...any) *gorm.DB {
	return c.conn.WithContext(ctx).Raw(query, args...)
}

// WithTx runs fn in a transaction that commits when fn returns nil and rolls
// back on an error or panic.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
