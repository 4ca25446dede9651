// Package db opens the GORM connection shared by every repository and owns
// the transaction helper services run their writes through.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Client struct {
	conn *gorm.DB
}

// Pinger is the readiness surface health checks depend on.
type Pinger interface {
	Ping(ctx context.Context) error
}

func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database DSN is required")
	}
	driver := driverName(cfg.Driver)

	conn, err := gorm.Open(dialector(driver, cfg.DSN), &gorm.Config{
		Logger:                 queryLogger(ctx, logg, cfg),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", driver, err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":         driver,
			"max_open_conns": cfg.MaxOpenConns,
		}), "database connection established")
	}
	return &Client{conn: conn}, nil
}

// NewFromGorm wraps an already opened connection.
func NewFromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func driverName(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), DriverSQLite) {
		return DriverSQLite
	}
	return DriverPostgres
}

func dialector(driver, dsn string) gorm.Dialector {
	if driver == DriverSQLite {
		return sqlite.Open(dsn)
	}
	// Simple protocol keeps the pool usable behind pgbouncer in transaction mode.
	return postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
}

// queryLogger only surfaces slow statements. GORM's own error logging stays
// off because repositories already wrap and log their failures.
func queryLogger(ctx context.Context, logg *logger.Logger, cfg config.DBConfig) gormlogger.Interface {
	if logg == nil || cfg.SlowQuery <= 0 {
		return gormlogger.Discard
	}
	return gormlogger.New(slowQueryWriter{ctx: ctx, logg: logg}, gormlogger.Config{
		SlowThreshold:             cfg.SlowQuery,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
		Colorful:                  false,
	})
}

// slowQueryWriter adapts GORM's printf logger onto the structured logger.
type slowQueryWriter struct {
	ctx  context.Context
	logg *logger.Logger
}

func (w slowQueryWriter) Printf(format string, args ...any) {
	w.logg.Warn(w.logg.WithField(w.ctx, "gorm", fmt.Sprintf(format, args...)), "db.slow_query")
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction. A returned error or a panic rolls back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
