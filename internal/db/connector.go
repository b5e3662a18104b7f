package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sony/gobreaker/v2"

	"vaxingest/internal/config"
	"vaxingest/internal/types"
)

// Breaker tuning. The breaker lives as long as the Connector, which in the
// Lambda is the lifetime of a warm container.
const (
	breakerName           = "postgres-connect"
	breakerTripAfter      = 5
	breakerOpenTimeout    = 30 * time.Second
	applicationName       = "vaxingest"
	defaultConnectTimeout = 10 * time.Second
)

// Dialer opens a connection from a fully built config.
type Dialer func(ctx context.Context, cfg *pgx.ConnConfig) (Conn, error)

func pgxDialer(ctx context.Context, cfg *pgx.ConnConfig) (Conn, error) {
	return pgx.ConnectConfig(ctx, cfg)
}

// Connector opens one connection per call from DatabaseConfig.
type Connector struct {
	cfg     config.DatabaseConfig
	dial    Dialer
	breaker *gobreaker.CircuitBreaker[Conn]
	logger  *slog.Logger
}

// ConnectorOption is a functional option for configuring a Connector.
type ConnectorOption func(*Connector)

// WithDialer overrides how connections are opened. Intended for tests.
func WithDialer(d Dialer) ConnectorOption {
	return func(c *Connector) {
		c.dial = d
	}
}

// NewConnector creates a Connector with its own circuit breaker.
func NewConnector(cfg config.DatabaseConfig, logger *slog.Logger, opts ...ConnectorOption) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connector{cfg: cfg, dial: pgxDialer, logger: logger}
	c.breaker = gobreaker.NewCircuitBreaker[Conn](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("database circuit breaker changed state",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect validates the settings and opens a connection. Missing settings
// return a *config.ConfigError without touching the breaker. Dial failures
// and an open breaker both report ErrCodeUpstreamDatabase.
func (c *Connector) Connect(ctx context.Context) (Conn, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigMissingSetting, "database settings incomplete", err)
	}

	pgCfg, err := c.connConfig()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigMissingSetting, "invalid database settings", err)
	}

	conn, err := c.breaker.Execute(func() (Conn, error) {
		return c.dial(ctx, pgCfg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, types.NewAppError(types.ErrCodeUpstreamDatabase,
				"circuit breaker is open; database unavailable", err)
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamDatabase,
			fmt.Sprintf("failed to connect to %s:%d", c.cfg.Endpoint, c.port()), err)
	}
	return conn, nil
}

// connConfig builds the connection config field by field. Credentials are
// never formatted into a connection string.
func (c *Connector) connConfig() (*pgx.ConnConfig, error) {
	pgCfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, err
	}

	pgCfg.Host = c.cfg.Endpoint
	pgCfg.Port = c.port()
	pgCfg.Database = c.cfg.Name
	pgCfg.User = c.cfg.User
	pgCfg.Password = c.cfg.Password.Unmask()
	pgCfg.ConnectTimeout = c.cfg.ConnectTimeout
	if pgCfg.ConnectTimeout <= 0 {
		pgCfg.ConnectTimeout = defaultConnectTimeout
	}
	pgCfg.RuntimeParams["application_name"] = applicationName

	// ParseConfig derived fallbacks from libpq defaults; rebuild them for the
	// configured host so "prefer" still falls back to plaintext.
	pgCfg.Fallbacks = nil
	if pgCfg.TLSConfig != nil {
		pgCfg.TLSConfig.ServerName = c.cfg.Endpoint
		pgCfg.Fallbacks = []*pgconn.FallbackConfig{{Host: pgCfg.Host, Port: pgCfg.Port}}
	}
	return pgCfg, nil
}

func (c *Connector) port() uint16 {
	if c.cfg.Port == 0 {
		return 5432
	}
	return c.cfg.Port
}
