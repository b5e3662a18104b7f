package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaxingest/internal/config"
	"vaxingest/internal/types"
)

func validDBConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Endpoint:       "db.internal",
		Name:           "vaccines",
		User:           "ingest",
		Password:       types.SecretString("p@ss word;host=evil"),
		Port:           6543,
		ConnectTimeout: 3 * time.Second,
	}
}

func TestConnector_BuildsConfigFieldByField(t *testing.T) {
	var got *pgx.ConnConfig
	conn := &fakeConn{mockDBTX: new(mockDBTX)}
	c := NewConnector(validDBConfig(), nil, WithDialer(func(_ context.Context, cfg *pgx.ConnConfig) (Conn, error) {
		got = cfg
		return conn, nil
	}))

	opened, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Same(t, conn, opened)

	require.NotNil(t, got)
	assert.Equal(t, "db.internal", got.Host)
	assert.Equal(t, uint16(6543), got.Port)
	assert.Equal(t, "vaccines", got.Database)
	assert.Equal(t, "ingest", got.User)
	assert.Equal(t, "p@ss word;host=evil", got.Password)
	assert.Equal(t, 3*time.Second, got.ConnectTimeout)
	for _, fb := range got.Fallbacks {
		assert.Equal(t, "db.internal", fb.Host)
	}
}

func TestConnector_MissingSettings(t *testing.T) {
	cfg := validDBConfig()
	cfg.User = ""
	cfg.Password = ""

	dialed := false
	c := NewConnector(cfg, nil, WithDialer(func(context.Context, *pgx.ConnConfig) (Conn, error) {
		dialed = true
		return nil, nil
	}))

	_, err := c.Connect(context.Background())
	assert.Equal(t, types.ErrCodeConfigMissingSetting, types.CodeOf(err))
	assert.False(t, dialed)

	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, config.ErrMissingEnv, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "AWS_RDS_USERNAME")
	assert.Contains(t, cfgErr.Message, "AWS_RDS_PASSWORD")
}

func TestConnector_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	dials := 0
	c := NewConnector(validDBConfig(), nil, WithDialer(func(context.Context, *pgx.ConnConfig) (Conn, error) {
		dials++
		return nil, errors.New("connection refused")
	}))

	for i := 0; i < breakerTripAfter; i++ {
		_, err := c.Connect(context.Background())
		assert.Equal(t, types.ErrCodeUpstreamDatabase, types.CodeOf(err))
	}
	assert.Equal(t, breakerTripAfter, dials)

	_, err := c.Connect(context.Background())
	assert.Equal(t, types.ErrCodeUpstreamDatabase, types.CodeOf(err))
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, breakerTripAfter, dials, "open breaker must not dial")
}
