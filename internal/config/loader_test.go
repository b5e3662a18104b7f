package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSecretProvider is a configurable fake for SSM resolution.
type testSecretProvider struct {
	values     map[string]string
	err        error
	calledWith []string
	callCount  int
}

func (p *testSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.callCount++
	p.calledWith = append(p.calledWith, keys...)
	if p.err != nil {
		return nil, p.err
	}
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

// fakeEnv is an in-memory environment for exercising resolveSSMParams.
type fakeEnv map[string]string

func (e fakeEnv) deps() loaderDeps {
	return loaderDeps{
		lookupEnv: func(k string) (string, bool) { v, ok := e[k]; return v, ok },
		setEnv:    func(k, v string) error { e[k] = v; return nil },
		environ: func() []string {
			out := make([]string, 0, len(e))
			for k, v := range e {
				out = append(out, k+"="+v)
			}
			return out
		},
	}
}

func setDatabaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_RDS_ENDPOINT", "db.internal")
	t.Setenv("AWS_RDS_DBNAME", "vaccines")
	t.Setenv("AWS_RDS_USERNAME", "ingest")
	t.Setenv("AWS_RDS_PASSWORD", "hunter2")
}

func TestLoadConfigLocalSuccess(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("INGEST_BUCKET", "vaccine-reports")
	t.Setenv("INGEST_DLQ_URL", "https://sqs.us-east-1.amazonaws.com/123/ingest-dlq")
	setDatabaseEnv(t)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "vaccine-reports", cfg.Ingest.Bucket)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/ingest-dlq", cfg.Ingest.DeadLetterQueueURL)
	assert.Equal(t, "db.internal", cfg.Database.Endpoint)
	assert.Equal(t, "hunter2", cfg.Database.Password.Unmask())
	assert.Equal(t, uint16(5432), cfg.Database.Port)
	assert.Equal(t, 10*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, int64(16777216), cfg.Ingest.MaxObjectBytes)
	assert.Equal(t, "VaxIngest", cfg.Observability.MetricNamespace)
	assert.True(t, cfg.Observability.EnableMetrics)
	assert.Equal(t, "dev", cfg.Build.Version)
}

// Database settings are checked at connect time, so a cold start without them
// still succeeds.
func TestLoadConfig_MissingDatabaseSettingsDoesNotFail(t *testing.T) {
	t.Setenv("APP_ENV", "local")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Database.Endpoint)
}

func TestLoadConfig_InvalidEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "qa")

	_, err := LoadConfig(nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfig_InvalidDLQURL(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("INGEST_DLQ_URL", "not a url")

	_, err := LoadConfig(nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfig_ParsingError(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("DB_CONNECT_TIMEOUT", "ten seconds")

	_, err := LoadConfig(nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrParsing, cfgErr.Type)
}

func TestDatabaseConfigValidate_AllPresent(t *testing.T) {
	cfg := DatabaseConfig{Endpoint: "h", Name: "d", User: "u", Password: "p"}
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseConfigValidate_NamesMissingVariables(t *testing.T) {
	cfg := DatabaseConfig{Endpoint: "h", User: "u"}

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrMissingEnv, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "AWS_RDS_DBNAME")
	assert.Contains(t, cfgErr.Message, "AWS_RDS_PASSWORD")
	assert.NotContains(t, cfgErr.Message, "AWS_RDS_ENDPOINT")
}

func TestResolveSSMParams_InjectsResolvedValues(t *testing.T) {
	env := fakeEnv{
		"APP_ENV":                    "prod",
		"AWS_RDS_PASSWORD_SSM_PARAM": "/prod/vaxingest/rds/password",
	}
	provider := &testSecretProvider{values: map[string]string{
		"/prod/vaxingest/rds/password": "from-ssm",
	}}

	require.NoError(t, resolveSSMParams(provider, env.deps()))

	assert.Equal(t, "from-ssm", env["AWS_RDS_PASSWORD"])
	assert.Equal(t, 1, provider.callCount)
	assert.Equal(t, []string{"/prod/vaxingest/rds/password"}, provider.calledWith)
}

func TestResolveSSMParams_EnvironmentWins(t *testing.T) {
	env := fakeEnv{
		"AWS_RDS_PASSWORD":           "already-set",
		"AWS_RDS_PASSWORD_SSM_PARAM": "/prod/vaxingest/rds/password",
	}
	provider := &testSecretProvider{}

	require.NoError(t, resolveSSMParams(provider, env.deps()))

	assert.Equal(t, "already-set", env["AWS_RDS_PASSWORD"])
	assert.Zero(t, provider.callCount)
}

func TestResolveSSMParams_NilProvider(t *testing.T) {
	env := fakeEnv{"AWS_RDS_PASSWORD_SSM_PARAM": "/p"}

	err := resolveSSMParams(nil, env.deps())
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrSSMResolution, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "AWS_RDS_PASSWORD")
}

func TestResolveSSMParams_ProviderError(t *testing.T) {
	env := fakeEnv{"AWS_RDS_PASSWORD_SSM_PARAM": "/p"}
	boom := errors.New("throttled")

	err := resolveSSMParams(&testSecretProvider{err: boom}, env.deps())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestResolveSSMParams_MissingParameter(t *testing.T) {
	env := fakeEnv{
		"AWS_RDS_PASSWORD_SSM_PARAM": "/p",
		"AWS_RDS_USERNAME_SSM_PARAM": "/u",
	}
	provider := &testSecretProvider{values: map[string]string{"/u": "ingest"}}

	err := resolveSSMParams(provider, env.deps())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "AWS_RDS_PASSWORD"))
	assert.Equal(t, "ingest", env["AWS_RDS_USERNAME"])
}

func TestResolveSSMParams_NoBindingsIsNoop(t *testing.T) {
	env := fakeEnv{"AWS_RDS_ENDPOINT": "db", "EMPTY_SSM_PARAM": ""}
	provider := &testSecretProvider{}

	require.NoError(t, resolveSSMParams(provider, env.deps()))
	assert.Zero(t, provider.callCount)
}

func TestConfigErrorFormat(t *testing.T) {
	withCause := &ConfigError{Type: ErrParsing, Message: "bad", Err: errors.New("cause")}
	assert.Equal(t, "[PARSING_FAILED] bad: cause", withCause.Error())

	bare := &ConfigError{Type: ErrMissingEnv, Message: "missing"}
	assert.Equal(t, "[MISSING_ENV] missing", bare.Error())
}

func TestNewBuildInfoDefaults(t *testing.T) {
	info := NewBuildInfo()
	assert.Equal(t, BuildInfo{Version: "dev", Commit: "none", BuildTime: "unknown"}, info)
}
