package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhouDavid/sentiment-stream/pkg/stream"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvKey, "")
	t.Setenv("SENTIMENT_KEY", "key-from-env")

	path := writeConfig(t, `
log_level: debug
credentials:
  token: file-token
  key: ${SENTIMENT_KEY}
stream:
  mode: stocks
  symbols: [AAPL, TSLA]
  backoff_max: 10s
rest:
  timeout: 5s
gateway:
  addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, stream.Credentials{Token: "file-token", Key: "key-from-env"}, cfg.StreamCredentials())
	assert.Equal(t, ModeStocks, cfg.Stream.Mode)
	assert.Equal(t, []string{"AAPL", "TSLA"}, cfg.Stream.Symbols)
	assert.Equal(t, stream.DefaultBaseURL, cfg.Stream.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Stream.PingInterval)
	assert.Equal(t, time.Second, cfg.Stream.BackoffMin)
	assert.Equal(t, 10*time.Second, cfg.Stream.BackoffMax)
	assert.Equal(t, 5*time.Second, cfg.REST.Timeout)
	assert.Equal(t, ":9090", cfg.Gateway.Addr)
}

func TestLoad_KeepsBareDollar(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvKey, "")
	t.Setenv("cd", "expanded")
	t.Setenv("SENTIMENT_KEY", "key-from-env")

	path := writeConfig(t, `
credentials:
  token: ab$cd
  key: k$${SENTIMENT_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ab$cd", cfg.Credentials.Token)
	assert.Equal(t, "k$key-from-env", cfg.Credentials.Key)
}

func TestLoad_EnvOverridesCredentials(t *testing.T) {
	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvKey, "env-key")

	path := writeConfig(t, "credentials:\n  token: file-token\n  key: file-key\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Credentials.Token)
	assert.Equal(t, "env-key", cfg.Credentials.Key)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvKey, "env-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, cfg.Stream.Mode)
	assert.Equal(t, ":8081", cfg.Gateway.Addr)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvKey, "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "stream: [not, a, map]\n"))
	assert.ErrorContains(t, err, "failed to parse config")

	_, err = Load(writeConfig(t, "credentials:\n  key: only-key\n"))
	assert.ErrorIs(t, err, stream.ErrMissingToken)
	assert.ErrorContains(t, err, EnvToken)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults with credentials", mutate: func(c *Config) {}},
		{name: "bad mode", mutate: func(c *Config) { c.Stream.Mode = "crypto" }, wantErr: "invalid stream mode"},
		{name: "symbols in all mode", mutate: func(c *Config) { c.Stream.Symbols = []string{"AAPL"} }, wantErr: "only used in stocks mode"},
		{name: "zero ping", mutate: func(c *Config) { c.Stream.PingInterval = 0 }, wantErr: "ping interval"},
		{name: "zero pong", mutate: func(c *Config) { c.Stream.PongTimeout = 0 }, wantErr: "pong timeout"},
		{name: "zero backoff", mutate: func(c *Config) { c.Stream.BackoffMin = 0 }, wantErr: "minimum backoff"},
		{name: "inverted backoff", mutate: func(c *Config) { c.Stream.BackoffMax = time.Millisecond }, wantErr: "below minimum"},
		{name: "zero rest timeout", mutate: func(c *Config) { c.REST.Timeout = 0 }, wantErr: "rest timeout"},
		{name: "no addr", mutate: func(c *Config) { c.Gateway.Addr = "" }, wantErr: "gateway address"},
		{name: "stocks mode with symbols", mutate: func(c *Config) {
			c.Stream.Mode = ModeStocks
			c.Stream.Symbols = []string{"AAPL"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Credentials = CredentialsConfig{Token: "t", Key: "k"}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
