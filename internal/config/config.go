// Package config loads service settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ZhouDavid/sentiment-stream/pkg/sentiment"
	"github.com/ZhouDavid/sentiment-stream/pkg/stream"
)

const (
	EnvToken = "API_SENTIMENTINVESTOR_TOKEN"
	EnvKey   = "API_SENTIMENTINVESTOR_KEY"
)

const (
	ModeStocks = "stocks"
	ModeAll    = "all"
)

type Config struct {
	LogLevel    string            `yaml:"log_level"`
	LogFormat   string            `yaml:"log_format"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Stream      StreamConfig      `yaml:"stream"`
	REST        RESTConfig        `yaml:"rest"`
	Gateway     GatewayConfig     `yaml:"gateway"`
}

type CredentialsConfig struct {
	Token string `yaml:"token"`
	Key   string `yaml:"key"`
}

type StreamConfig struct {
	// Mode selects the subscription: "stocks" for Symbols only, "all" for
	// every tracked symbol.
	Mode         string        `yaml:"mode"`
	Symbols      []string      `yaml:"symbols"`
	BaseURL      string        `yaml:"base_url"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
	BackoffMin   time.Duration `yaml:"backoff_min"`
	BackoffMax   time.Duration `yaml:"backoff_max"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type GatewayConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads .env (when present), then the YAML file at path, then the
// credential environment variables. An empty path skips the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
		}
	}

	if v := os.Getenv(EnvToken); v != "" {
		cfg.Credentials.Token = v
	}
	if v := os.Getenv(EnvKey); v != "" {
		cfg.Credentials.Key = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references. A bare $ is left alone so tokens
// containing one survive.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

// Default returns the configuration used for anything the file leaves out.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Stream: StreamConfig{
			Mode:         ModeAll,
			BaseURL:      stream.DefaultBaseURL,
			PingInterval: stream.DefaultPingInterval,
			PongTimeout:  stream.DefaultPongTimeout,
			BackoffMin:   stream.DefaultBackoffMin,
			BackoffMax:   stream.DefaultBackoffMax,
		},
		REST: RESTConfig{
			BaseURL: sentiment.DefaultBaseURL,
			Timeout: 30 * time.Second,
		},
		Gateway: GatewayConfig{
			Addr: ":8081",
		},
	}
}

func (c *Config) Validate() error {
	if err := c.StreamCredentials().Validate(); err != nil {
		return fmt.Errorf("%w (set %s and %s)", err, EnvToken, EnvKey)
	}

	switch c.Stream.Mode {
	case ModeStocks, ModeAll:
	default:
		return fmt.Errorf("invalid stream mode %q (must be %q or %q)", c.Stream.Mode, ModeStocks, ModeAll)
	}
	if c.Stream.Mode == ModeAll && len(c.Stream.Symbols) > 0 {
		return errors.New("stream symbols are only used in stocks mode")
	}

	if c.Stream.PingInterval <= 0 {
		return errors.New("ping interval must be greater than 0")
	}
	if c.Stream.PongTimeout <= 0 {
		return errors.New("pong timeout must be greater than 0")
	}
	if c.Stream.BackoffMin <= 0 {
		return errors.New("minimum backoff must be greater than 0")
	}
	if c.Stream.BackoffMax < c.Stream.BackoffMin {
		return fmt.Errorf("maximum backoff %s is below minimum %s", c.Stream.BackoffMax, c.Stream.BackoffMin)
	}
	if c.REST.Timeout <= 0 {
		return errors.New("rest timeout must be greater than 0")
	}
	if c.Gateway.Addr == "" {
		return errors.New("gateway address cannot be empty")
	}
	return nil
}

// StreamCredentials converts the configured credentials for the stream and
// REST clients.
func (c *Config) StreamCredentials() stream.Credentials {
	return stream.Credentials{Token: c.Credentials.Token, Key: c.Credentials.Key}
}
