package qmin

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration shared by producers and consumer sessions.
type Config struct {
	// Namespace prefixes every Redis key and pub/sub topic.
	Namespace string `yaml:"namespace"`

	// Codec selects the envelope wire format ("json" or "msgpack").
	Codec string `yaml:"codec"`

	// PopTimeout bounds each blocking pop. It is also how often an idle
	// consumer notices a shutdown request.
	PopTimeout time.Duration `yaml:"pop_timeout"`

	// ForceExitTimeout is the maximum time to wait for a graceful shutdown
	// after the first termination signal.
	ForceExitTimeout time.Duration `yaml:"force_exit_timeout"`

	// GracePeriod is how long a fire-and-forget session waits for
	// already-dispatched handlers before exiting.
	GracePeriod time.Duration `yaml:"grace_period"`

	// ForceExitDelay is the delay between a second termination signal and
	// the forced exit.
	ForceExitDelay time.Duration `yaml:"force_exit_delay"`

	// HandlerTimeout, when non-zero, puts a deadline on each handler call.
	// It does not apply to acknowledgment handlers, which complete through
	// their Done callback.
	HandlerTimeout time.Duration `yaml:"handler_timeout"`

	// MaxInFlight caps concurrently running handlers per session.
	// Zero means unbounded.
	MaxInFlight int `yaml:"max_in_flight"`

	// PopRate limits pops per second per session. Zero disables it.
	PopRate  float64 `yaml:"pop_rate"`
	PopBurst int     `yaml:"pop_burst"`

	// HandleSignals makes sessions react to SIGINT and SIGTERM.
	HandleSignals bool `yaml:"handle_signals"`

	Redis RedisConfig `yaml:"redis"`
	Log   LogConfig   `yaml:"log"`
}

// RedisConfig holds connection parameters passed through to the Redis
// client. The core never interprets them.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	TLSEnabled            bool   `yaml:"tls_enabled"`
	TLSServerName         string `yaml:"tls_server_name"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify"`

	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// LogConfig configures the slog handler built by the command line tool.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with the reference timings: 1s pops, 20s
// force-exit timeout, 3s fire-and-forget grace period.
func DefaultConfig() Config {
	return Config{
		Namespace:        "qmin",
		Codec:            "json",
		PopTimeout:       1 * time.Second,
		ForceExitTimeout: 20 * time.Second,
		GracePeriod:      3 * time.Second,
		ForceExitDelay:   500 * time.Millisecond,
		HandleSignals:    true,
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			DialTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. An empty filename or a
// missing file yields the defaults.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("qmin: read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("qmin: parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the consumer loop cannot
// run with.
func (c Config) Validate() error {
	switch {
	case c.Namespace == "":
		return fmt.Errorf("%w: namespace cannot be empty", ErrConfiguration)
	case c.PopTimeout <= 0:
		return fmt.Errorf("%w: pop_timeout must be positive", ErrConfiguration)
	case c.ForceExitTimeout <= 0:
		return fmt.Errorf("%w: force_exit_timeout must be positive", ErrConfiguration)
	case c.GracePeriod < 0 || c.ForceExitDelay < 0 || c.HandlerTimeout < 0:
		return fmt.Errorf("%w: durations cannot be negative", ErrConfiguration)
	case c.MaxInFlight < 0:
		return fmt.Errorf("%w: max_in_flight cannot be negative", ErrConfiguration)
	case c.PopRate < 0:
		return fmt.Errorf("%w: pop_rate cannot be negative", ErrConfiguration)
	case c.Codec != "json" && c.Codec != "msgpack":
		return fmt.Errorf("%w: %q", ErrUnknownCodec, c.Codec)
	}
	return nil
}
