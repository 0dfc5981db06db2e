package qmin_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/qmin"
)

func TestDefaultConfig(t *testing.T) {
	cfg := qmin.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.PopTimeout != time.Second || cfg.ForceExitTimeout != 20*time.Second || cfg.GracePeriod != 3*time.Second {
		t.Fatalf("timings = %s %s %s", cfg.PopTimeout, cfg.ForceExitTimeout, cfg.GracePeriod)
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Fatalf("Addr = %q", cfg.Redis.Addr())
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qmin.yaml")
	data := []byte(`
namespace: jobs
codec: msgpack
pop_timeout: 250ms
max_in_flight: 8
redis:
  host: redis.internal
  port: 6380
  db: 2
log:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := qmin.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Namespace != "jobs" || cfg.Codec != "msgpack" || cfg.MaxInFlight != 8 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.PopTimeout != 250*time.Millisecond {
		t.Fatalf("PopTimeout = %s", cfg.PopTimeout)
	}
	if cfg.Redis.Addr() != "redis.internal:6380" || cfg.Redis.DB != 2 {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	// Unset fields keep their defaults.
	if cfg.ForceExitTimeout != 20*time.Second || cfg.Log.Format != "text" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := qmin.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Namespace != "qmin" {
		t.Fatalf("Namespace = %q", cfg.Namespace)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qmin.yaml")
	if err := os.WriteFile(path, []byte("codec: xml\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := qmin.LoadConfig(path)
	if !errors.Is(err, qmin.ErrUnknownCodec) || !qmin.IsConfigurationError(err) {
		t.Fatalf("err = %v, want ErrUnknownCodec", err)
	}

	if err := os.WriteFile(path, []byte("namespace: [\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := qmin.LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*qmin.Config)
	}{
		{"empty namespace", func(c *qmin.Config) { c.Namespace = "" }},
		{"zero pop timeout", func(c *qmin.Config) { c.PopTimeout = 0 }},
		{"zero force exit", func(c *qmin.Config) { c.ForceExitTimeout = 0 }},
		{"negative grace", func(c *qmin.Config) { c.GracePeriod = -time.Second }},
		{"negative in flight", func(c *qmin.Config) { c.MaxInFlight = -1 }},
		{"negative rate", func(c *qmin.Config) { c.PopRate = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := qmin.DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !qmin.IsConfigurationError(err) {
				t.Fatalf("Validate = %v, want configuration error", err)
			}
		})
	}
}
