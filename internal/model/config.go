package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// APIConfig locates the notification store REST API.
type APIConfig struct {
	// BaseURL is the root URL of the treasury backend.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Token is the bearer token. Usually empty in the file; the keyring or
	// NOTIFY_API_TOKEN provide it instead.
	Token string `mapstructure:"token" yaml:"token,omitempty"`

	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// PushConfig selects the live push transports.
type PushConfig struct {
	// Primary is the preferred transport: websocket, poll, nats or redis.
	Primary string `mapstructure:"primary" yaml:"primary"`

	// Fallback is tried once when the primary fails to connect.
	Fallback string `mapstructure:"fallback" yaml:"fallback"`

	PollIntervalMs   int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	ReconnectDelayMs int    `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	NATSURL          string `mapstructure:"nats_url" yaml:"nats_url"`
	RedisAddr        string `mapstructure:"redis_addr" yaml:"redis_addr"`
}

// ReconcileConfig tunes the reconciliation controller.
type ReconcileConfig struct {
	PushRefetchDelayMs     int `mapstructure:"push_refetch_delay_ms" yaml:"push_refetch_delay_ms"`
	DeleteRefetchDelayMs   int `mapstructure:"delete_refetch_delay_ms" yaml:"delete_refetch_delay_ms"`
	MaxVisible             int `mapstructure:"max_visible" yaml:"max_visible"`
	SuppressionWindowSec   int `mapstructure:"suppression_window_sec" yaml:"suppression_window_sec"`
	HighAssuranceWindowSec int `mapstructure:"high_assurance_window_sec" yaml:"high_assurance_window_sec"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`

	// File receives log output. Empty means stdout.
	File string `mapstructure:"file" yaml:"file"`

	Development bool `mapstructure:"development" yaml:"development"`
}

// BackendConfig configures the development notification server.
type BackendConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Driver    string `mapstructure:"driver" yaml:"driver"`
	DSN       string `mapstructure:"dsn" yaml:"dsn"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	NATSURL   string `mapstructure:"nats_url" yaml:"nats_url"`
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
	GinMode   string `mapstructure:"gin_mode" yaml:"gin_mode"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Push      PushConfig      `mapstructure:"push" yaml:"push"`
	Reconcile ReconcileConfig `mapstructure:"reconcile" yaml:"reconcile"`
	Display   DisplayConfig   `mapstructure:"display" yaml:"display"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Backend   BackendConfig   `mapstructure:"backend" yaml:"backend"`
}

// PushRefetchDelay is the delay before reconciling after a push event.
func (c ReconcileConfig) PushRefetchDelay() time.Duration {
	return time.Duration(c.PushRefetchDelayMs) * time.Millisecond
}

// DeleteRefetchDelay is the delay before reconciling after a delete.
func (c ReconcileConfig) DeleteRefetchDelay() time.Duration {
	return time.Duration(c.DeleteRefetchDelayMs) * time.Millisecond
}

// SuppressionWindow is how long a deleted notification stays hidden.
func (c ReconcileConfig) SuppressionWindow() time.Duration {
	return time.Duration(c.SuppressionWindowSec) * time.Second
}

// HighAssuranceWindow is the suppression window for high-assurance deletes.
func (c ReconcileConfig) HighAssuranceWindow() time.Duration {
	return time.Duration(c.HighAssuranceWindowSec) * time.Second
}

// PollInterval is the polling transport's request interval.
func (c PushConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ReconnectDelay is the pause between push reconnection attempts.
func (c PushConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// Timeout is the REST client's per-request timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/treasury-notify/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "treasury-notify", "config.yaml")
}

// defaults maps every config key to its default value.
var defaults = map[string]any{
	"api.base_url":    "http://localhost:8080",
	"api.timeout_sec": 30,

	"push.primary":            "websocket",
	"push.fallback":           "poll",
	"push.poll_interval_ms":   3000,
	"push.reconnect_delay_ms": 2000,
	"push.nats_url":           "nats://127.0.0.1:4222",
	"push.redis_addr":         "127.0.0.1:6379",

	"reconcile.push_refetch_delay_ms":     500,
	"reconcile.delete_refetch_delay_ms":   600,
	"reconcile.max_visible":               50,
	"reconcile.suppression_window_sec":    60,
	"reconcile.high_assurance_window_sec": 300,

	"display.theme": "default",

	"log.level":       "info",
	"log.file":        "",
	"log.development": false,

	"backend.addr":       ":8080",
	"backend.driver":     "sqlite",
	"backend.dsn":        "treasury-notify.db",
	"backend.jwt_secret": "change-me",
	"backend.nats_url":   "",
	"backend.redis_addr": "",
	"backend.gin_mode":   "debug",
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// NOTIFY_API_BASE_URL overrides api.base_url, and so on.
	v.SetEnvPrefix("notify")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded first, if present, so its
// NOTIFY_* variables take part in the override chain. If the config file
// does not exist, defaults (plus environment overrides) are returned.
func LoadConfig(path string) (*AppConfig, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Reconcile.MaxVisible <= 0 {
		cfg.Reconcile.MaxVisible = 50
	}
	if cfg.Push.Primary == cfg.Push.Fallback {
		// A fallback identical to the primary is just a second attempt.
		cfg.Push.Fallback = ""
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. The API token is never written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	api := cfg.API
	api.Token = ""
	v.Set("api", api)
	v.Set("push", cfg.Push)
	v.Set("reconcile", cfg.Reconcile)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)
	v.Set("backend", cfg.Backend)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
