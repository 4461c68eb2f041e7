package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file location
const PathEnvVar = "HPOS_API_CONFIG"

// DefaultPaths are searched in order when PathEnvVar is unset
var DefaultPaths = []string{
	"hpos-api.yaml",
	"hpos-api.yml",
	"/etc/hpos-api/config.yaml",
}

// Config is the gateway configuration
type Config struct {
	// TestMode enables the SL_TEST_* clock overrides
	TestMode      bool                `koanf:"test_mode"`
	Server        ServerConfig        `koanf:"server"`
	Log           LogConfig           `koanf:"log"`
	Conductor     ConductorConfig     `koanf:"conductor"`
	HBS           HBSConfig           `koanf:"hbs"`
	HPOS          HPOSConfig          `koanf:"hpos"`
	ServiceLogger ServiceLoggerConfig `koanf:"service_logger"`
	Hosting       HostingConfig       `koanf:"hosting"`
	Storage       StorageConfig       `koanf:"storage"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// SLCheckPerMinute limits sl-check triggers per client
	SLCheckPerMinute int `koanf:"sl_check_per_minute"`
	// HealthInterval is the period of the readiness probes
	HealthInterval time.Duration `koanf:"health_interval"`
}

// LogConfig configures pkg/log
type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// ConductorConfig locates the holochain conductor
type ConductorConfig struct {
	AdminURL    string        `koanf:"admin_url"`
	AppURL      string        `koanf:"app_url"`
	CoreAppID   string        `koanf:"core_app_id"`
	CallTimeout time.Duration `koanf:"call_timeout"`
}

// HBSConfig configures the HBS client
type HBSConfig struct {
	URL               string        `koanf:"url"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	BreakerTimeout    time.Duration `koanf:"breaker_timeout"`
	BreakerFailures   uint32        `koanf:"breaker_failures"`
}

// HPOSConfig locates the host's device bundle
type HPOSConfig struct {
	ConfigPath     string `koanf:"config_path"`
	DevicePassword string `koanf:"device_password"`
}

// ServiceLoggerConfig tunes clone rotation
type ServiceLoggerConfig struct {
	BucketSizeDays        uint32 `koanf:"bucket_size_days"`
	NextBoundaryMinutes   uint32 `koanf:"next_boundary_minutes"`
	DeletionWindowMinutes uint32 `koanf:"deletion_window_minutes"`
	CollectorPubKey       string `koanf:"collector_pub_key"`
	BundleURL             string `koanf:"bundle_url"`
	MaxConcurrentApps     int    `koanf:"max_concurrent_apps"`
}

// HostingConfig configures hosted happ installs
type HostingConfig struct {
	NetworkSeedOverride string `koanf:"network_seed_override"`
}

// StorageConfig locates the pass journal
type StorageConfig struct {
	Path string `koanf:"path"`
	// HistoryLimit is the default number of passes returned by the history endpoint
	HistoryLimit int `koanf:"history_limit"`
	// Retention is the number of passes and events kept in the journal
	Retention int `koanf:"retention"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             "127.0.0.1:2300",
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     5 * time.Minute,
			ShutdownTimeout:  15 * time.Second,
			SLCheckPerMinute: 6,
			HealthInterval:   30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Conductor: ConductorConfig{
			AdminURL:    "ws://localhost:4444",
			AppURL:      "ws://localhost:42233",
			CoreAppID:   "core-app",
			CallTimeout: 30 * time.Second,
		},
		HBS: HBSConfig{
			URL:             "https://hbs.holo.host",
			Timeout:         30 * time.Second,
			BreakerTimeout:  time.Minute,
			BreakerFailures: 5,
		},
		HPOS: HPOSConfig{
			ConfigPath: "/run/hpos-init/hp-primary.json",
		},
		ServiceLogger: ServiceLoggerConfig{
			BucketSizeDays:        14,
			NextBoundaryMinutes:   60,
			DeletionWindowMinutes: 60,
			BundleURL:             "https://holo-host.github.io/servicelogger-rsm/releases/downloads/servicelogger.happ",
			MaxConcurrentApps:     1,
		},
		Storage: StorageConfig{
			Path:         "/var/lib/hpos-api/journal.db",
			HistoryLimit: 20,
			Retention:    1000,
		},
	}
}

// Load layers defaults, the config file and the environment
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps environment variables, lower cased, to config keys.
// The unprefixed names are the ones HPOS already exports.
var envMappings = map[string]string{
	"is_test_env":                  "test_mode",
	"hpos_api_test_mode":           "test_mode",
	"hpos_api_addr":                "server.addr",
	"hpos_api_sl_check_per_minute": "server.sl_check_per_minute",
	"hpos_api_log_level":           "log.level",
	"hpos_api_log_json":            "log.json",

	"holochain_admin_url":          "conductor.admin_url",
	"holochain_app_url":            "conductor.app_url",
	"core_app_id":                  "conductor.core_app_id",
	"hpos_api_conductor_timeout":   "conductor.call_timeout",
	"hbs_url":                      "hbs.url",
	"hpos_api_hbs_rps":             "hbs.requests_per_second",
	"hpos_config_path":             "hpos.config_path",
	"device_seed_default_password": "hpos.device_password",

	"sl_collector_pub_key":       "service_logger.collector_pub_key",
	"sl_bucket_size_days":        "service_logger.bucket_size_days",
	"sl_next_boundary_minutes":   "service_logger.next_boundary_minutes",
	"sl_deletion_window_minutes": "service_logger.deletion_window_minutes",
	"sl_bundle_url":              "service_logger.bundle_url",
	"sl_max_concurrent_apps":     "service_logger.max_concurrent_apps",
	"dev_uid_override":           "hosting.network_seed_override",
	"hpos_api_journal_path":      "storage.path",
}

func envKey(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Validate rejects configurations the gateway cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.ServiceLogger.BucketSizeDays == 0 {
		errs = append(errs, errors.New("service_logger.bucket_size_days must be positive"))
	}
	if c.ServiceLogger.CollectorPubKey == "" {
		errs = append(errs, errors.New("service_logger.collector_pub_key is required (SL_COLLECTOR_PUB_KEY)"))
	}
	if c.ServiceLogger.MaxConcurrentApps < 1 {
		errs = append(errs, errors.New("service_logger.max_concurrent_apps must be at least 1"))
	}
	if c.Conductor.AdminURL == "" || c.Conductor.AppURL == "" {
		errs = append(errs, errors.New("conductor admin_url and app_url are required"))
	}
	if c.Conductor.CoreAppID == "" {
		errs = append(errs, errors.New("conductor.core_app_id is required"))
	}
	if c.Conductor.CallTimeout <= 0 {
		errs = append(errs, errors.New("conductor.call_timeout must be positive"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Storage.Retention < c.Storage.HistoryLimit {
		errs = append(errs, errors.New("storage.retention must be at least storage.history_limit"))
	}
	if c.Storage.HistoryLimit < 1 {
		errs = append(errs, errors.New("storage.history_limit must be at least 1"))
	}
	return errors.Join(errs...)
}
