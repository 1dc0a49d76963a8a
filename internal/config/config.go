package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Auth modes for the GitHub API.
const (
	AuthToken = "token"
	AuthApp   = "app"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitHub    GitHubConfig
	Sync      SyncConfig
	Decay     DecayConfig
	Store     StoreConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
}

// GitHubConfig configures GitHub API access.
type GitHubConfig struct {
	APIBaseURL     string
	Auth           string
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	RequestTimeout time.Duration
}

// SyncConfig bounds commit analysis and the periodic sync loop.
type SyncConfig struct {
	Interval       time.Duration
	LookbackDays   int
	MaxBranches    int
	PagesPerBranch int
	CommitsPerPage int
	DetailLimit    int
}

// DecayConfig configures the condition decay loop.
type DecayConfig struct {
	Interval time.Duration
}

// StoreConfig configures game state persistence.
type StoreConfig struct {
	Backend            string
	Path               string
	Namespace          string
	RedisMode          string
	RedisAddr          string
	RedisMasterSet     string
	RedisSentinelAddrs []string
	RedisPassword      string
	RedisDB            int
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELExporterEndpoint string
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}

	switch c.GitHub.Auth {
	case AuthToken:
		if c.GitHub.Token == "" {
			errs = append(errs, "github.token is required when github.auth=token")
		}
	case AuthApp:
		if c.GitHub.AppID <= 0 {
			errs = append(errs, "github.app_id must be > 0 when github.auth=app")
		}
		if c.GitHub.InstallationID <= 0 {
			errs = append(errs, "github.installation_id must be > 0 when github.auth=app")
		}
		if c.GitHub.PrivateKeyPath == "" {
			errs = append(errs, "github.private_key_path is required when github.auth=app")
		}
	default:
		errs = append(errs, "github.auth must be token or app")
	}

	if c.Sync.Interval <= 0 {
		errs = append(errs, "sync.interval must be > 0")
	}
	if c.Sync.LookbackDays <= 0 {
		errs = append(errs, "sync.lookback_days must be > 0")
	}
	if c.Sync.MaxBranches <= 0 {
		errs = append(errs, "sync.max_branches must be > 0")
	}
	if c.Sync.PagesPerBranch <= 0 {
		errs = append(errs, "sync.pages_per_branch must be > 0")
	}
	if c.Sync.CommitsPerPage <= 0 || c.Sync.CommitsPerPage > 100 {
		errs = append(errs, "sync.commits_per_page must be in 1..100")
	}
	if c.Sync.DetailLimit <= 0 {
		errs = append(errs, "sync.detail_limit must be > 0")
	}

	if c.Decay.Interval <= 0 {
		errs = append(errs, "decay.interval must be > 0")
	}

	switch c.Store.Backend {
	case StoreFile:
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required when store.backend=file")
		}
	case StoreRedis:
		if c.Store.RedisMode != "standalone" && c.Store.RedisMode != "sentinel" {
			errs = append(errs, "store.redis_mode must be standalone or sentinel")
		}
		if c.Store.RedisMode == "standalone" && c.Store.RedisAddr == "" {
			errs = append(errs, "store.redis_addr is required when store.redis_mode=standalone")
		}
		if c.Store.RedisMode == "sentinel" && len(c.Store.RedisSentinelAddrs) == 0 {
			errs = append(errs, "store.redis_sentinel_addrs is required when store.redis_mode=sentinel")
		}
	case StoreMemory:
	default:
		errs = append(errs, "store.backend must be file, redis or memory")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.GitHub.Auth == "" {
		cfg.GitHub.Auth = AuthToken
	}
	if cfg.GitHub.RequestTimeout <= 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = 15 * time.Minute
	}
	if cfg.Sync.LookbackDays <= 0 {
		cfg.Sync.LookbackDays = 90
	}
	if cfg.Sync.MaxBranches <= 0 {
		cfg.Sync.MaxBranches = 5
	}
	if cfg.Sync.PagesPerBranch <= 0 {
		cfg.Sync.PagesPerBranch = 3
	}
	if cfg.Sync.CommitsPerPage <= 0 {
		cfg.Sync.CommitsPerPage = 50
	}
	if cfg.Sync.DetailLimit <= 0 {
		cfg.Sync.DetailLimit = 50
	}
	if cfg.Decay.Interval <= 0 {
		cfg.Decay.Interval = time.Hour
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreFile
	}
	if cfg.Store.Backend == StoreFile && cfg.Store.Path == "" {
		cfg.Store.Path = "pixelpet_state.json"
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = "pixelpet"
	}
	if cfg.Store.RedisMode == "" {
		cfg.Store.RedisMode = "standalone"
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    ServerConfig `yaml:"server"`
	GitHub    rawGitHub    `yaml:"github"`
	Sync      rawSync      `yaml:"sync"`
	Decay     rawDecay     `yaml:"decay"`
	Store     rawStore     `yaml:"store"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawGitHub struct {
	APIBaseURL     string   `yaml:"api_base_url"`
	Auth           string   `yaml:"auth"`
	Token          string   `yaml:"token"`
	AppID          int64    `yaml:"app_id"`
	InstallationID int64    `yaml:"installation_id"`
	PrivateKeyPath string   `yaml:"private_key_path"`
	RequestTimeout duration `yaml:"request_timeout"`
}

type rawSync struct {
	Interval       duration `yaml:"interval"`
	LookbackDays   int      `yaml:"lookback_days"`
	MaxBranches    int      `yaml:"max_branches"`
	PagesPerBranch int      `yaml:"pages_per_branch"`
	CommitsPerPage int      `yaml:"commits_per_page"`
	DetailLimit    int      `yaml:"detail_limit"`
}

type rawDecay struct {
	Interval duration `yaml:"interval"`
}

type rawStore struct {
	Backend            string   `yaml:"backend"`
	Path               string   `yaml:"path"`
	Namespace          string   `yaml:"namespace"`
	RedisMode          string   `yaml:"redis_mode"`
	RedisAddr          string   `yaml:"redis_addr"`
	RedisMasterSet     string   `yaml:"redis_master_set"`
	RedisSentinelAddrs []string `yaml:"redis_sentinel_addrs"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisDB            int      `yaml:"redis_db"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELExporterEndpoint string  `yaml:"otel_exporter_otlp_endpoint"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: r.Server,
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			Auth:           r.GitHub.Auth,
			Token:          r.GitHub.Token,
			AppID:          r.GitHub.AppID,
			InstallationID: r.GitHub.InstallationID,
			PrivateKeyPath: r.GitHub.PrivateKeyPath,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
		},
		Sync: SyncConfig{
			Interval:       r.Sync.Interval.Duration,
			LookbackDays:   r.Sync.LookbackDays,
			MaxBranches:    r.Sync.MaxBranches,
			PagesPerBranch: r.Sync.PagesPerBranch,
			CommitsPerPage: r.Sync.CommitsPerPage,
			DetailLimit:    r.Sync.DetailLimit,
		},
		Decay: DecayConfig{
			Interval: r.Decay.Interval.Duration,
		},
		Store: StoreConfig{
			Backend:            r.Store.Backend,
			Path:               r.Store.Path,
			Namespace:          r.Store.Namespace,
			RedisMode:          r.Store.RedisMode,
			RedisAddr:          r.Store.RedisAddr,
			RedisMasterSet:     r.Store.RedisMasterSet,
			RedisSentinelAddrs: r.Store.RedisSentinelAddrs,
			RedisPassword:      r.Store.RedisPassword,
			RedisDB:            r.Store.RedisDB,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELExporterEndpoint: r.Telemetry.OTELExporterEndpoint,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
