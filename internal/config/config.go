// Package config loads connector settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rezonia/ksef-connector/internal/ksef"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Notification backends
const (
	NotifyLog       = "log"
	NotifyGoChannel = "gochannel"
	NotifyRedis     = "redis"
)

// Config represents the application configuration
type Config struct {
	Environment string `yaml:"environment"`
	BaseURL     string `yaml:"base_url"`
	Timeout     string `yaml:"timeout"`

	Store struct {
		Backend   string `yaml:"backend"`
		StateDir  string `yaml:"state_dir"`
		RedisURL  string `yaml:"redis_url"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"store"`

	Notify struct {
		Backend string `yaml:"backend"`
		Topic   string `yaml:"topic"`
	} `yaml:"notify"`

	Poller struct {
		InitialInterval string `yaml:"initial_interval"`
		MaxInterval     string `yaml:"max_interval"`
		MaxAttempts     int    `yaml:"max_attempts"`
	} `yaml:"poller"`
}

// Parsed contains resolved values for easier use
type Parsed struct {
	Config
	Env                 ksef.Environment
	RequestTimeout      time.Duration
	PollInitialInterval time.Duration
	PollMaxInterval     time.Duration
}

// Default returns the built-in configuration
func Default() Config {
	var cfg Config
	cfg.Environment = ksef.Test.Name
	cfg.Timeout = "30s"
	cfg.Store.Backend = BackendFile
	cfg.Store.StateDir = defaultStateDir()
	cfg.Store.KeyPrefix = "ksef:"
	cfg.Notify.Backend = NotifyLog
	cfg.Poller.InitialInterval = "2s"
	cfg.Poller.MaxInterval = "2m"
	cfg.Poller.MaxAttempts = 30
	return cfg
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Parsed, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	return cfg.Parse()
}

// Read is Load without validation, for callers that apply further
// overrides before calling Parse
func Read(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	ApplyEnv(&cfg)
	return cfg, nil
}

// ApplyEnv overrides fields from KSEF_* environment variables
func ApplyEnv(cfg *Config) {
	overrides := map[string]*string{
		"KSEF_ENV":          &cfg.Environment,
		"KSEF_BASE_URL":     &cfg.BaseURL,
		"KSEF_TIMEOUT":      &cfg.Timeout,
		"KSEF_STORE":        &cfg.Store.Backend,
		"KSEF_STATE_DIR":    &cfg.Store.StateDir,
		"KSEF_REDIS_URL":    &cfg.Store.RedisURL,
		"KSEF_NOTIFY":       &cfg.Notify.Backend,
		"KSEF_NOTIFY_TOPIC": &cfg.Notify.Topic,
	}
	for name, field := range overrides {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
}

// Parse validates cfg and resolves durations and the environment
func (cfg Config) Parse() (*Parsed, error) {
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	env, err := ksef.EnvironmentByName(cfg.Environment)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL != "" {
		env.BaseURL = cfg.BaseURL
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}
	initial, err := time.ParseDuration(cfg.Poller.InitialInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid poller.initial_interval: %w", err)
	}
	maxInterval, err := time.ParseDuration(cfg.Poller.MaxInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid poller.max_interval: %w", err)
	}

	return &Parsed{
		Config:              cfg,
		Env:                 env,
		RequestTimeout:      timeout,
		PollInitialInterval: initial,
		PollMaxInterval:     maxInterval,
	}, nil
}

func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if cfg.Store.RedisURL == "" {
			return errors.New("store.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	switch cfg.Notify.Backend {
	case NotifyLog, NotifyGoChannel:
	case NotifyRedis:
		if cfg.Store.RedisURL == "" {
			return errors.New("store.redis_url is required for redis notifications")
		}
	default:
		return fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
	}

	if cfg.Poller.MaxAttempts < 0 {
		return errors.New("poller.max_attempts must not be negative")
	}
	return nil
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ksef-connector")
	}
	return ".ksef-connector"
}
