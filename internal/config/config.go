package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	StorageBackend string `yaml:"storage_backend"`
	DataDir        string `yaml:"data_dir"`
	RedisURL       string `yaml:"redis_url"`

	// Optional Postgres archive for finished games.
	DatabaseURL string `yaml:"database_url"`

	// Parsed from ping_interval, which accepts bare seconds ("30")
	// or a duration string ("90s").
	PingInterval time.Duration `yaml:"-"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
	LogCaller bool   `yaml:"log_caller"`
}

// Load builds the configuration from defaults, an optional YAML file
// named by CHESSHALL_CONFIG, and finally environment overrides.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:     ":8080",
		StorageBackend: BackendFile,
		DataDir:        "data/sessions",
		PingInterval:   30 * time.Second,
		LogLevel:       "info",
		LogFormat:      "console",
	}

	if path := strings.TrimSpace(os.Getenv("CHESSHALL_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		var extra struct {
			PingInterval string `yaml:"ping_interval"`
		}
		if err := yaml.Unmarshal(raw, &extra); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		if d, ok := parseInterval(extra.PingInterval); ok {
			cfg.PingInterval = d
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("STORAGE_BACKEND")); v != "" {
		cfg.StorageBackend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if d, ok := parseInterval(os.Getenv("PING_INTERVAL")); ok {
		cfg.PingInterval = d
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FILE")); v != "" {
		cfg.LogFile = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_CALLER")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogCaller = b
		}
	}

	switch cfg.StorageBackend {
	case BackendFile:
		if strings.TrimSpace(cfg.DataDir) == "" {
			return nil, errors.New("DATA_DIR is required for the file backend")
		}
	case BackendRedis:
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return nil, errors.New("REDIS_URL is required for the redis backend")
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}

	return cfg, nil
}

// parseInterval accepts bare seconds ("30") or a duration string
// ("90s"). Non-positive or malformed values report !ok.
func parseInterval(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second, true
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, true
	}
	return 0, false
}
