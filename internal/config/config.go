package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gurram46/Artha-Agent-sub001/internal/persist/pgstore"
)

type Server struct {
	Port              string `json:"port" yaml:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
}

type Upstream struct {
	BaseURL               string `json:"base_url" yaml:"base_url"`
	APIKey                string `json:"api_key" yaml:"api_key"`
	UserAgent             string `json:"user_agent" yaml:"user_agent"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	Burst                 int    `json:"burst" yaml:"burst"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
	TopTimeoutSec         int    `json:"top_timeout_sec" yaml:"top_timeout_sec"`
	DetailTimeoutSec      int    `json:"detail_timeout_sec" yaml:"detail_timeout_sec"`
	SeriesTimeoutSec      int    `json:"series_timeout_sec" yaml:"series_timeout_sec"`
}

type Sync struct {
	FreshnessSec         int `json:"freshness_sec" yaml:"freshness_sec"`
	PersistenceMaxAgeSec int `json:"persistence_max_age_sec" yaml:"persistence_max_age_sec"`
	PollIntervalSec      int `json:"poll_interval_sec" yaml:"poll_interval_sec"`
	CooldownSec          int `json:"cooldown_sec" yaml:"cooldown_sec"`
}

// Store selects the snapshot persistence backend.
type Store struct {
	Driver        string         `json:"driver" yaml:"driver"` // sqlite, file, redis, postgres, memory, none
	Path          string         `json:"path" yaml:"path"`
	RedisAddr     string         `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string         `json:"redis_password" yaml:"redis_password"`
	RedisDB       int            `json:"redis_db" yaml:"redis_db"`
	RedisPrefix   string         `json:"redis_prefix" yaml:"redis_prefix"`
	Postgres      pgstore.Config `json:"postgres" yaml:"postgres"`
}

type Log struct {
	Level string `json:"level" yaml:"level"`
}

type Config struct {
	Server   Server   `json:"server" yaml:"server"`
	Upstream Upstream `json:"upstream" yaml:"upstream"`
	Sync     Sync     `json:"sync" yaml:"sync"`
	Store    Store    `json:"store" yaml:"store"`
	Log      Log      `json:"log" yaml:"log"`
}

var drivers = map[string]bool{"sqlite": true, "file": true, "redis": true, "postgres": true, "memory": true, "none": true}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Upstream: Upstream{
			BaseURL:              "https://api.marketdata.example.com",
			MaxRequestsPerMinute: 30,
			Burst:                5,
			TopTimeoutSec:        30,
			DetailTimeoutSec:     20,
			SeriesTimeoutSec:     15,
		},
		Sync: Sync{
			FreshnessSec:         120,
			PersistenceMaxAgeSec: 300,
			PollIntervalSec:      300,
			CooldownSec:          120,
		},
		Store: Store{
			Driver:      "sqlite",
			Path:        "data/snapshots.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "marketdata:",
			Postgres:    pgstore.Config{Host: "localhost", Port: 5432, Name: "marketdata", User: "postgres", MaxConns: 4},
		},
		Log: Log{Level: "info"},
	}
}

// Load reads config from path, choosing JSON or YAML by extension. YAML
// files get ${VAR} expansion. If path is empty it looks for config.yaml,
// then config.json, and falls back to defaults. A .env file in the working
// directory is loaded first; environment variables override select fields.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		for _, p := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// LoadAndValidate loads config and validates it.
func LoadAndValidate(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if p, err := strconv.Atoi(c.Server.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("server.port: invalid port %q", c.Server.Port)
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url: required")
	}
	for name, v := range map[string]int{
		"upstream.top_timeout_sec":     c.Upstream.TopTimeoutSec,
		"upstream.detail_timeout_sec":  c.Upstream.DetailTimeoutSec,
		"upstream.series_timeout_sec":  c.Upstream.SeriesTimeoutSec,
		"sync.freshness_sec":           c.Sync.FreshnessSec,
		"sync.persistence_max_age_sec": c.Sync.PersistenceMaxAgeSec,
		"sync.poll_interval_sec":       c.Sync.PollIntervalSec,
		"sync.cooldown_sec":            c.Sync.CooldownSec,
	} {
		if v <= 0 {
			return fmt.Errorf("%s: must be positive, got %d", name, v)
		}
	}
	if !drivers[c.Store.Driver] {
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if (c.Store.Driver == "sqlite" || c.Store.Driver == "file") && c.Store.Path == "" {
		return fmt.Errorf("store.path: required for %s driver", c.Store.Driver)
	}
	return nil
}

// SlogLevel maps log.level to a slog.Level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec, 1)

	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("UPSTREAM_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	envInt("UPSTREAM_MAX_RPM", &cfg.Upstream.MaxRequestsPerMinute, 0)
	envInt("UPSTREAM_BURST", &cfg.Upstream.Burst, 1)
	envInt("UPSTREAM_MIN_INTERVAL_SEC", &cfg.Upstream.MinRequestIntervalSec, 0)

	envInt("SYNC_FRESHNESS_SEC", &cfg.Sync.FreshnessSec, 1)
	envInt("SYNC_PERSISTENCE_MAX_AGE_SEC", &cfg.Sync.PersistenceMaxAgeSec, 1)
	envInt("SYNC_POLL_INTERVAL_SEC", &cfg.Sync.PollIntervalSec, 1)
	envInt("SYNC_COOLDOWN_SEC", &cfg.Sync.CooldownSec, 1)

	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Store.RedisPassword = v
	}
	envInt("REDIS_DB", &cfg.Store.RedisDB, 0)
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Store.Postgres.Host = v
	}
	envInt("DB_PORT", &cfg.Store.Postgres.Port, 1)
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Store.Postgres.Name = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Store.Postgres.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Store.Postgres.Password = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.Store.Postgres.SSLMode = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// envInt sets *dst from the integer env var key when it parses and is at
// least floor.
func envInt(key string, dst *int, floor int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	x, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || x < floor {
		return
	}
	*dst = x
}
