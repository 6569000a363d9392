package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		MaxGraphElements int    `toml:"max_graph_elements" yaml:"max_graph_elements"`
		PollEverySec     int    `toml:"poll_every_sec" yaml:"poll_every_sec"`
		ChartEverySec    int    `toml:"chart_every_sec" yaml:"chart_every_sec"`
		LogLevel         string `toml:"log_level" yaml:"log_level"`
	} `toml:"app" yaml:"app"`

	// 没有持久化列表时的初始 symbol
	Symbols struct {
		List []string `toml:"list" yaml:"list"`
	} `toml:"symbols" yaml:"symbols"`

	API struct {
		RestURL string `toml:"rest_url" yaml:"rest_url"`
		WsURL   string `toml:"ws_url" yaml:"ws_url"`
		APIKey  string `toml:"api_key" yaml:"api_key"`
	} `toml:"api" yaml:"api"`

	Stream struct {
		ReconnectMaxRetries int `toml:"reconnect_max_retries" yaml:"reconnect_max_retries"`
		InitialDelayMs      int `toml:"initial_delay_ms" yaml:"initial_delay_ms"`
		MaxDelayMs          int `toml:"max_delay_ms" yaml:"max_delay_ms"`
		PortBuffer          int `toml:"port_buffer" yaml:"port_buffer"`
	} `toml:"stream" yaml:"stream"`

	Storage struct {
		SQLite struct {
			Enabled bool   `toml:"enabled" yaml:"enabled"`
			Path    string `toml:"path" yaml:"path"`
		} `toml:"sqlite" yaml:"sqlite"`

		Redis struct {
			Enabled    bool   `toml:"enabled" yaml:"enabled"`
			Addr       string `toml:"addr" yaml:"addr"`
			Password   string `toml:"password" yaml:"password"`
			DB         int    `toml:"db" yaml:"db"`
			Prefix     string `toml:"prefix" yaml:"prefix"`
			TTLSeconds int    `toml:"ttl_seconds" yaml:"ttl_seconds"`
		} `toml:"redis" yaml:"redis"`

		Postgres struct {
			Enabled bool   `toml:"enabled" yaml:"enabled"`
			DSN     string `toml:"dsn" yaml:"dsn"`
		} `toml:"postgres" yaml:"postgres"`
	} `toml:"storage" yaml:"storage"`
}

// Load 按扩展名解析 .toml / .yaml / .yml
func Load(path string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 不读文件时使用的配置（仅内存存储）
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TICKERWATCH_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.MaxGraphElements <= 0 {
		cfg.App.MaxGraphElements = 20
	}
	if cfg.App.PollEverySec < 0 {
		cfg.App.PollEverySec = 0
	}
	if cfg.App.ChartEverySec <= 0 {
		cfg.App.ChartEverySec = 60
	}
	if strings.TrimSpace(cfg.App.LogLevel) == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Stream.ReconnectMaxRetries < 0 {
		cfg.Stream.ReconnectMaxRetries = 0
	}
	if cfg.Stream.InitialDelayMs <= 0 {
		cfg.Stream.InitialDelayMs = 500
	}
	if cfg.Stream.MaxDelayMs <= 0 {
		cfg.Stream.MaxDelayMs = 10000
	}
	if cfg.Stream.PortBuffer <= 0 {
		cfg.Stream.PortBuffer = 256
	}
	if cfg.Storage.SQLite.Enabled && strings.TrimSpace(cfg.Storage.SQLite.Path) == "" {
		cfg.Storage.SQLite.Path = "data/tickerwatch.db"
	}
	if strings.TrimSpace(cfg.Storage.Redis.Prefix) == "" {
		cfg.Storage.Redis.Prefix = "tickerwatch"
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)

	if cfg.Stream.MaxDelayMs < cfg.Stream.InitialDelayMs {
		return errors.New("stream.max_delay_ms must be >= stream.initial_delay_ms")
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	return nil
}

// PollEvery 0 表示关闭轮询
func (c *Config) PollEvery() time.Duration {
	return time.Duration(c.App.PollEverySec) * time.Second
}

func (c *Config) ChartEvery() time.Duration {
	return time.Duration(c.App.ChartEverySec) * time.Second
}

func (c *Config) InitialDelay() time.Duration {
	return time.Duration(c.Stream.InitialDelayMs) * time.Millisecond
}

func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Stream.MaxDelayMs) * time.Millisecond
}

func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Storage.Redis.TTLSeconds) * time.Second
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
