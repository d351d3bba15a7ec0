package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Session  SessionConfig  `yaml:"session"`
	Engine   EngineConfig   `yaml:"engine"`
	Store    StoreConfig    `yaml:"store"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
}

type SessionConfig struct {
	WarningThreshold time.Duration `yaml:"warning_threshold"`
	TimeoutThreshold time.Duration `yaml:"timeout_threshold"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	NoticeTTL        time.Duration `yaml:"notice_ttl"`
}

type EngineConfig struct {
	Backend     string  `yaml:"backend"` // "openai" or "mock"
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables in the YAML
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}

	switch c.Engine.Backend {
	case "":
		c.Engine.Backend = "openai"
	case "openai", "mock":
	default:
		return fmt.Errorf("engine.backend must be \"openai\" or \"mock\", got %q", c.Engine.Backend)
	}
	if c.Engine.Backend == "openai" && c.Engine.APIKey == "" {
		return fmt.Errorf("engine.api_key is required")
	}

	// Apply defaults
	if c.Session.WarningThreshold == 0 {
		c.Session.WarningThreshold = 20 * time.Minute
	}
	if c.Session.TimeoutThreshold == 0 {
		c.Session.TimeoutThreshold = 30 * time.Minute
	}
	if c.Session.SweepInterval == 0 {
		c.Session.SweepInterval = time.Minute
	}
	if c.Session.NoticeTTL == 0 {
		c.Session.NoticeTTL = 5 * time.Minute
	}
	if c.Engine.Model == "" {
		c.Engine.Model = "gpt-4o-mini"
	}
	if c.Engine.MaxTokens == 0 {
		c.Engine.MaxTokens = 1024
	}
	if c.Store.DBPath == "" {
		c.Store.DBPath = "questline.db"
	}

	if c.Session.WarningThreshold >= c.Session.TimeoutThreshold {
		return fmt.Errorf("session.warning_threshold must be below session.timeout_threshold")
	}

	return nil
}
