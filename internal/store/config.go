package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL   = "https://www.jubi.com"
	DefaultUserAgent = "Jubi_iPhone_V1.9.8.7"
	DefaultMinValue  = 5.0
)

type Config struct {
	BaseURL               string            `yaml:"base_url"`
	PollSeconds           int               `yaml:"poll_seconds"`
	MinValue              *float64          `yaml:"min_value"`
	CookiePath            string            `yaml:"cookie_path"`
	UserAgent             string            `yaml:"user_agent"`
	TradePageSize         int               `yaml:"trade_page_size"`
	RequestRate           float64           `yaml:"request_rate"`
	RequestTimeoutSeconds int               `yaml:"request_timeout_seconds"`
	Credentials           map[string]string `yaml:"credentials"`
	Retry                 struct {
		MaxAttempts   int `yaml:"max_attempts"`
		InitialWaitMS int `yaml:"initial_wait_ms"`
		MaxWaitMS     int `yaml:"max_wait_ms"`
	} `yaml:"retry"`
	Display struct {
		Color      bool `yaml:"color"`
		HideFooter bool `yaml:"hide_footer"`
	} `yaml:"display"`
	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
	CostCache struct {
		Dir        string `yaml:"dir"`
		TTLMinutes int    `yaml:"ttl_minutes"`
	} `yaml:"cost_cache"`
	History struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"history"`
}

// MinHoldingValue is the balance × price a coin must exceed to be shown.
// An explicit 0 shows every priced coin with a positive balance.
func (c *Config) MinHoldingValue() float64 {
	if c.MinValue == nil {
		return DefaultMinValue
	}
	return *c.MinValue
}

// PollInterval is the pause between the end of one pass and the start of the next.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) RetryInitialWait() time.Duration {
	return time.Duration(c.Retry.InitialWaitMS) * time.Millisecond
}

func (c *Config) RetryMaxWait() time.Duration {
	return time.Duration(c.Retry.MaxWaitMS) * time.Millisecond
}

// CostCacheTTL is zero when the persistent cost cache is disabled.
func (c *Config) CostCacheTTL() time.Duration {
	if c.CostCache.Dir == "" {
		return 0
	}
	return time.Duration(c.CostCache.TTLMinutes) * time.Minute
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url cannot be empty")
	}
	if c.PollSeconds <= 0 {
		return fmt.Errorf("poll_seconds must be positive, got %d", c.PollSeconds)
	}
	if c.MinHoldingValue() < 0 {
		return fmt.Errorf("min_value cannot be negative, got %.2f", c.MinHoldingValue())
	}
	if c.CookiePath == "" {
		return errors.New("cookie_path cannot be empty")
	}
	if c.TradePageSize <= 0 || c.TradePageSize > 100 {
		return fmt.Errorf("trade_page_size must be between 1-100, got %d", c.TradePageSize)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.MaxWaitMS < c.Retry.InitialWaitMS {
		return fmt.Errorf("retry.max_wait_ms (%d) is below retry.initial_wait_ms (%d)", c.Retry.MaxWaitMS, c.Retry.InitialWaitMS)
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days cannot be negative, got %d", c.History.RetentionDays)
	}
	if c.CostCache.Dir != "" && c.CostCache.TTLMinutes <= 0 {
		return errors.New("cost_cache.ttl_minutes must be positive when cost_cache.dir is set")
	}
	return nil
}

// applyDefaults fills every unset field.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 5
	}
	if c.MinValue == nil {
		minValue := DefaultMinValue
		c.MinValue = &minValue
	}
	if c.CookiePath == "" {
		c.CookiePath = "./cookie"
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.TradePageSize == 0 {
		c.TradePageSize = 100
	}
	if c.RequestRate == 0 {
		c.RequestRate = 5
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 30
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.InitialWaitMS == 0 {
		c.Retry.InitialWaitMS = 250
	}
	if c.Retry.MaxWaitMS == 0 {
		c.Retry.MaxWaitMS = 4000
	}
}

// Default returns a validated config with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadConfig reads path, expands ${VAR} references in credential values and
// applies defaults. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()
	for k, v := range c.Credentials {
		c.Credentials[k] = os.ExpandEnv(v)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
