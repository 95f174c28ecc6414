package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Partner  PartnerConfig  `yaml:"partner"`
	Export   ExportConfig   `yaml:"export"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	LogLevel string         `yaml:"log_level"`
}

type PartnerConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type BreakerConfig struct {
	MaxRequests uint32        `yaml:"max_requests"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ExportConfig struct {
	PollInterval          time.Duration `yaml:"poll_interval"`
	PollTimeout           time.Duration `yaml:"poll_timeout"`
	ActivationConcurrency int           `yaml:"activation_concurrency"`
	ActivationTimeout     time.Duration `yaml:"activation_timeout"`
	HistorySize           int           `yaml:"history_size"`
	CredentialCacheTTL    time.Duration `yaml:"credential_cache_ttl"`
}

// RabbitMQConfig configures the optional run-report publisher. Publishing
// is disabled when URL is empty.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Partner.Timeout == 0 {
		c.Partner.Timeout = 30 * time.Second
	}
	if c.Partner.Retry.MaxAttempts == 0 {
		c.Partner.Retry.MaxAttempts = 3
	}
	if c.Partner.Retry.InitialBackoff == 0 {
		c.Partner.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Partner.Retry.MaxBackoff == 0 {
		c.Partner.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Partner.Breaker.MaxRequests == 0 {
		c.Partner.Breaker.MaxRequests = 3
	}
	if c.Partner.Breaker.Interval == 0 {
		c.Partner.Breaker.Interval = 60 * time.Second
	}
	if c.Partner.Breaker.Timeout == 0 {
		c.Partner.Breaker.Timeout = 30 * time.Second
	}
	if c.Export.PollInterval == 0 {
		c.Export.PollInterval = 2 * time.Second
	}
	if c.Export.PollTimeout == 0 {
		c.Export.PollTimeout = 10 * time.Minute
	}
	if c.Export.ActivationConcurrency == 0 {
		c.Export.ActivationConcurrency = 5
	}
	if c.Export.ActivationTimeout == 0 {
		c.Export.ActivationTimeout = 30 * time.Second
	}
	if c.Export.HistorySize == 0 {
		c.Export.HistorySize = 20
	}
	if c.Export.CredentialCacheTTL == 0 {
		c.Export.CredentialCacheTTL = 3 * time.Minute
	}
	if c.RabbitMQ.URL != "" {
		if c.RabbitMQ.Exchange == "" {
			c.RabbitMQ.Exchange = "listing_syndicator"
		}
		if c.RabbitMQ.RoutingKey == "" {
			c.RabbitMQ.RoutingKey = "run_reports"
		}
		if c.RabbitMQ.QueueName == "" {
			c.RabbitMQ.QueueName = "console_run_reports"
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
