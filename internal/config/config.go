package config

import (
	"errors"
	"fmt"
	"os"

	"syncengine/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Worker     WorkerConfig     `yaml:"worker"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Providers  ProvidersConfig  `yaml:"providers"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type WebhookConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	RateLimit RateLimitConfig   `yaml:"rate_limit"`
	Secrets   map[string]string `yaml:"secrets"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Interval and timeout values are plain seconds in the yaml file.
type WorkerConfig struct {
	Enabled      bool `yaml:"enabled"`
	PollInterval int  `yaml:"poll_interval"`
	BatchSize    int  `yaml:"batch_size"`
	MaxRetries   int  `yaml:"max_retries"`
	StaleAfter   int  `yaml:"stale_after"`
}

type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	Timeout          int `yaml:"timeout"`
}

type ProvidersConfig struct {
	CredentialsTTL int            `yaml:"credentials_ttl"`
	CalCom         ProviderConfig `yaml:"calcom"`
	Calendly       ProviderConfig `yaml:"calendly"`
	GHL            ProviderConfig `yaml:"ghl"`
}

type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; ignore a missing file but surface parse errors.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Expand ${VARS} before parsing so secrets stay out of the yaml file.
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Webhook.Enabled && c.Webhook.Port == 0 {
		return errors.New("webhook port is required when webhook server is enabled")
	}
	if c.Worker.MaxRetries < 0 {
		return errors.New("worker max_retries must not be negative")
	}
	if c.Breaker.FailureThreshold < 1 {
		return errors.New("breaker failure_threshold must be at least 1")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "syncengine"
	}

	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = models.DefaultPollInterval
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = models.DefaultBatchSize
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = models.DefaultMaxRetries
	}
	if c.Worker.StaleAfter == 0 {
		c.Worker.StaleAfter = models.DefaultStaleAfter
	}

	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = models.DefaultFailureThreshold
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = models.DefaultBreakerTimeout
	}

	if c.Providers.CredentialsTTL == 0 {
		c.Providers.CredentialsTTL = models.DefaultCredentialsTTL
	}
	for _, p := range []*ProviderConfig{&c.Providers.CalCom, &c.Providers.Calendly, &c.Providers.GHL} {
		if p.Timeout == 0 {
			p.Timeout = models.DefaultAdapterTimeout
		}
	}

	if c.Webhook.Port == 0 {
		c.Webhook.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
