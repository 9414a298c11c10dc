package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ClickConfig struct {
	ServiceID      string `yaml:"service_id"`
	MerchantID     string `yaml:"merchant_id"`
	MerchantUserID string `yaml:"merchant_user_id"`
	SecretKey      string `yaml:"secret_key"`
	TestMode       bool   `yaml:"test_mode"`
}

type PaymeConfig struct {
	PaymeID      string `yaml:"payme_id"`
	PaymeKey     string `yaml:"payme_key"`
	AccountField string `yaml:"account_field"` // checkout account key, default "order_id"
	TestMode     bool   `yaml:"test_mode"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Click    ClickConfig    `yaml:"click"`
	Payme    PaymeConfig    `yaml:"payme"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets deployments keep secrets out of the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("CLICK_SECRET_KEY"); v != "" {
		c.Click.SecretKey = v
	}
	if v := os.Getenv("PAYME_KEY"); v != "" {
		c.Payme.PaymeKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 10 * time.Second
	}
	if c.Payme.AccountField == "" {
		c.Payme.AccountField = "order_id"
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required")
	}
	if c.Click.ServiceID == "" || c.Click.SecretKey == "" {
		return fmt.Errorf("config: click.service_id and click.secret_key are required")
	}
	if c.Payme.PaymeID == "" || c.Payme.PaymeKey == "" {
		return fmt.Errorf("config: payme.payme_id and payme.payme_key are required")
	}
	return nil
}
