package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Kafka      KafkaConfig      `yaml:"kafka"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Engine     EngineConfig     `yaml:"engine"`
	Recipients RecipientsConfig `yaml:"recipients"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	API        APIConfig        `yaml:"api"`
}

type KafkaConfig struct {
	Brokers          []string `yaml:"brokers"`
	IntakeTopic      string   `yaml:"intake_topic"`
	ConnectorTopic   string   `yaml:"connector_topic"`
	ReturnTopic      string   `yaml:"return_topic"`
	ConsumerGroup    string   `yaml:"consumer_group"`
	OutcomeGroup     string   `yaml:"outcome_group"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type EngineConfig struct {
	// AckMode is "post" (acknowledge after processing, synchronous) or
	// "pre" (acknowledge first, process on a bounded worker pool).
	AckMode          string        `yaml:"ack_mode"`
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
	DrainTimeout     time.Duration `yaml:"drain_timeout"`
	MaxReinjections  int           `yaml:"max_reinjections"`
	WebhookTimeout   time.Duration `yaml:"webhook_timeout"`
}

type RecipientsConfig struct {
	// BaseURL points at the external user directory service.
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	Timeout        time.Duration `yaml:"timeout"`
	PageSize       int           `yaml:"page_size"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

type AggregatorConfig struct {
	// Schedule is a cron expression; every 15 minutes by default so the run
	// can snap to the quarter-hour boundary it was meant for.
	Schedule          string `yaml:"schedule"`
	DefaultDigestTime string `yaml:"default_digest_time"`
	CompareLegacyScan bool   `yaml:"compare_legacy_scan"`
}

type APIConfig struct {
	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	overrideFromEnv(cfg)
	return cfg, nil
}

// LoadOrDefault is used by mains where a missing config file should fall back
// to defaults plus environment overrides.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = defaults()
		overrideFromEnv(cfg)
	}
	return cfg
}

func defaults() *Config {
	return &Config{
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			IntakeTopic:    "hermes.ingress",
			ConnectorTopic: "hermes.connector.out",
			ReturnTopic:    "hermes.connector.return",
			ConsumerGroup:  "hermes-engine",
			OutcomeGroup:   "hermes-outcome",
		},
		Engine: EngineConfig{
			AckMode:         "post",
			Workers:         8,
			QueueSize:       256,
			DrainTimeout:    30 * time.Second,
			MaxReinjections: 3,
			WebhookTimeout:  60 * time.Second,
		},
		Recipients: RecipientsConfig{
			BaseURL:        "http://localhost:8086",
			Timeout:        10 * time.Second,
			PageSize:       1000,
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     time.Second,
			CacheTTL:       10 * time.Minute,
		},
		Aggregator: AggregatorConfig{
			Schedule:          "0,15,30,45 * * * *",
			DefaultDigestTime: "00:00",
		},
		API: APIConfig{
			Addr:      ":3000",
			RateLimit: 20,
			RateBurst: 40,
		},
	}
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("KAFKA_BROKER"); v != "" {
		cfg.Kafka.Brokers = []string{v}
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("ENGINE_ACK_MODE"); v != "" {
		cfg.Engine.AckMode = v
	}
	if v := os.Getenv("RECIPIENTS_BASE_URL"); v != "" {
		cfg.Recipients.BaseURL = v
	}
	if v := os.Getenv("RECIPIENTS_TOKEN"); v != "" {
		cfg.Recipients.Token = v
	}
}
