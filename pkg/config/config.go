package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"Watchdog/internal/services/anomaly"
	"Watchdog/internal/services/fragility"
	"Watchdog/internal/services/manipulation"
	"Watchdog/internal/services/pressure"
	"Watchdog/internal/services/router"
	"Watchdog/pkg/logger"
	"Watchdog/pkg/util"
)

type Config struct {
	App          AppConfig      `yaml:"app"`
	Symbols      []string       `yaml:"symbols" env:"WATCHDOG_SYMBOLS" envSeparator:"," validate:"min=1,dive,required"`
	ScanInterval time.Duration  `yaml:"scan_interval" env:"WATCHDOG_SCAN_INTERVAL" validate:"gte=100ms"`
	Log          logger.Config  `yaml:"log"`
	HTTP         HTTPConfig     `yaml:"http"`
	Kafka        KafkaConfig    `yaml:"kafka"`
	Redis        RedisConfig    `yaml:"redis"`
	Cache        CacheConfig    `yaml:"cache"`
	Ingest       IngestConfig   `yaml:"ingest"`
	Feed         FeedConfig     `yaml:"feed"`
	Watchdog     WatchdogConfig `yaml:"watchdog"`

	Pressure     pressure.Config     `yaml:"pressure"`
	Anomaly      anomaly.Config      `yaml:"anomaly"`
	Fragility    fragility.Config    `yaml:"fragility"`
	Manipulation manipulation.Config `yaml:"manipulation"`
	Router       router.Config       `yaml:"router"`
}

type AppConfig struct {
	Name        string `yaml:"name" validate:"required"`
	Environment string `yaml:"environment" env:"WATCHDOG_ENV" validate:"oneof=development staging production"`
}

type HTTPConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" env:"HTTP_PORT" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	CORS            bool          `yaml:"cors"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled" env:"KAFKA_ENABLED"`
	Brokers       []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:"," validate:"required_if=Enabled true"`
	SnapshotTopic string   `yaml:"snapshot_topic" validate:"required_if=Enabled true"`
	AlertTopic    string   `yaml:"alert_topic" validate:"required_if=Enabled true"`
	RequiredAcks  int      `yaml:"required_acks" validate:"oneof=-1 0 1"`
	Compression   string   `yaml:"compression" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer      struct {
		MaxAttempts  int           `yaml:"max_attempts"`
		BatchSize    int           `yaml:"batch_size"`
		BatchBytes   int           `yaml:"batch_bytes"`
		Linger       time.Duration `yaml:"linger"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id"`
		Workers    int           `yaml:"workers" validate:"gte=1"`
		BufferSize int           `yaml:"buffer_size" validate:"gte=1"`
		RetryMax   int           `yaml:"retry_max" validate:"gte=0"`
		BackoffMin time.Duration `yaml:"backoff_min"`
		BackoffMax time.Duration `yaml:"backoff_max"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes"`
		MaxBytes   int           `yaml:"max_bytes"`
	} `yaml:"consumer"`
}

type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST"`
	Port     int    `yaml:"port" env:"REDIS_PORT"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	PoolSize int    `yaml:"pool_size"`
}

type CacheConfig struct {
	// Type selects the synthesis store backend.
	Type         string        `yaml:"type" env:"CACHE_TYPE" validate:"oneof=memory redis layered"`
	MaxSize      int           `yaml:"max_size" validate:"gte=1"`
	SynthesisTTL time.Duration `yaml:"synthesis_ttl" validate:"gt=0"`
	L1TTL        time.Duration `yaml:"l1_ttl"`
}

type IngestConfig struct {
	Type   string  `yaml:"type" env:"INGEST_TYPE" validate:"oneof=none kafka websocket"`
	MaxRPS float64 `yaml:"max_rps" validate:"gte=0"`
	Burst  int     `yaml:"burst" validate:"gte=0"`
	// BufferSize bounds the retry buffer for snapshots the watchdog rejected.
	BufferSize int `yaml:"buffer_size" validate:"gte=1"`
}

type FeedConfig struct {
	URL            string        `yaml:"url" env:"FEED_URL"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// WatchdogConfig holds orchestrator thresholds for turning detector output into alerts.
type WatchdogConfig struct {
	PressureAlertScore    float64 `yaml:"pressure_alert_score" validate:"gte=0,lte=100"`
	AnomalyAlertSeverity  string  `yaml:"anomaly_alert_severity" validate:"oneof=low medium high critical"`
	ManipulationSeverity  string  `yaml:"manipulation_alert_severity" validate:"oneof=low medium high critical"`
	NarrativeMaxLength    int     `yaml:"narrative_max_length" validate:"gte=40"`
	NarrativeLength       string  `yaml:"narrative_length" validate:"oneof=brief standard detailed"`
	PublishDeliveries     bool    `yaml:"publish_deliveries"`
	WebSocketAlertsBuffer int     `yaml:"websocket_alerts_buffer" validate:"gte=1"`
}

// Default returns a configuration that runs standalone: in-memory cache,
// HTTP ingest only, no Kafka.
func Default() *Config {
	c := &Config{
		App:          AppConfig{Name: "watchdog", Environment: "development"},
		Symbols:      []string{"BTC"},
		ScanInterval: 5 * time.Second,
		Log:          logger.Config{Level: "info", Format: "console", Output: "stdout", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 7},
		HTTP: HTTPConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORS:            true,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			SnapshotTopic: "watchdog.snapshots",
			AlertTopic:    "watchdog.alerts",
			RequiredAcks:  -1,
			Compression:   "snappy",
		},
		Redis:  RedisConfig{Host: "localhost", Port: 6379, Prefix: "watchdog", PoolSize: 10},
		Cache:  CacheConfig{Type: "memory", MaxSize: 1000, SynthesisTTL: 10 * time.Minute, L1TTL: 30 * time.Second},
		Ingest: IngestConfig{Type: "none", MaxRPS: 20, Burst: 40, BufferSize: 256},
		Feed:   FeedConfig{ReconnectDelay: 3 * time.Second, PingInterval: 30 * time.Second, ReadTimeout: 60 * time.Second},
		Watchdog: WatchdogConfig{
			PressureAlertScore:    70,
			AnomalyAlertSeverity:  "high",
			ManipulationSeverity:  "medium",
			NarrativeMaxLength:    400,
			NarrativeLength:       "standard",
			PublishDeliveries:     true,
			WebSocketAlertsBuffer: 64,
		},
		Pressure:     pressure.DefaultConfig(),
		Anomaly:      anomaly.DefaultConfig(),
		Fragility:    fragility.DefaultConfig(),
		Manipulation: manipulation.DefaultConfig(),
		Router:       router.DefaultConfig(),
	}
	c.Kafka.Producer.MaxAttempts = 5
	c.Kafka.Producer.BatchSize = 100
	c.Kafka.Producer.BatchBytes = 1 << 20
	c.Kafka.Producer.Linger = 20 * time.Millisecond
	c.Kafka.Producer.WriteTimeout = 10 * time.Second
	c.Kafka.Producer.ReadTimeout = 10 * time.Second
	c.Kafka.Consumer.GroupID = "watchdog"
	c.Kafka.Consumer.Workers = 4
	c.Kafka.Consumer.BufferSize = 256
	c.Kafka.Consumer.RetryMax = 3
	c.Kafka.Consumer.BackoffMin = 100 * time.Millisecond
	c.Kafka.Consumer.BackoffMax = 2 * time.Second
	c.Kafka.Consumer.DLQTopic = "watchdog.snapshots.dlq"
	c.Kafka.Consumer.MinBytes = 1
	c.Kafka.Consumer.MaxBytes = 10 << 20
	return c
}

// Load overlays the YAML file at path on Default, applies environment
// overrides and validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and every detector section.
func (c *Config) Validate() error {
	if err := util.ValidateStruct(c); err != nil {
		return err
	}
	if c.Ingest.Type == "kafka" && !c.Kafka.Enabled {
		return errors.New("ingest.type kafka requires kafka.enabled")
	}
	if c.Ingest.Type == "websocket" && c.Feed.URL == "" {
		return errors.New("ingest.type websocket requires feed.url")
	}
	if (c.Cache.Type == "redis" || c.Cache.Type == "layered") && c.Redis.Host == "" {
		return errors.New("cache.type " + c.Cache.Type + " requires redis.host")
	}
	for _, v := range []interface{ Validate() error }{c.Pressure, c.Anomaly, c.Fragility, c.Manipulation, c.Router} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
