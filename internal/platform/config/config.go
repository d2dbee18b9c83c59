package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration. Values come from the
// environment so main stays lean.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration

	PostgresDSN string
	Redis       RedisConfig
	Kafka       KafkaConfig

	SearchURL      string
	EventConfigURL string
	DocumentsURL   string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

// RedisConfig carries Redis connection settings. An empty URL disables Redis
// and the config cache runs on its local tier only.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig carries broker addresses and the action-log topic. Empty
// brokers disable the read-model stream.
type KafkaConfig struct {
	Brokers       []string
	ActionsTopic  string
	ConsumerGroup string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("CIVREG_ADDR", ":8080"),
		ShutdownTimeout: 10 * time.Second,
		PostgresDSN:     os.Getenv("CIVREG_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("CIVREG_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			ActionsTopic:  envOr("CIVREG_KAFKA_ACTIONS_TOPIC", "civreg.actions"),
			ConsumerGroup: envOr("CIVREG_KAFKA_CONSUMER_GROUP", "civreg-indexer"),
		},
		SearchURL:      os.Getenv("CIVREG_SEARCH_URL"),
		EventConfigURL: os.Getenv("CIVREG_EVENT_CONFIG_URL"),
		DocumentsURL:   os.Getenv("CIVREG_DOCUMENTS_URL"),
		JWTSigningKey:  envOr("CIVREG_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:      envOr("CIVREG_JWT_ISSUER", "civreg"),
		JWTAudience:    envOr("CIVREG_JWT_AUDIENCE", "civreg-api"),
	}
	if brokers := os.Getenv("CIVREG_KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, strings.TrimSpace(broker))
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
