package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"

	LockDriverMemory = "memory"
	LockDriverRedis  = "redis"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" envDefault:"fern-api"`
	Version                       string   `env:"APP_VERSION" envDefault:"dev"`
	Port                          int      `env:"PORT" envDefault:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" envDefault:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" envDefault:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" envDefault:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" envDefault:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" envDefault:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" envDefault:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" envDefault:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" envDefault:"GET,POST,PUT,DELETE"`
	ShutdownTimeoutSeconds        int      `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"15"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" envDefault:"5"`

	// Storage
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	// PostgreSQL
	DatabaseHost                  string        `env:"DB_HOST" envDefault:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" envDefault:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" envDefault:""`
	DatabasePassword              string        `env:"DB_PASSWORD" envDefault:""`
	DatabaseName                  string        `env:"DB_NAME" envDefault:"fern"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" envDefault:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" envDefault:"db/pg"`
	DatabaseMigrationVersion      uint          `env:"DB_MIGRATION_VERSION" envDefault:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" envDefault:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" envDefault:"true"`

	// Identity lock
	LockDriver      string        `env:"LOCK_DRIVER" envDefault:"redis"`
	LockTTL         time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	LockWaitTimeout time.Duration `env:"LOCK_WAIT_TIMEOUT" envDefault:"10s"`
	LockKeyPrefix   string        `env:"LOCK_KEY_PREFIX" envDefault:"fern:lock:"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Resolution
	TieBreakPolicy      string        `env:"TIE_BREAK_POLICY" envDefault:"last_write_wins"`
	ResolveMaxAttempts  int           `env:"RESOLVE_MAX_ATTEMPTS" envDefault:"5"`
	ResolveRetryBackoff time.Duration `env:"RESOLVE_RETRY_BACKOFF" envDefault:"10ms"`
	TrustRulesFile      string        `env:"TRUST_RULES_FILE" envDefault:""`
	TrustRuleCacheTTL   time.Duration `env:"TRUST_RULE_CACHE_TTL" envDefault:"30s"`

	// Kafka consumer (raw payloads)
	KafkaBrokers         []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaConsumerEnabled bool          `env:"KAFKA_CONSUMER_ENABLED" envDefault:"false"`
	KafkaInputTopic      string        `env:"KAFKA_INPUT_TOPIC" envDefault:"raw-payloads"`
	KafkaConsumerGroup   string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"fern"`
	KafkaConsumerMaxWait time.Duration `env:"KAFKA_CONSUMER_MAX_WAIT" envDefault:"500ms"`
	KafkaDeadLetterTopic string        `env:"KAFKA_DEAD_LETTER_TOPIC" envDefault:""`

	// Kafka producer (golden record events)
	KafkaProducerEnabled bool   `env:"KAFKA_PRODUCER_ENABLED" envDefault:"false"`
	KafkaOutputTopic     string `env:"KAFKA_OUTPUT_TOPIC" envDefault:"golden-records"`
	KafkaBatchSize       int    `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	KafkaBatchTimeoutMS  int    `env:"KAFKA_BATCH_TIMEOUT_MS" envDefault:"10"`
	KafkaRequiredAcks    int    `env:"KAFKA_REQUIRED_ACKS" envDefault:"1"`
	KafkaCompression     string `env:"KAFKA_COMPRESSION" envDefault:"snappy"`

	// Graph database
	GraphEnabled    bool   `env:"GRAPH_ENABLED" envDefault:"false"`
	GraphDBURI      string `env:"GRAPH_DB_URI" envDefault:"bolt://localhost:7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" envDefault:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" envDefault:""`
	GraphDBName     string `env:"GRAPH_DB_NAME" envDefault:""`

	// Tracing
	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTLPProtocol    string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"http"`
	OTLPInsecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTLPSampleRatio float64 `env:"OTEL_TRACES_SAMPLE_RATIO" envDefault:"1"`
}

// Load reads a .env file when one exists, then parses the environment
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects driver names and limits the service cannot run with
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverMemory, StoreDriverPostgres:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.LockDriver {
	case LockDriverMemory, LockDriverRedis:
	default:
		return fmt.Errorf("unknown LOCK_DRIVER %q", c.LockDriver)
	}
	switch c.OTLPProtocol {
	case "http", "grpc":
	default:
		return fmt.Errorf("unknown OTEL_EXPORTER_OTLP_PROTOCOL %q", c.OTLPProtocol)
	}
	if c.ResolveMaxAttempts < 1 {
		return fmt.Errorf("RESOLVE_MAX_ATTEMPTS must be at least 1")
	}
	if c.KafkaDeadLetterTopic != "" && c.KafkaDeadLetterTopic == c.KafkaInputTopic {
		return fmt.Errorf("KAFKA_DEAD_LETTER_TOPIC must differ from KAFKA_INPUT_TOPIC")
	}
	return nil
}
