package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Поддерживаемые хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Поддерживаемые брокеры для публикации outbox.
const (
	BrokerNone     = "none"
	BrokerKafka    = "kafka"
	BrokerRabbitMQ = "rabbitmq"
)

// Config описывает настройки запуска сервиса очередей.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// SeedFile указывает YAML с магазинами, меню, очередями и клиентами. SeedDemo грузит встроенный набор.
	SeedFile string
	SeedDemo bool

	OutboxBroker       string
	KafkaBrokers       []string
	RabbitMQURL        string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxAge       time.Duration

	JWTSecret  string
	StaffToken string

	// IdempotencyCleanupInterval задаёт период удаления просроченных Idempotency-Key, 0 отключает очистку.
	IdempotencyCleanupInterval time.Duration

	LogLevel log.Level
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		SeedDemo:            true,
		OutboxBroker:        BrokerNone,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxAge:        5 * time.Minute,

		IdempotencyCleanupInterval: time.Minute,
		LogLevel:            log.InfoLevel,
	}
}

// LoadConfigFromEnv накладывает переменные SHOPQUEUE_* на DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	setString(&cfg.HTTPAddr, "SHOPQUEUE_HTTP_ADDR")
	setString(&cfg.GRPCAddr, "SHOPQUEUE_GRPC_ADDR")
	setString(&cfg.MetricsAddr, "SHOPQUEUE_METRICS_ADDR")
	setString(&cfg.StorageDriver, "SHOPQUEUE_STORAGE_DRIVER")
	setString(&cfg.PostgresDSN, "SHOPQUEUE_POSTGRES_DSN")
	setString(&cfg.SeedFile, "SHOPQUEUE_SEED_FILE")
	setString(&cfg.OutboxBroker, "SHOPQUEUE_OUTBOX_BROKER")
	setString(&cfg.RabbitMQURL, "SHOPQUEUE_RABBITMQ_URL")
	setString(&cfg.JWTSecret, "SHOPQUEUE_JWT_SECRET")
	setString(&cfg.StaffToken, "SHOPQUEUE_STAFF_TOKEN")

	if v := env("SHOPQUEUE_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}

	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	collect(setBool(&cfg.PostgresAutoMigrate, "SHOPQUEUE_POSTGRES_AUTO_MIGRATE"))
	collect(setBool(&cfg.SeedDemo, "SHOPQUEUE_SEED_DEMO"))
	collect(setDuration(&cfg.OutboxPollInterval, "SHOPQUEUE_OUTBOX_POLL_INTERVAL"))
	collect(setInt(&cfg.OutboxBatchSize, "SHOPQUEUE_OUTBOX_BATCH_SIZE"))
	collect(setInt(&cfg.OutboxMaxAttempts, "SHOPQUEUE_OUTBOX_MAX_ATTEMPTS"))
	collect(setDuration(&cfg.OutboxRetryDelay, "SHOPQUEUE_OUTBOX_RETRY_DELAY"))
	collect(setDuration(&cfg.OutboxMaxAge, "SHOPQUEUE_OUTBOX_MAX_AGE"))
	collect(setDuration(&cfg.IdempotencyCleanupInterval, "SHOPQUEUE_IDEMPOTENCY_CLEANUP_INTERVAL"))

	if v := env("SHOPQUEUE_LOG_LEVEL"); v != "" {
		level, err := log.ParseLevel(v)
		if err != nil {
			collect(fmt.Errorf("SHOPQUEUE_LOG_LEVEL: %w", err))
		} else {
			cfg.LogLevel = level
		}
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires SHOPQUEUE_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.OutboxBroker {
	case BrokerNone, "":
	case BrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka broker requires SHOPQUEUE_KAFKA_BROKERS")
		}
	case BrokerRabbitMQ:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("rabbitmq broker requires SHOPQUEUE_RABBITMQ_URL")
		}
	default:
		return fmt.Errorf("unsupported outbox broker %q", c.OutboxBroker)
	}

	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 || c.OutboxPollInterval <= 0 {
		return fmt.Errorf("outbox poll interval, batch size and max attempts must be positive")
	}
	if c.IdempotencyCleanupInterval < 0 {
		return fmt.Errorf("idempotency cleanup interval must not be negative")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
