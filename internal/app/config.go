package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Переменные окружения, из которых читается Config.
const (
	envHTTPAddr           = "ORDERS_HTTP_ADDR"
	envMetricsAddr        = "ORDERS_METRICS_ADDR"
	envGRPCAddr           = "ORDERS_GRPC_ADDR"
	envStorageDriver      = "ORDERS_STORAGE_DRIVER"
	envPostgresDSN        = "ORDERS_POSTGRES_DSN"
	envPostgresMigrate    = "ORDERS_POSTGRES_AUTO_MIGRATE"
	envSeedFile           = "ORDERS_SEED_FILE"
	envKafkaBrokers       = "ORDERS_KAFKA_BROKERS"
	envKafkaTopic         = "ORDERS_KAFKA_TOPIC"
	envKafkaDLQTopic      = "ORDERS_KAFKA_DLQ_TOPIC"
	envOutboxPollInterval = "ORDERS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "ORDERS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "ORDERS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "ORDERS_OUTBOX_RETRY_DELAY"
	envOutboxMaxAge       = "ORDERS_OUTBOX_MAX_PENDING_AGE"
	envShutdownTimeout    = "ORDERS_SHUTDOWN_TIMEOUT"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	// GRPCAddr пустой — gRPC health-сервер не поднимается.
	GRPCAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// SeedFile — JSON со справочником пользователей и товаров, загружается при старте.
	SeedFile string

	// KafkaBrokers пустой — outbox и публикация событий выключены.
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OutboxMaxAttempts   int
	OutboxRetryDelay    time.Duration
	OutboxMaxPendingAge time.Duration

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		GRPCAddr:            ":50051",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		KafkaTopic:          kafka.TopicOrderEvents,
		KafkaDLQTopic:       kafka.TopicDeadLetterQueue,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxPendingAge: 5 * time.Minute,
		ShutdownTimeout:     5 * time.Second,
	}
}

// KafkaEnabled сообщает, настроена ли публикация событий.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("http addr is required")
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("%s is required for postgres storage", envPostgresDSN)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("outbox batch size must be > 0")
	}
	if c.OutboxMaxAttempts <= 0 {
		return fmt.Errorf("outbox max attempts must be > 0")
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("outbox poll interval must be > 0")
	}
	return nil
}

// ConfigFromEnv накладывает переменные окружения на DefaultConfig.
// lookup обычно os.LookupEnv; в тестах подставляется map.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := DefaultConfig()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envSeedFile, &cfg.SeedFile)
	str(envKafkaTopic, &cfg.KafkaTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)

	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = ParseBrokers(v)
	}

	if v, ok := lookup(envPostgresMigrate); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", envPostgresMigrate, err)
		}
		cfg.PostgresAutoMigrate = b
	}

	ints := []struct {
		key string
		dst *int
	}{
		{envOutboxBatchSize, &cfg.OutboxBatchSize},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts},
	}
	for _, it := range ints {
		v, ok := lookup(it.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", it.key, err)
		}
		*it.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{envOutboxPollInterval, &cfg.OutboxPollInterval},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay},
		{envOutboxMaxAge, &cfg.OutboxMaxPendingAge},
		{envShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = kafka.TopicOrderEvents
	}
	if cfg.KafkaDLQTopic == "" {
		cfg.KafkaDLQTopic = kafka.TopicDeadLetterQueue
	}

	return cfg, nil
}

// ParseBrokers разбирает список брокеров через запятую, пропуская пустые элементы.
func ParseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	if len(brokers) == 0 {
		return nil
	}
	return brokers
}
