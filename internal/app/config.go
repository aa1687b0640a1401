package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// EnvPrefix — префикс переменных окружения сервиса.
const EnvPrefix = "TICKETING"

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR"`
	GRPCAddr    string `envconfig:"GRPC_ADDR"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	StorageDriver           string        `envconfig:"STORAGE_DRIVER"`
	PostgresDSN             string        `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate     bool          `envconfig:"POSTGRES_AUTO_MIGRATE"`
	PostgresMaxConns        int           `envconfig:"POSTGRES_MAX_CONNS"`
	PostgresConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME"`

	// SeedTickets — билеты, заводимые при старте, в формате id:price:quantity.
	SeedTickets []string `envconfig:"SEED_TICKETS"`

	JWTSecret      string   `envconfig:"JWT_SECRET"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	PaymentMock            bool          `envconfig:"PAYMENT_MOCK"`
	PaymentBaseURL         string        `envconfig:"PAYMENT_BASE_URL"`
	PaymentServerKey       string        `envconfig:"PAYMENT_SERVER_KEY"`
	PaymentTimeout         time.Duration `envconfig:"PAYMENT_TIMEOUT"`
	PaymentBreakerFailures int           `envconfig:"PAYMENT_BREAKER_FAILURES"`
	PaymentBreakerReset    time.Duration `envconfig:"PAYMENT_BREAKER_RESET"`

	KafkaBrokers           []string `envconfig:"KAFKA_BROKERS"`
	KafkaConsumerGroup     string   `envconfig:"KAFKA_CONSUMER_GROUP"`
	PaymentConsumerEnabled bool     `envconfig:"PAYMENT_CONSUMER_ENABLED"`
	ConsumerMaxRetries     int      `envconfig:"CONSUMER_MAX_RETRIES"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY"`
	OutboxMaxPending   int           `envconfig:"OUTBOX_MAX_PENDING"`

	IdempotencyTTL               time.Duration `envconfig:"IDEMPOTENCY_TTL"`
	IdempotencyCleanupInterval   time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL"`
	IdempotencyCleanupBatchSize  int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE"`
	IdempotencyCleanupMaxBatches int           `envconfig:"IDEMPOTENCY_CLEANUP_MAX_BATCHES"`

	CompletionRetryAttempts int `envconfig:"COMPLETION_RETRY_ATTEMPTS"`
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		LogLevel:                    "info",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		JWTSecret:                   "dev-secret",
		PaymentMock:                 true,
		PaymentTimeout:              10 * time.Second,
		PaymentBreakerFailures:      5,
		PaymentBreakerReset:         30 * time.Second,
		KafkaConsumerGroup:          "ticketing-service",
		PaymentConsumerEnabled:      true,
		ConsumerMaxRetries:          3,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		OutboxMaxPending:            1000,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		CompletionRetryAttempts:     3,
	}
}

// LoadConfig читает переменные окружения TICKETING_* поверх DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
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
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres dsn is required when storage driver is %q", StorageDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if !c.PaymentMock && strings.TrimSpace(c.PaymentBaseURL) == "" {
		return fmt.Errorf("payment base url is required when payment mock is disabled")
	}
	for _, p := range []struct {
		name string
		ok   bool
	}{
		{"outbox poll interval", c.OutboxPollInterval > 0},
		{"outbox batch size", c.OutboxBatchSize > 0},
		{"outbox max attempts", c.OutboxMaxAttempts > 0},
		{"outbox max pending", c.OutboxMaxPending > 0},
		{"idempotency ttl", c.IdempotencyTTL > 0},
		{"idempotency cleanup interval", c.IdempotencyCleanupInterval > 0},
	} {
		if !p.ok {
			return fmt.Errorf("%s must be > 0", p.name)
		}
	}
	if c.OutboxRetryDelay < 0 {
		return fmt.Errorf("outbox retry delay must be >= 0")
	}
	if _, err := parseTicketSeeds(c.SeedTickets); err != nil {
		return err
	}
	return nil
}

// parseTicketSeeds разбирает записи вида id:price:quantity.
func parseTicketSeeds(raw []string) ([]domain.Ticket, error) {
	tickets := make([]domain.Ticket, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid ticket seed %q: expected id:price:quantity", entry)
		}
		price, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ticket seed %q: price: %w", entry, err)
		}
		qty, err := strconv.ParseInt(parts[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid ticket seed %q: quantity: %w", entry, err)
		}
		ticket := domain.Ticket{ID: parts[0], Name: parts[0], Price: price, Quantity: int32(qty)}
		if errs := ticket.Validate(); len(errs) > 0 {
			return nil, fmt.Errorf("invalid ticket seed %q: %w", entry, errs[0])
		}
		tickets = append(tickets, ticket)
	}
	return tickets, nil
}
