package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ticketing/internal/health"
	"github.com/vladislavdragonenkov/ticketing/internal/storage/memory"
	"github.com/vladislavdragonenkov/ticketing/internal/storage/postgres"
)

// storageSet — репозитории одного бэкенда. Все они видят одну и ту же транзакцию из tx.
type storageSet struct {
	orders   domain.OrderRepository
	tickets  domain.TicketRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	keys     domain.IdempotencyRepository
	tx       domain.TxManager
	ping     healthcheck.Checker
	// close равен nil, если закрывать нечего
	close func() error
}

// openStorage выбирает бэкенд по StorageDriver и заводит билеты из SeedTickets.
func openStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storageSet, error) {
	var (
		set *storageSet
		err error
	)
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		set = memoryStorage()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if set, err = postgresStorage(ctx, cfg, logger); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if err := seedTickets(ctx, set.tickets, cfg.SeedTickets, logger); err != nil {
		set.shutdown(logger)
		return nil, err
	}
	return set, nil
}

func (s *storageSet) shutdown(logger *log.Entry) {
	if s.close == nil {
		return
	}
	if err := s.close(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

func memoryStorage() *storageSet {
	return &storageSet{
		orders:   memory.NewOrderRepository(),
		tickets:  memory.NewTicketRepository(),
		outbox:   memory.NewOutboxRepository(),
		timeline: memory.NewTimelineRepository(),
		keys:     memory.NewIdempotencyRepository(),
		tx:       memory.NewTxManager(),
		ping:     healthcheck.NewPingChecker("storage", func(context.Context) error { return nil }),
	}
}

func postgresStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storageSet, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	pool := postgres.DefaultPoolConfig()
	pool.MaxConns = cfg.PostgresMaxConns
	pool.ConnMaxLifetime = cfg.PostgresConnMaxLifetime

	store, err := postgres.Open(ctx, cfg.PostgresDSN, pool)
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	logger.WithField("max_conns", pool.MaxConns).Info("using postgres storage")
	return &storageSet{
		orders:   postgres.NewOrderRepository(store),
		tickets:  postgres.NewTicketRepository(store),
		outbox:   postgres.NewOutboxRepository(store),
		timeline: postgres.NewTimelineRepository(store),
		keys:     postgres.NewIdempotencyRepository(store),
		tx:       postgres.NewTxManager(store),
		ping:     healthcheck.NewPingChecker("storage", store.Ping),
		close:    store.Close,
	}, nil
}

// seedTickets заводит билеты из конфигурации; уже существующие не трогает.
func seedTickets(ctx context.Context, repo domain.TicketRepository, raw []string, logger *log.Entry) error {
	tickets, err := parseTicketSeeds(raw)
	if err != nil {
		return err
	}
	for _, ticket := range tickets {
		err := repo.Create(ctx, ticket)
		switch {
		case errors.Is(err, domain.ErrTicketAlreadyExists):
			logger.WithField("ticket_id", ticket.ID).Debug("ticket already seeded")
		case err != nil:
			return fmt.Errorf("seed ticket %s: %w", ticket.ID, err)
		default:
			logger.WithFields(log.Fields{
				"ticket_id": ticket.ID,
				"price":     ticket.Price,
				"quantity":  ticket.Quantity,
			}).Info("ticket seeded")
		}
	}
	return nil
}
