package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/idgen"
	"github.com/vladislavdragonenkov/ticketing/internal/metrics"
	"github.com/vladislavdragonenkov/ticketing/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ticketing/internal/service/payment"
)

// newPaymentGateway собирает шлюз оплаты: mock для локального запуска
// или Snap-клиент, обёрнутый circuit breaker'ом.
func newPaymentGateway(cfg Config, logger *log.Entry) (domain.PaymentGateway, *payment.CircuitBreaker) {
	breaker := payment.NewCircuitBreaker(
		cfg.PaymentBreakerFailures,
		cfg.PaymentBreakerReset,
		logger.WithField("component", "payment-breaker"),
	)

	var gateway domain.PaymentGateway
	if cfg.PaymentMock {
		// NOTE: mock выдаёт детерминированные токены и подходит только для разработки
		gateway = payment.NewMockGateway()
		logger.Warn("payment gateway mock is enabled")
	} else {
		gateway = payment.NewSnapClient(
			cfg.PaymentBaseURL,
			cfg.PaymentServerKey,
			cfg.PaymentTimeout,
			nil,
			logger.WithField("component", "payment-gateway"),
		)
	}
	return payment.NewBreakerGateway(gateway, breaker), breaker
}

// newLifecycleService создаёт сервис жизненного цикла заказов поверх выбранных хранилищ.
// publisher может быть nil, тогда lifecycle-события в Kafka не отправляются.
func newLifecycleService(
	storage *storageSet,
	gateway domain.PaymentGateway,
	publisher lifecycle.EventPublisher,
	cfg Config,
	logger *log.Entry,
) (*lifecycle.Service, error) {
	retry := lifecycle.DefaultRetryConfig()
	if cfg.CompletionRetryAttempts > 0 {
		retry.MaxAttempts = cfg.CompletionRetryAttempts
	}

	opts := []lifecycle.Option{
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")),
		lifecycle.WithMetrics(metrics.NewOrderMetrics()),
		lifecycle.WithPaymentTimeout(cfg.PaymentTimeout),
		lifecycle.WithRetryConfig(retry),
		lifecycle.WithOutboxMaxPending(cfg.OutboxMaxPending),
	}
	if publisher != nil {
		opts = append(opts, lifecycle.WithEventPublisher(publisher))
	}

	return lifecycle.NewService(lifecycle.Dependencies{
		Orders:   storage.orders,
		Tickets:  storage.tickets,
		Outbox:   storage.outbox,
		Timeline: storage.timeline,
		Tx:       storage.tx,
		Gateway:  gateway,
		Codes:    idgen.New(),
	}, opts...)
}
