package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/service/payment"
)

// PingChecker считает компонент здоровым, пока ping возвращает nil.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Check(ctx context.Context) Check {
	started := time.Now()
	check := Check{Name: c.name, Status: StatusHealthy}
	if err := c.ping(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	check.DurationMs = time.Since(started).Milliseconds()
	return check
}

// BreakerChecker сообщает degraded, пока circuit breaker платёжного шлюза не закрыт:
// создание заказов отклоняется, остальное API работает.
type BreakerChecker struct {
	breaker *payment.CircuitBreaker
}

func NewBreakerChecker(breaker *payment.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{breaker: breaker}
}

func (c *BreakerChecker) Check(context.Context) Check {
	check := Check{Name: "payment_gateway", Status: StatusHealthy}
	if c.breaker == nil {
		return check
	}
	if state := c.breaker.State(); state != payment.CircuitClosed {
		check.Status = StatusDegraded
		check.Message = "circuit breaker is " + state.String()
	}
	return check
}

// OutboxStatsReader — часть OutboxRepository, нужная проверке.
type OutboxStatsReader interface {
	Stats(ctx context.Context) (domain.OutboxStats, error)
}

// OutboxChecker сообщает degraded, когда backlog outbox достиг порога.
// threshold <= 0 оставляет только проверку доступности хранилища.
type OutboxChecker struct {
	repo      OutboxStatsReader
	threshold int
}

func NewOutboxChecker(repo OutboxStatsReader, threshold int) *OutboxChecker {
	return &OutboxChecker{repo: repo, threshold: threshold}
}

func (c *OutboxChecker) Check(ctx context.Context) Check {
	started := time.Now()
	check := Check{Name: "outbox", Status: StatusHealthy}

	stats, err := c.repo.Stats(ctx)
	check.DurationMs = time.Since(started).Milliseconds()
	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	case c.threshold > 0 && stats.PendingCount >= c.threshold:
		// события копятся, но не теряются
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("outbox backlog %d >= %d", stats.PendingCount, c.threshold)
	}
	return check
}
