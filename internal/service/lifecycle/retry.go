package lifecycle

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// RetryConfig конфигурация повторов при конфликте версий заказа.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) normalize() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = def.BackoffFactor
	}
	return c
}

// withVersionRetry выполняет attempt, пока он завершается конфликтом версий.
// Каждая попытка заново читает заказ, поэтому решение о переходе принимается по свежему состоянию.
func (s *Service) withVersionRetry(ctx context.Context, op domain.Operation, orderID string, attempt func() error) error {
	delay := s.retry.InitialDelay

	var err error
	for i := 1; i <= s.retry.MaxAttempts; i++ {
		err = attempt()
		if err == nil || !domain.IsVersionConflict(err) {
			return err
		}

		if i == s.retry.MaxAttempts {
			break
		}

		s.logger.WithFields(log.Fields{
			"operation": op,
			"order_id":  orderID,
			"attempt":   i,
			"delay":     delay,
		}).Warn("version conflict detected, retrying")

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		// Экспоненциальная задержка с ограничением
		delay = time.Duration(float64(delay) * s.retry.BackoffFactor)
		if delay > s.retry.MaxDelay {
			delay = s.retry.MaxDelay
		}
	}

	return err
}
