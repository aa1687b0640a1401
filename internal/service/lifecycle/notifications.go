package lifecycle

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// ApplyPaymentNotification применяет уведомление платёжного шлюза к заказу.
// Уже завершённый или отменённый заказ считается обработанным.
func (s *Service) ApplyPaymentNotification(ctx context.Context, n domain.PaymentNotification) error {
	if n.OrderID == "" {
		return domain.ErrOrderIDRequired
	}

	order, err := s.orders.GetByOrderID(ctx, n.OrderID)
	if err != nil {
		return err
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":           n.OrderID,
		"transaction_status": n.TransactionStatus,
		"status":             order.Status,
	})

	switch n.TransactionStatus.Outcome() {
	case domain.PaymentOutcomePaid:
		_, err = s.Complete(ctx, order.OrderID, order.UserID)

	case domain.PaymentOutcomeAwaiting:
		_, err = s.SetPending(ctx, order.OrderID)

	case domain.PaymentOutcomeFailed:
		if order.Status == domain.OrderStatusCompleted {
			logger.Warn("payment failure for completed order ignored")
			return nil
		}
		_, err = s.Cancel(ctx, order.OrderID, "payment "+string(n.TransactionStatus))

	default:
		return fmt.Errorf("%w: unknown transaction status %q", domain.ErrValidation, n.TransactionStatus)
	}

	if errors.Is(err, domain.ErrOrderAlreadyCompleted) || errors.Is(err, domain.ErrOrderAlreadyCancelled) {
		logger.Debug("payment notification for finished order, nothing to do")
		return nil
	}
	return err
}
