package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// PaymentNotificationApplier применяет результат оплаты к заказу.
type PaymentNotificationApplier interface {
	ApplyPaymentNotification(ctx context.Context, n domain.PaymentNotification) error
}

// NewPaymentNotificationHandler возвращает обработчик topic уведомлений об оплате.
// Ошибки валидации и отсутствующий заказ не повторяются: сообщение сразу уходит в DLQ.
func NewPaymentNotificationHandler(applier PaymentNotificationApplier, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "payment-notifications")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		notification, err := ParsePaymentNotification(message)
		if err != nil {
			return err
		}

		entry := logger.WithFields(log.Fields{
			"order_id":           notification.OrderID,
			"transaction_status": notification.TransactionStatus,
			"offset":             message.Offset,
		})

		if err := applier.ApplyPaymentNotification(ctx, notification); err != nil {
			if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
				entry.WithError(err).Warn("payment notification rejected")
				return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
			}
			entry.WithError(err).Error("apply payment notification failed")
			return err
		}

		entry.Debug("payment notification applied")
		return nil
	}
}
