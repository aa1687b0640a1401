package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// EventType — тип события жизненного цикла заказа, уходит в поле event_type.
type EventType string

const (
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderPending   EventType = "order.pending"
	EventTypeOrderCompleted EventType = "order.completed"
	EventTypeOrderCancelled EventType = "order.cancelled"
	EventTypeOrderRemoved   EventType = "order.removed"
)

const (
	TopicOrderEvents          = "ticketing.order.events"
	TopicLifecycleEvents      = "ticketing.lifecycle.events"
	TopicPaymentNotifications = "ticketing.payment.notifications"
	TopicDeadLetterQueue      = "ticketing.dlq"
)

// Заголовки, которыми consumer помечает повторы и письма в DLQ.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// ErrMalformedMessage — сообщение невозможно разобрать, повторная обработка бессмысленна.
var ErrMalformedMessage = errors.New("malformed kafka message")

// LifecycleEvent — best-effort уведомление о смене статуса заказа в TopicLifecycleEvents.
type LifecycleEvent struct {
	EventType  EventType      `json:"event_type"`
	OrderID    string         `json:"order_id"`
	UserID     string         `json:"user_id"`
	Status     string         `json:"status"`
	OccurredAt time.Time      `json:"occurred_at"`
	Details    map[string]any `json:"details,omitempty"`
}

func NewLifecycleEvent(eventType EventType, orderID, userID, status string, details map[string]any) *LifecycleEvent {
	return &LifecycleEvent{
		EventType:  eventType,
		OrderID:    orderID,
		UserID:     userID,
		Status:     status,
		OccurredAt: time.Now().UTC(),
		Details:    details,
	}
}

// PaymentNotificationMessage — формат уведомления платёжного шлюза в topic уведомлений.
type PaymentNotificationMessage struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
}

func ParseLifecycleEvent(message *sarama.ConsumerMessage) (*LifecycleEvent, error) {
	event := new(LifecycleEvent)
	if err := json.Unmarshal(message.Value, event); err != nil {
		return nil, fmt.Errorf("%w: unmarshal lifecycle event: %v", ErrMalformedMessage, err)
	}
	if event.OrderID == "" || event.EventType == "" {
		return nil, fmt.Errorf("%w: lifecycle event without order_id or event_type", ErrMalformedMessage)
	}
	return event, nil
}

// ParsePaymentNotification разбирает уведомление шлюза; пустые поля считаются битым сообщением.
func ParsePaymentNotification(message *sarama.ConsumerMessage) (domain.PaymentNotification, error) {
	var raw PaymentNotificationMessage
	if err := json.Unmarshal(message.Value, &raw); err != nil {
		return domain.PaymentNotification{}, fmt.Errorf("%w: unmarshal payment notification: %v", ErrMalformedMessage, err)
	}
	if raw.OrderID == "" || raw.TransactionStatus == "" {
		return domain.PaymentNotification{}, fmt.Errorf("%w: order_id and transaction_status are required", ErrMalformedMessage)
	}
	return domain.PaymentNotification{
		OrderID:           raw.OrderID,
		TransactionStatus: domain.PaymentNotificationStatus(raw.TransactionStatus),
	}, nil
}
