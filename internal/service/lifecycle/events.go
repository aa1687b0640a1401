package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
)

const aggregateOrder = "order"

// emitEvent пишет событие в outbox и timeline в рамках текущей транзакции.
// Ошибка записи откатывает всю операцию.
func (s *Service) emitEvent(ctx context.Context, order domain.Order, eventType kafka.EventType, timelineType domain.TimelineKind, reason string) error {
	payload := map[string]any{
		"order_id":   order.OrderID,
		"user_id":    order.UserID,
		"ticket_id":  order.TicketID,
		"quantity":   order.Quantity,
		"total":      order.Total,
		"status":     order.Status,
		"updated_at": order.UpdatedAt.Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	if len(order.Vouchers) > 0 {
		codes := make([]string, 0, len(order.Vouchers))
		for _, v := range order.Vouchers {
			codes = append(codes, v.Code)
		}
		payload["vouchers"] = codes
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateOrder,
		AggregateID:   order.OrderID,
		EventType:     string(eventType),
		Payload:       data,
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}

	if err := s.timeline.Append(ctx, domain.TimelineEvent{
		OrderID:  order.OrderID,
		Type:     timelineType,
		Reason:   reason,
		Occurred: order.UpdatedAt,
	}); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}

	return nil
}

// afterCommit обновляет метрики и публикует lifecycle-событие.
// Публикация best-effort: гарантированная доставка обеспечивается outbox.
func (s *Service) afterCommit(order domain.Order, eventType kafka.EventType, op domain.Operation, reason string) {
	if s.metrics != nil {
		s.metrics.RecordTransition(op)
		s.metrics.RecordOutboxEvent()
		s.metrics.RecordTimelineEvent()
	}

	if s.events == nil {
		return
	}

	metadata := map[string]any{
		"ticket_id": order.TicketID,
		"quantity":  order.Quantity,
		"total":     order.Total,
	}
	if reason != "" {
		metadata["reason"] = reason
	}

	event := kafka.NewLifecycleEvent(eventType, order.OrderID, order.UserID, string(order.Status), metadata)
	err := s.events.PublishEvent(kafka.TopicLifecycleEvents, order.OrderID, event)
	if s.metrics != nil {
		s.metrics.RecordLifecycleEvent(err == nil)
	}
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   order.OrderID,
		}).Warn("failed to publish lifecycle event to kafka")
	}
}
