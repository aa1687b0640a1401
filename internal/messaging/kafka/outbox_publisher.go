package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// HeaderEventType повторяет тип события, чтобы потребители могли фильтровать без разбора тела.
const HeaderEventType = "x-event-type"

// HeaderOutboxID несёт id записи outbox; по нему потребитель отсекает повторную доставку.
const HeaderOutboxID = "x-outbox-id"

// OrderEvent — тело сообщения в topic событий заказов.
type OrderEvent struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxTopicPublisher отправляет записи outbox в один Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт паблишер; пустой topic означает ticketing.order.events.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// Publish использует код заказа как ключ: события одного заказа попадают в одну партицию
// и читаются в порядке записи.
func (p *OutboxTopicPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher has no producer")
	}

	body, err := json.Marshal(toOrderEvent(msg))
	if err != nil {
		return fmt.Errorf("encode outbox %s: %w", msg.ID, err)
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}

	return p.producer.Send(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(msg.EventType)},
			{Key: []byte(HeaderOutboxID), Value: []byte(msg.ID)},
			{Key: []byte(HeaderContentType), Value: []byte(contentTypeJSON)},
		},
		Timestamp: time.Now().UTC(),
	})
}

func toOrderEvent(msg domain.OutboxMessage) OrderEvent {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return OrderEvent{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
