package main

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/service/outbox"
)

// letter — разобранное письмо из DLQ. Заполнено ровно одно поле.
type letter struct {
	// message — сообщение consumer-а, готовое к отправке в исходный topic
	message *sarama.ProducerMessage
	// event — событие outbox, которое снова пройдёт через OutboxPublisher
	event *domain.OutboxMessage
}

func (l letter) topic(orderTopic string) string {
	if l.message != nil {
		return l.message.Topic
	}
	return orderTopic
}

func (l letter) key() string {
	switch {
	case l.message != nil && l.message.Key != nil:
		k, _ := l.message.Key.Encode()
		return string(k)
	case l.event != nil && l.event.AggregateID != "":
		return l.event.AggregateID
	case l.event != nil:
		return l.event.ID
	}
	return ""
}

// decodeLetter понимает оба формата DLQ: kafka.DLQMessage от consumer-а и
// kafka.OrderEvent, в payload которого лежит outbox.DeadLetter.
func decodeLetter(msg *sarama.ConsumerMessage) (letter, error) {
	if dlq, err := kafka.ParseDLQMessage(msg); err == nil {
		return letter{message: dlq.ReplayMessage()}, nil
	}

	var envelope kafka.OrderEvent
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return letter{}, fmt.Errorf("%w: %v", kafka.ErrMalformedMessage, err)
	}
	var dead outbox.DeadLetter
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &dead); err != nil {
			return letter{}, fmt.Errorf("%w: outbox dead letter: %v", kafka.ErrMalformedMessage, err)
		}
	}

	event := dead.Restore()
	if event.ID == "" {
		event.ID = envelope.ID
	}
	if event.AggregateType == "" {
		event.AggregateType = envelope.AggregateType
	}
	if event.AggregateID == "" {
		event.AggregateID = envelope.AggregateID
	}
	if event.EventType == "" {
		event.EventType = envelope.EventType
	}
	if event.ID == "" || event.EventType == "" {
		return letter{}, fmt.Errorf("%w: outbox event id and type are required", kafka.ErrMalformedMessage)
	}
	return letter{event: &event}, nil
}
