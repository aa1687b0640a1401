package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

func completedEvent() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "AB12C",
		EventType:     string(EventTypeOrderCompleted),
		Payload:       []byte(`{"order_id":"AB12C","status":"Completed"}`),
	}
}

func TestOutboxPublisher_Envelope(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, TopicOrderEvents, msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "AB12C", string(key))
		assert.Equal(t, string(EventTypeOrderCompleted), headerValue(msg.Headers, HeaderEventType))
		assert.Equal(t, "outbox-1", headerValue(msg.Headers, HeaderOutboxID))

		body, err := msg.Value.Encode()
		require.NoError(t, err)
		var event OrderEvent
		require.NoError(t, json.Unmarshal(body, &event))
		assert.Equal(t, "outbox-1", event.ID)
		assert.JSONEq(t, `{"order_id":"AB12C","status":"Completed"}`, string(event.Payload))
		assert.False(t, event.PublishedAt.IsZero())
		return nil
	})

	producer := NewProducerFromSync(sp)
	require.NoError(t, NewOutboxPublisher(producer, "").Publish(completedEvent()))
	require.NoError(t, producer.Close())
}

func TestOutboxPublisher_KeyFallsBackToID(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, TopicDeadLetterQueue, msg.Topic)
		key, _ := msg.Key.Encode()
		assert.Equal(t, "outbox-7", string(key))

		body, _ := msg.Value.Encode()
		assert.Contains(t, string(body), `"payload":{}`)
		return nil
	})

	producer := NewProducerFromSync(sp)
	require.NoError(t, NewOutboxPublisher(producer, TopicDeadLetterQueue).Publish(domain.OutboxMessage{ID: "outbox-7", EventType: "order.created"}))
	require.NoError(t, producer.Close())
}

func TestOutboxPublisher_Errors(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewProducerFromSync(sp)
	assert.ErrorIs(t, NewOutboxPublisher(producer, TopicOrderEvents).Publish(completedEvent()), sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())

	assert.Error(t, NewOutboxPublisher(nil, TopicOrderEvents).Publish(completedEvent()))
}
