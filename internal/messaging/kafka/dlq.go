package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
)

// DLQMessage — содержимое сообщения в Dead Letter Queue.
type DLQMessage struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// NewDLQMessage собирает DLQ-сообщение из исходного сообщения и ошибки обработки.
func NewDLQMessage(message *sarama.ConsumerMessage, processingErr error, retryCount int) DLQMessage {
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return DLQMessage{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      errMsg,
		FailedAt:          time.Now().UTC().Format(time.RFC3339),
		RetryCount:        retryCount,
	}
}

// ParseDLQMessage разбирает сообщение из DLQ topic.
func ParseDLQMessage(message *sarama.ConsumerMessage) (DLQMessage, error) {
	var dlq DLQMessage
	if err := json.Unmarshal(message.Value, &dlq); err != nil {
		return DLQMessage{}, fmt.Errorf("%w: unmarshal dlq message: %v", ErrMalformedMessage, err)
	}
	if dlq.OriginalTopic == "" {
		return DLQMessage{}, fmt.Errorf("%w: original_topic is empty", ErrMalformedMessage)
	}
	return dlq, nil
}

// ReplayMessage строит сообщение для повторной отправки в исходный topic.
// Счётчик попыток сбрасывается, исходные координаты сохраняются в заголовках.
func (m DLQMessage) ReplayMessage() *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic: m.OriginalTopic,
		Value: sarama.StringEncoder(m.OriginalValue),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderRetryCount), Value: []byte("0")},
			{Key: []byte(HeaderOriginalTopic), Value: []byte(m.OriginalTopic)},
			{Key: []byte(HeaderErrorMessage), Value: []byte(m.ErrorMessage)},
			{Key: []byte(HeaderFailedAt), Value: []byte(m.FailedAt)},
			{Key: []byte("x-original-offset"), Value: []byte(strconv.FormatInt(m.OriginalOffset, 10))},
		},
		Timestamp: time.Now(),
	}
	if m.OriginalKey != "" {
		msg.Key = sarama.StringEncoder(m.OriginalKey)
	}
	return msg
}
