package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// HeaderContentType помечает формат тела сообщения.
const HeaderContentType = "content-type"

const contentTypeJSON = "application/json"

var publishedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ticketing_kafka_published_messages_total",
	Help: "Сообщения, отправленные в Kafka, по topic и результату.",
}, []string{"topic", "result"})

// ProducerOption меняет sarama-конфигурацию до создания producer'а.
type ProducerOption func(*sarama.Config)

// WithClientID задаёт client.id, под которым сервис виден брокеру.
func WithClientID(id string) ProducerOption {
	return func(c *sarama.Config) {
		if id != "" {
			c.ClientID = id
		}
	}
}

// WithCompression переопределяет кодек сжатия (по умолчанию snappy).
func WithCompression(codec sarama.CompressionCodec) ProducerOption {
	return func(c *sarama.Config) { c.Producer.Compression = codec }
}

// Producer синхронно отправляет события сервиса в Kafka.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

// NewProducer подключается к брокерам. Producer идемпотентный: повтор отправки после
// сетевой ошибки не создаёт дубль в партиции.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka producer: no brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.ClientID = "ticketing"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	for _, opt := range opts {
		opt(cfg)
	}

	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}
	return NewProducerFromSync(sp), nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer, в тестах это mocks.SyncProducer.
func NewProducerFromSync(sp sarama.SyncProducer) *Producer {
	return &Producer{
		sync:   sp,
		logger: log.WithField("component", "kafka-producer"),
	}
}

// PublishEvent сериализует event в JSON и отправляет его с ключом key.
func (p *Producer) PublishEvent(topic string, key string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(body),
		Headers:   []sarama.RecordHeader{{Key: []byte(HeaderContentType), Value: []byte(contentTypeJSON)}},
		Timestamp: time.Now().UTC(),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	return p.Send(msg)
}

// Send отправляет сообщение без изменений: заголовки и ключ остаются как есть.
func (p *Producer) Send(msg *sarama.ProducerMessage) error {
	if p == nil || p.sync == nil {
		return errors.New("kafka producer is not initialized")
	}

	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		publishedMessages.WithLabelValues(msg.Topic, "error").Inc()
		p.logger.WithError(err).WithField("topic", msg.Topic).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", msg.Topic, err)
	}

	publishedMessages.WithLabelValues(msg.Topic, "ok").Inc()
	p.logger.WithFields(log.Fields{
		"topic":     msg.Topic,
		"partition": partition,
		"offset":    offset,
	}).Debug("kafka message sent")
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
