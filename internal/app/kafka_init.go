package app

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ticketing/internal/service/outbox"
)

// kafkaRuntime объединяет producer и публикаторы, построенные поверх него.
type kafkaRuntime struct {
	producer *kafka.Producer
	outbox   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
	consumer *kafka.Consumer
}

// normalizeBrokers убирает пустые элементы и пробелы из списка брокеров.
func normalizeBrokers(brokers []string) []string {
	out := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	brokers = normalizeBrokers(brokers)
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// newKafkaRuntime строит publisher'ы outbox и DLQ поверх producer.
// Без producer поля outbox и dlq пусты, воркер получает outbox.LogPublisher
// через outboxPublisher и помечает сообщения отправленными, записывая их в лог.
func newKafkaRuntime(producer *kafka.Producer) *kafkaRuntime {
	if producer == nil {
		return &kafkaRuntime{}
	}
	return &kafkaRuntime{
		producer: producer,
		outbox:   kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
		dlq:      kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue),
	}
}

// outboxPublisher возвращает Kafka-publisher или LogPublisher, если producer нет.
func (k *kafkaRuntime) outboxPublisher(logger *log.Entry) domain.OutboxPublisher {
	if k == nil || k.outbox == nil {
		return outbox.NewLogPublisher(logger.WithField("component", "outbox-log-publisher"))
	}
	return k.outbox
}

// lifecyclePublisher возвращает publisher для best-effort lifecycle-событий или nil.
func (k *kafkaRuntime) lifecyclePublisher() lifecycle.EventPublisher {
	if k == nil || k.producer == nil {
		return nil
	}
	return k.producer
}

// startPaymentConsumer подписывается на уведомления платёжного шлюза.
func (k *kafkaRuntime) startPaymentConsumer(
	ctx context.Context,
	cfg Config,
	applier kafka.PaymentNotificationApplier,
	logger *log.Entry,
) error {
	brokers := normalizeBrokers(cfg.KafkaBrokers)
	if k.producer == nil || !cfg.PaymentConsumerEnabled || len(brokers) == 0 {
		return nil
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:    brokers,
		GroupID:    cfg.KafkaConsumerGroup,
		Topics:     []string{kafka.TopicPaymentNotifications},
		MaxRetries: cfg.ConsumerMaxRetries,
	}, kafka.NewPaymentNotificationHandler(applier, logger.WithField("component", "payment-notifications")), k.producer)
	if err != nil {
		return err
	}
	consumer.Start(ctx)
	k.consumer = consumer
	return nil
}

// close останавливает consumer и закрывает producer.
func (k *kafkaRuntime) close(logger *log.Entry) {
	if k == nil {
		return
	}
	if k.consumer != nil {
		if err := k.consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
	closeKafkaProducer(k.producer, logger)
}

// closeKafkaProducer закрывает Kafka producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
