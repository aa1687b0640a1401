package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	outcomeHandled      = "handled"
	outcomeDeadLettered = "dead_lettered"
	outcomeFailed       = "failed"
)

var consumedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ticketing_kafka_consumed_messages_total",
	Help: "Прочитанные из Kafka сообщения по topic и итогу обработки.",
}, []string{"topic", "outcome"})

// MessageHandler обрабатывает одно сообщение. ErrMalformedMessage в цепочке ошибки
// означает, что повтор не поможет.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// DeadLetterSink принимает сообщения, которые не удалось обработать. *Producer подходит.
type DeadLetterSink interface {
	PublishEvent(topic string, key string, event interface{}) error
}

// ConsumerConfig описывает подписку consumer group.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// MaxRetries ограничивает число попыток вместе с уже сделанными до переотправки из DLQ.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.MaxRetryDelay < c.RetryDelay {
		c.MaxRetryDelay = 5 * time.Second
	}
	return c
}

// Consumer читает topics в составе consumer group. Offset фиксируется только после
// успешной обработки или после переноса сообщения в DLQ.
type Consumer struct {
	group       sarama.ConsumerGroup
	cfg         ConsumerConfig
	handler     MessageHandler
	deadLetters DeadLetterSink
	logger      *log.Entry
	wg          sync.WaitGroup
}

// NewConsumer подключается к брокерам. deadLetters может быть nil: тогда сообщение,
// исчерпавшее попытки, остаётся незафиксированным и будет перечитано.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, deadLetters DeadLetterSink) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("kafka consumer: handler is required")
	}
	if len(cfg.Brokers) == 0 || cfg.GroupID == "" || len(cfg.Topics) == 0 {
		return nil, errors.New("kafka consumer: brokers, group and topics are required")
	}

	sc := sarama.NewConfig()
	sc.ClientID = "ticketing"
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("join consumer group %s: %w", cfg.GroupID, err)
	}
	return newConsumer(group, cfg, handler, deadLetters), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig, handler MessageHandler, deadLetters DeadLetterSink) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		group:       group,
		cfg:         cfg,
		handler:     handler,
		deadLetters: deadLetters,
		logger: log.WithFields(log.Fields{
			"component": "kafka-consumer",
			"group":     cfg.GroupID,
		}),
	}
}

// Start запускает чтение в фоне; остановка через отмену ctx и Stop.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(2)
	go c.consumeLoop(ctx)
	go c.drainErrors()
	c.logger.WithField("topics", c.cfg.Topics).Info("kafka consumer started")
}

// Stop закрывает группу и ждёт завершения фоновых горутин.
func (c *Consumer) Stop() error {
	err := c.group.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("close consumer group: %w", err)
	}
	c.logger.Info("kafka consumer stopped")
	return nil
}

// consumeLoop переоткрывает сессию после каждого rebalance.
func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	for ctx.Err() == nil {
		err := c.group.Consume(ctx, c.cfg.Topics, c)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return
		}
		if err != nil {
			c.logger.WithError(err).Error("consumer session failed")
			if !pause(ctx, c.cfg.RetryDelay) {
				return
			}
		}
	}
}

func (c *Consumer) drainErrors() {
	defer c.wg.Done()
	for err := range c.group.Errors() {
		c.logger.WithError(err).Warn("consumer group error")
	}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает партицию последовательно, сохраняя порядок сообщений одного заказа.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok || msg == nil {
				return nil
			}
			if c.process(ctx, msg) {
				session.MarkMessage(msg, "")
			}
		}
	}
}

// process возвращает true, если offset сообщения можно фиксировать.
func (c *Consumer) process(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	attempts, err := c.attempt(ctx, msg)
	if err == nil {
		consumedMessages.WithLabelValues(msg.Topic, outcomeHandled).Inc()
		return true
	}

	entry := c.logger.WithError(err).WithFields(log.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"attempts":  attempts,
	})

	// при остановке сообщение перечитает следующий владелец партиции
	if ctx.Err() != nil {
		return false
	}

	if c.deadLetters == nil {
		consumedMessages.WithLabelValues(msg.Topic, outcomeFailed).Inc()
		entry.Error("message processing failed, offset left uncommitted")
		return false
	}

	if dlqErr := c.deadLetters.PublishEvent(TopicDeadLetterQueue, string(msg.Key), NewDLQMessage(msg, err, attempts)); dlqErr != nil {
		consumedMessages.WithLabelValues(msg.Topic, outcomeFailed).Inc()
		entry.WithField("dlq_error", dlqErr.Error()).Error("dead letter publish failed")
		return false
	}

	consumedMessages.WithLabelValues(msg.Topic, outcomeDeadLettered).Inc()
	entry.Warn("message moved to dead letter queue")
	return true
}

// attempt вызывает обработчик до успеха или исчерпания попыток. Счёт продолжается
// с x-retry-count, так что переотправленное из DLQ сообщение не получает бюджет заново.
func (c *Consumer) attempt(ctx context.Context, msg *sarama.ConsumerMessage) (int, error) {
	attempts := retryCount(msg)
	delay := c.cfg.RetryDelay

	for {
		err := c.handler(ctx, msg)
		if err == nil {
			return attempts, nil
		}
		attempts++
		if errors.Is(err, ErrMalformedMessage) || attempts >= c.cfg.MaxRetries {
			return attempts, err
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"topic":   msg.Topic,
			"attempt": attempts,
			"delay":   delay,
		}).Warn("message processing failed, retrying")

		if !pause(ctx, delay) {
			return attempts, err
		}
		delay = min(delay*2, c.cfg.MaxRetryDelay)
	}
}

// retryCount читает x-retry-count; отсутствующий или битый заголовок считается нулём.
func retryCount(msg *sarama.ConsumerMessage) int {
	for _, h := range msg.Headers {
		if h == nil || string(h.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// pause ждёт d или отмены ctx; false означает отмену.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
