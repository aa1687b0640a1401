package main

import (
	"fmt"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
)

// dlqSource даёт границы партиций и последовательное чтение из них.
type dlqSource interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, at int64) (int64, error)
	Open(topic string, partition int32, offset int64) (partitionStream, error)
	Close() error
}

type partitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type saramaSource struct {
	sarama.Client
	consumer sarama.Consumer
}

func (s *saramaSource) Open(topic string, partition int32, offset int64) (partitionStream, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

func (s *saramaSource) Close() error {
	cerr := s.consumer.Close()
	if err := s.Client.Close(); err != nil {
		return err
	}
	return cerr
}

// connect открывает клиента Kafka; producer создаётся только в режиме --execute.
// Тесты подменяют переменную.
var connect = func(opts options) (dlqSource, *kafka.Producer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "ticketing-dlq-reprocess"
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("kafka consumer: %w", err)
	}
	source := &saramaSource{Client: client, consumer: consumer}

	if !opts.execute {
		return source, nil, nil
	}
	producer, err := kafka.NewProducer(opts.brokers, kafka.WithClientID(cfg.ClientID))
	if err != nil {
		_ = source.Close()
		return nil, nil, err
	}
	return source, producer, nil
}
