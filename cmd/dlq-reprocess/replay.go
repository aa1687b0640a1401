package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
)

type summary struct {
	scanned  int
	replayed int
	skipped  int
}

type replayer struct {
	opts   options
	source dlqSource
	// producer и orders равны nil в режиме dry-run
	producer *kafka.Producer
	orders   domain.OutboxPublisher
	logger   *log.Entry
}

func newReplayer(opts options, source dlqSource, producer *kafka.Producer) (*replayer, error) {
	if source == nil {
		return nil, errors.New("dlq source is required")
	}
	if opts.execute && producer == nil {
		return nil, errors.New("producer is required in execute mode")
	}
	r := &replayer{
		opts:     opts,
		source:   source,
		producer: producer,
		logger:   log.WithField("component", "dlq-reprocess"),
	}
	if producer != nil {
		r.orders = kafka.NewOutboxPublisher(producer, opts.orderTopic)
	}
	return r, nil
}

// Run обходит партиции по возрастанию номера, пока не исчерпан общий limit.
func (r *replayer) Run(ctx context.Context) (summary, error) {
	var total summary

	partitions, err := r.source.Partitions(r.opts.dlqTopic)
	if err != nil {
		return total, fmt.Errorf("partitions of %s: %w", r.opts.dlqTopic, err)
	}
	slices.Sort(partitions)

	for _, p := range partitions {
		budget := r.opts.limit - total.scanned
		if budget <= 0 {
			break
		}
		s, err := r.drain(ctx, p, budget)
		total.scanned += s.scanned
		total.replayed += s.replayed
		total.skipped += s.skipped
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":  r.opts.execute,
		"scanned":  total.scanned,
		"replayed": total.replayed,
		"skipped":  total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

// window возвращает [start, end) для чтения партиции. end фиксируется до начала
// чтения, поэтому письма, пришедшие во время прогона, не трогаются.
func (r *replayer) window(partition int32, budget int) (int64, int64, error) {
	oldest, err := r.source.GetOffset(r.opts.dlqTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	end, err := r.source.GetOffset(r.opts.dlqTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	start := oldest
	if r.opts.tail {
		start = max(end-int64(budget), oldest)
	}
	return start, end, nil
}

func (r *replayer) drain(ctx context.Context, partition int32, budget int) (summary, error) {
	var s summary

	start, end, err := r.window(partition, budget)
	if err != nil || start >= end {
		return s, err
	}

	stream, err := r.source.Open(r.opts.dlqTopic, partition, start)
	if err != nil {
		return s, fmt.Errorf("open partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(r.opts.idleTimeout)
	defer idle.Stop()

	for s.scanned < budget {
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-idle.C:
			r.logger.WithField("partition", partition).Debug("partition idle")
			return s, nil
		case cerr := <-stream.Errors():
			if cerr != nil {
				return s, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return s, nil
			}
			idle.Reset(r.opts.idleTimeout)
			s.scanned++

			replayed, err := r.handle(msg)
			if err != nil {
				return s, err
			}
			if replayed {
				s.replayed++
			} else {
				s.skipped++
			}
		}
	}
	return s, nil
}

// handle возвращает false для писем, которые нельзя разобрать; они пропускаются.
func (r *replayer) handle(msg *sarama.ConsumerMessage) (bool, error) {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	l, err := decodeLetter(msg)
	if err != nil {
		entry.WithError(err).Warn("skip unreadable dlq message")
		return false, nil
	}
	entry = entry.WithFields(log.Fields{"target_topic": l.topic(r.opts.orderTopic), "key": l.key()})

	if !r.opts.execute {
		entry.Info("would replay")
		return true, nil
	}

	if l.message != nil {
		err = r.producer.Send(l.message)
	} else {
		err = r.orders.Publish(*l.event)
	}
	if err != nil {
		return false, fmt.Errorf("replay offset %d: %w", msg.Offset, err)
	}
	entry.Info("replayed")
	return true, nil
}
