package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
)

// fakeSource раздаёт заранее записанные письма; newest каждой партиции равен числу писем.
type fakeSource struct {
	letters   map[int32][]string
	oldest    map[int32]int64
	listErr   error
	offsetErr error
	openErr   error
	streams   map[int32]partitionStream
	opened    map[int32]int64
	closed    bool
}

func newFakeSource(letters map[int32][]string) *fakeSource {
	return &fakeSource{letters: letters, oldest: map[int32]int64{}, streams: map[int32]partitionStream{}, opened: map[int32]int64{}}
}

func (f *fakeSource) Partitions(string) ([]int32, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	// брокер не обещает порядок партиций, отдаём по убыванию
	out := make([]int32, 0, len(f.letters))
	for p := range f.letters {
		out = append(out, p)
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out, nil
}

func (f *fakeSource) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if f.offsetErr != nil {
		return 0, f.offsetErr
	}
	if at == sarama.OffsetOldest {
		return f.oldest[partition], nil
	}
	return f.oldest[partition] + int64(len(f.letters[partition])), nil
}

func (f *fakeSource) Open(_ string, partition int32, offset int64) (partitionStream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened[partition] = offset
	if s, ok := f.streams[partition]; ok {
		return s, nil
	}
	base := f.oldest[partition]
	msgs := make(chan *sarama.ConsumerMessage, len(f.letters[partition]))
	for i, v := range f.letters[partition] {
		if off := base + int64(i); off >= offset {
			msgs <- &sarama.ConsumerMessage{Partition: partition, Offset: off, Value: []byte(v)}
		}
	}
	close(msgs)
	return &fakeStream{messages: msgs, errs: make(chan *sarama.ConsumerError)}, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeStream struct {
	messages chan *sarama.ConsumerMessage
	errs     chan *sarama.ConsumerError
}

func (s *fakeStream) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *fakeStream) Errors() <-chan *sarama.ConsumerError     { return s.errs }
func (s *fakeStream) Close() error                             { return nil }

func dryRun(limit int) options {
	return options{
		dlqTopic:    kafka.TopicDeadLetterQueue,
		orderTopic:  kafka.TopicOrderEvents,
		limit:       limit,
		idleTimeout: 50 * time.Millisecond,
	}
}

func TestReplayer_DryRunCountsWithoutPublishing(t *testing.T) {
	src := newFakeSource(map[int32][]string{0: {consumerLetter, "garbage", outboxLetter}})
	r, err := newReplayer(dryRun(10), src, nil)
	require.NoError(t, err)

	got, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, summary{scanned: 3, replayed: 2, skipped: 1}, got)
	assert.Equal(t, int64(0), src.opened[0])
}

func TestReplayer_ExecuteReplaysBothKinds(t *testing.T) {
	src := newFakeSource(map[int32][]string{0: {consumerLetter, outboxLetter}})

	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != kafka.TopicPaymentNotifications {
			return fmt.Errorf("consumer letter went to %s", msg.Topic)
		}
		return nil
	})
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		body, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event kafka.OrderEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return err
		}
		if msg.Topic != kafka.TopicOrderEvents || event.ID != "evt-1" {
			return fmt.Errorf("unexpected outbox replay %s: %s", msg.Topic, body)
		}
		if string(event.Payload) != `{"order_id":"AB12C","total":180}` {
			return fmt.Errorf("dead letter was not unwrapped: %s", event.Payload)
		}
		return nil
	})
	producer := kafka.NewProducerFromSync(sp)

	opts := dryRun(10)
	opts.execute = true
	r, err := newReplayer(opts, src, producer)
	require.NoError(t, err)

	got, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, summary{scanned: 2, replayed: 2}, got)
	require.NoError(t, producer.Close())
}

func TestReplayer_PublishErrorStopsRun(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer := kafka.NewProducerFromSync(sp)
	t.Cleanup(func() { _ = producer.Close() })

	opts := dryRun(10)
	opts.execute = true
	r, err := newReplayer(opts, newFakeSource(map[int32][]string{0: {consumerLetter}}), producer)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.ErrorContains(t, err, "replay offset 0")
}

func TestReplayer_LimitSpansPartitionsInOrder(t *testing.T) {
	src := newFakeSource(map[int32][]string{
		0: {consumerLetter},
		2: {consumerLetter, consumerLetter},
	})
	r, err := newReplayer(dryRun(1), src, nil)
	require.NoError(t, err)

	got, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got.scanned)
	assert.Contains(t, src.opened, int32(0))
	assert.NotContains(t, src.opened, int32(2))
}

func TestReplayer_FromNewestStartsAtTail(t *testing.T) {
	src := newFakeSource(map[int32][]string{0: make([]string, 7)})
	src.oldest[0] = 3
	opts := dryRun(4)
	opts.tail = true

	r, err := newReplayer(opts, src, nil)
	require.NoError(t, err)
	got, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(6), src.opened[0], "newest(10) - limit(4)")
	assert.Equal(t, 4, got.scanned)
}

func TestReplayer_EmptyPartitionIsNotOpened(t *testing.T) {
	src := newFakeSource(map[int32][]string{0: nil})
	r, err := newReplayer(dryRun(5), src, nil)
	require.NoError(t, err)

	got, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.Empty(t, src.opened)
}

func TestReplayer_IdlePartition(t *testing.T) {
	src := newFakeSource(map[int32][]string{0: {consumerLetter}})
	src.streams[0] = &fakeStream{messages: make(chan *sarama.ConsumerMessage), errs: make(chan *sarama.ConsumerError)}
	opts := dryRun(5)
	opts.idleTimeout = 10 * time.Millisecond

	r, err := newReplayer(opts, src, nil)
	require.NoError(t, err)
	got, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, got.scanned)
}

func TestReplayer_SourceErrors(t *testing.T) {
	ctx := context.Background()

	_, err := newReplayer(dryRun(1), nil, nil)
	assert.Error(t, err)

	tests := []struct {
		name  string
		setup func(*fakeSource)
		want  string
	}{
		{"partitions", func(f *fakeSource) { f.listErr = errors.New("metadata down") }, "metadata down"},
		{"offsets", func(f *fakeSource) { f.offsetErr = errors.New("offset down") }, "offset down"},
		{"open", func(f *fakeSource) { f.openErr = errors.New("consume down") }, "consume down"},
		{"stream", func(f *fakeSource) {
			errs := make(chan *sarama.ConsumerError, 1)
			errs <- &sarama.ConsumerError{Topic: kafka.TopicDeadLetterQueue, Err: errors.New("broken")}
			f.streams[0] = &fakeStream{messages: make(chan *sarama.ConsumerMessage), errs: errs}
		}, "broken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource(map[int32][]string{0: {consumerLetter}})
			tt.setup(src)
			r, err := newReplayer(dryRun(5), src, nil)
			require.NoError(t, err)
			_, err = r.Run(ctx)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestReplayer_Cancelled(t *testing.T) {
	src := newFakeSource(map[int32][]string{0: {consumerLetter}})
	src.streams[0] = &fakeStream{messages: make(chan *sarama.ConsumerMessage), errs: make(chan *sarama.ConsumerError)}
	opts := dryRun(5)
	opts.idleTimeout = time.Minute

	r, err := newReplayer(opts, src, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
