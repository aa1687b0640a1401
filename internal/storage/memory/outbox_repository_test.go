package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

func enqueueOrderEvent(t *testing.T, q *OutboxQueue, ctx context.Context, orderID, eventType string) domain.OutboxMessage {
	t.Helper()
	saved, err := q.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       []byte(`{"order_id":"` + orderID + `"}`),
	})
	require.NoError(t, err)
	return saved
}

func TestOutboxQueue_PullKeepsOrderAndLimit(t *testing.T) {
	q := NewOutboxRepository()
	ctx := context.Background()

	var ids []string
	for _, ev := range []string{"order.created", "order.pending", "order.completed", "order.removed"} {
		saved := enqueueOrderEvent(t, q, ctx, "AB12C", ev)
		require.NotEmpty(t, saved.ID)
		ids = append(ids, saved.ID)
	}

	batch, err := q.PullPending(ctx, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, msg := range batch {
		assert.Equal(t, ids[i], msg.ID)
	}

	// отправленные не возвращаются, следующая выборка продолжает очередь
	require.NoError(t, q.MarkSent(ctx, ids[0]))
	require.NoError(t, q.MarkFailed(ctx, ids[1]))
	batch, err = q.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, ids[2], batch[0].ID)
}

func TestOutboxQueue_SettleOnlyPending(t *testing.T) {
	q := NewOutboxRepository()
	ctx := context.Background()
	saved := enqueueOrderEvent(t, q, ctx, "QW7E2", "order.created")

	require.NoError(t, q.MarkSent(ctx, saved.ID))
	assert.ErrorIs(t, q.MarkFailed(ctx, saved.ID), domain.ErrOutboxPublish)
	assert.ErrorIs(t, q.MarkSent(ctx, "missing"), domain.ErrOutboxPublish)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
	assert.True(t, stats.OldestPendingAt.IsZero())
}

func TestOutboxQueue_PayloadIsCopied(t *testing.T) {
	q := NewOutboxRepository()
	payload := []byte(`{"a":1}`)
	_, err := q.Enqueue(context.Background(), domain.OutboxMessage{AggregateID: "AB12C", Payload: payload})
	require.NoError(t, err)

	payload[0] = 'x'
	assert.Equal(t, `{"a":1}`, string(q.AllPending()[0].Payload))
}

func TestOutboxQueue_VisibleAfterCommit(t *testing.T) {
	q := NewOutboxRepository()
	tx := NewTxManager()
	ctx := context.Background()

	require.NoError(t, tx.WithinTx(ctx, func(txCtx context.Context) error {
		enqueueOrderEvent(t, q, txCtx, "AB12C", "order.created")
		assert.Empty(t, q.AllPending(), "event must stay invisible before commit")
		return nil
	}))
	assert.Len(t, q.AllPending(), 1)

	rollback := errors.New("rollback")
	err := tx.WithinTx(ctx, func(txCtx context.Context) error {
		enqueueOrderEvent(t, q, txCtx, "ZX9Q1", "order.created")
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingCount)
	assert.False(t, stats.OldestPendingAt.IsZero())
}
