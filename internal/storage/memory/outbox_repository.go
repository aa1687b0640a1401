package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type outboxState uint8

const (
	outboxPending outboxState = iota
	outboxSent
	outboxFailed
)

type outboxEntry struct {
	msg      domain.OutboxMessage
	state    outboxState
	queuedAt time.Time
}

// OutboxQueue — in-memory outbox. Записи хранятся в порядке постановки, обработанные
// остаются в журнале со своим статусом.
type OutboxQueue struct {
	mu      sync.RWMutex
	entries []*outboxEntry
	byID    map[string]*outboxEntry
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *OutboxQueue {
	return &OutboxQueue{byID: make(map[string]*outboxEntry)}
}

// Enqueue ставит событие в очередь; внутри транзакции оно появится только после commit.
func (q *OutboxQueue) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	deferUntilCommit(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		e := &outboxEntry{msg: msg, state: outboxPending, queuedAt: time.Now().UTC()}
		q.entries = append(q.entries, e)
		q.byID[msg.ID] = e
	})
	return msg, nil
}

func (q *OutboxQueue) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	return q.pending(limit), nil
}

func (q *OutboxQueue) Stats(context.Context) (domain.OutboxStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var stats domain.OutboxStats
	for _, e := range q.entries {
		if e.state != outboxPending {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = e.queuedAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (q *OutboxQueue) MarkSent(_ context.Context, id string) error {
	return q.settle(id, outboxSent)
}

func (q *OutboxQueue) MarkFailed(_ context.Context, id string) error {
	return q.settle(id, outboxFailed)
}

func (q *OutboxQueue) settle(id string, state outboxState) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok || e.state != outboxPending {
		return fmt.Errorf("outbox %s is not pending: %w", id, domain.ErrOutboxPublish)
	}
	e.state = state
	return nil
}

// AllPending возвращает все неотправленные события в порядке постановки.
func (q *OutboxQueue) AllPending() []domain.OutboxMessage {
	return q.pending(0)
}

// pending собирает до limit pending-записей; limit 0 снимает ограничение.
func (q *OutboxQueue) pending(limit int) []domain.OutboxMessage {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := []domain.OutboxMessage{}
	for _, e := range q.entries {
		if limit > 0 && len(out) == limit {
			break
		}
		if e.state == outboxPending {
			out = append(out, e.msg)
		}
	}
	return out
}

var _ domain.OutboxRepository = (*OutboxQueue)(nil)
