package domain

import (
	"context"
	"time"
)

// PaymentGateway описывает взаимодействие с платёжным шлюзом.
type PaymentGateway interface {
	// CreatePaymentLink запрашивает ссылку на оплату заказа. Повторов внутри нет.
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentDescriptor, error)
}

// CodeGenerator выдаёт короткие коды заказов и ваучеров.
type CodeGenerator interface {
	// Generate возвращает случайный код длиной 5 символов из A-Z0-9.
	Generate() (string, error)
}

// TxManager выполняет fn в одной транзакции хранилища.
// Репозитории, вызванные с переданным ctx, работают внутри этой транзакции.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит заявки по ключам идемпотентности.
// Claim возвращает существующую запись вместе с ErrIdempotencyKeyClaimed или ErrIdempotencyKeyReused.
type IdempotencyRepository interface {
	Claim(ctx context.Context, claim IdempotencyClaim) (IdempotencyRecord, error)
	Find(ctx context.Context, owner, key string) (IdempotencyRecord, error)
	Settle(ctx context.Context, owner, key string, state IdempotencyState, code int, payload []byte) error
	// Release снимает незавершённую заявку, чтобы повтор с тем же ключом выполнился заново.
	Release(ctx context.Context, owner, key string) error
	Purge(ctx context.Context, before time.Time, limit int) (int, error)
}

// Operation задаёт константы операций жизненного цикла для метрик/логов.
type Operation string

const (
	OperationCreate   Operation = "create"
	OperationComplete Operation = "complete"
	OperationPending  Operation = "pending"
	OperationCancel   Operation = "cancel"
	OperationRemove   Operation = "remove"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
