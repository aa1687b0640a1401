package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type txKey struct{}

// journal накапливает компенсации и отложенные записи одной транзакции.
type journal struct {
	undo     []func()
	onCommit []func()
}

// TxManager — in-memory реализация единицы работы.
// Транзакции сериализуются; при ошибке изменения заказов и билетов откатываются
// в обратном порядке, а события outbox/timeline записываются только после commit.
type TxManager struct {
	mu sync.Mutex
}

// NewTxManager создаёт менеджер транзакций для in-memory хранилища.
func NewTxManager() *TxManager {
	return &TxManager{}
}

// WithinTx выполняет fn атомарно относительно других транзакций.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// Вложенный вызов работает в рамках внешней транзакции.
	if journalFrom(ctx) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		return err
	}
	for _, apply := range j.onCommit {
		apply()
	}
	return nil
}

func journalFrom(ctx context.Context) *journal {
	if ctx == nil {
		return nil
	}
	j, _ := ctx.Value(txKey{}).(*journal)
	return j
}

// recordUndo регистрирует компенсацию, если вызов идёт внутри транзакции.
func recordUndo(ctx context.Context, undo func()) {
	if j := journalFrom(ctx); j != nil {
		j.undo = append(j.undo, undo)
	}
}

// deferUntilCommit откладывает запись до фиксации транзакции; вне транзакции выполняет сразу.
func deferUntilCommit(ctx context.Context, apply func()) {
	if j := journalFrom(ctx); j != nil {
		j.onCommit = append(j.onCommit, apply)
		return
	}
	apply()
}

var _ domain.TxManager = (*TxManager)(nil)
