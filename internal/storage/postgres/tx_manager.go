package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type txKey struct{}

// executor — общий набор методов *sql.DB и *sql.Tx, через который работают репозитории.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// executorFor возвращает транзакцию из ctx, если она открыта, иначе пул соединений.
func executorFor(ctx context.Context, db *sql.DB) executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok && tx != nil {
		return tx
	}
	return db
}

// TxManager открывает транзакции PostgreSQL и передаёт их репозиториям через context.
type TxManager struct {
	db *sql.DB
}

// NewTxManager создаёт менеджер транзакций поверх Store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{db: store.DB()}
}

// WithinTx выполняет fn в транзакции. Ошибка fn или паника откатывают изменения.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	// Вложенный вызов работает в рамках внешней транзакции.
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ domain.TxManager = (*TxManager)(nil)
