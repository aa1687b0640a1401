package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

func TestOrderRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := freshStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("AAAA1", "user-1", now.Add(-2*time.Minute))
	order2 := sampleOrder("AAAA2", "user-1", now.Add(-time.Minute))
	order3 := sampleOrder("AAAA3", "user-2", now)

	for _, o := range []domain.Order{order1, order2, order3} {
		require.NoError(t, repo.Create(ctx, o))
	}

	got, err := repo.GetByOrderID(ctx, order1.OrderID)
	require.NoError(t, err)
	require.Equal(t, order1.ID, got.ID)
	require.Equal(t, order1.Total, got.Total)
	require.Equal(t, domain.OrderStatusCreated, got.Status)
	require.NotNil(t, got.Payment)
	require.Equal(t, "tok-AAAA1", got.Payment.Token)
	require.Empty(t, got.Vouchers)

	page, total, err := repo.List(ctx, domain.OrderFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, page, 2)
	require.Equal(t, "AAAA3", page[0].OrderID)

	owned, ownedTotal, err := repo.List(ctx, domain.OrderFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, 2, ownedTotal)
	require.Equal(t, "AAAA2", owned[0].OrderID)

	require.NoError(t, got.Complete([]string{"V0001", "V0002"}, now.Add(time.Minute)))
	require.NoError(t, repo.Save(ctx, got))

	updated, err := repo.FindOwned(ctx, order1.OrderID, "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, updated.Status)
	require.Equal(t, got.Version+1, updated.Version)
	require.Len(t, updated.Vouchers, 2)
	require.False(t, updated.Vouchers[0].Printed)
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := freshStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	base := sampleOrder("ERR01", "user-1", time.Now().UTC().Round(time.Microsecond))

	_, err := repo.GetByOrderID(ctx, "MISS0")
	require.True(t, errors.Is(err, domain.ErrOrderNotFound), "got %v", err)

	require.NoError(t, repo.Create(ctx, base))

	dup := sampleOrder("ERR01", "user-2", time.Now().UTC())
	require.ErrorIs(t, repo.Create(ctx, dup), domain.ErrOrderIDTaken)

	_, err = repo.FindOwned(ctx, "ERR01", "user-2")
	require.ErrorIs(t, err, domain.ErrOwnedOrderNotFound)

	stale := base
	stale.Version = 7
	require.ErrorIs(t, repo.Save(ctx, stale), domain.ErrOrderVersionConflict)

	missing := sampleOrder("MISS1", "user-1", time.Now().UTC())
	require.ErrorIs(t, repo.Save(ctx, missing), domain.ErrOrderNotFound)

	require.NoError(t, repo.Delete(ctx, "ERR01"))
	require.ErrorIs(t, repo.Delete(ctx, "ERR01"), domain.ErrOrderNotFound)
}

func TestTicketRepository_PostgresWithdrawRestock(t *testing.T) {
	store := freshStore(t)
	repo := NewTicketRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleTicket("ticket-1", 50000, 3)))
	require.ErrorIs(t, repo.Create(ctx, sampleTicket("ticket-1", 50000, 3)), domain.ErrTicketAlreadyExists)

	ticket, err := repo.Withdraw(ctx, "ticket-1", 2)
	require.NoError(t, err)
	require.EqualValues(t, 1, ticket.Quantity)

	_, err = repo.Withdraw(ctx, "ticket-1", 2)
	require.ErrorIs(t, err, domain.ErrTicketSoldOut)

	_, err = repo.Withdraw(ctx, "missing", 1)
	require.ErrorIs(t, err, domain.ErrTicketNotFound)

	ticket, err = repo.Restock(ctx, "ticket-1", 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, ticket.Quantity)
}

func TestTxManager_PostgresRollback(t *testing.T) {
	store := freshStore(t)
	orders := NewOrderRepository(store)
	tickets := NewTicketRepository(store)
	outbox := NewOutboxRepository(store)
	tx := NewTxManager(store)
	ctx := context.Background()

	require.NoError(t, tickets.Create(ctx, sampleTicket("ticket-1", 50000, 5)))
	order := sampleOrder("TX001", "user-1", time.Now().UTC().Round(time.Microsecond))
	require.NoError(t, orders.Create(ctx, order))

	failure := errors.New("boom")
	err := tx.WithinTx(ctx, func(txCtx context.Context) error {
		current, err := orders.GetByOrderID(txCtx, "TX001")
		if err != nil {
			return err
		}
		if err := current.Complete([]string{"V0001", "V0002"}, time.Now().UTC()); err != nil {
			return err
		}
		if err := orders.Save(txCtx, current); err != nil {
			return err
		}
		if _, err := tickets.Withdraw(txCtx, "ticket-1", 2); err != nil {
			return err
		}
		if _, err := outbox.Enqueue(txCtx, domain.OutboxMessage{AggregateType: "order", AggregateID: "TX001", EventType: "order.completed", Payload: []byte(`{}`)}); err != nil {
			return err
		}
		return failure
	})
	require.ErrorIs(t, err, failure)

	stored, err := orders.GetByOrderID(ctx, "TX001")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCreated, stored.Status)

	ticket, err := tickets.Get(ctx, "ticket-1")
	require.NoError(t, err)
	require.EqualValues(t, 5, ticket.Quantity)

	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}
