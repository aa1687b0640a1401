package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/storage/memory"
)

func newOrder(orderID, userID string, createdAt time.Time) domain.Order {
	ticket := domain.Ticket{ID: "ticket-1", Price: 100, Quantity: 10}
	return domain.NewOrder("id-"+orderID, orderID, userID, ticket, 2, createdAt)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func seededStore(t *testing.T, orders ...domain.Order) *memory.OrderStore {
	t.Helper()
	store := memory.NewOrderRepository()
	for _, o := range orders {
		require.NoError(t, store.Create(context.Background(), o))
	}
	return store
}

func TestOrderStore_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	order := newOrder("AB12C", "user-1", nowUTC())
	store := seededStore(t, order)

	stored, err := store.GetByOrderID(ctx, "AB12C")
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)

	_, err = store.GetByOrderID(ctx, "ZZZZZ")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	dup := newOrder("AB12C", "user-2", nowUTC())
	dup.ID = "another-id"
	assert.ErrorIs(t, store.Create(ctx, dup), domain.ErrOrderIDTaken)

	sameID := newOrder("QW7E2", "user-1", nowUTC())
	sameID.ID = order.ID
	assert.Error(t, store.Create(ctx, sameID))
}

func TestOrderStore_FindOwned(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, newOrder("AB12C", "user-1", nowUTC()))

	_, err := store.FindOwned(ctx, "AB12C", "user-1")
	require.NoError(t, err)

	for _, tc := range []struct{ orderID, userID string }{
		{"AB12C", "user-2"},
		{"ZZZZZ", "user-1"},
		{"AB12C", ""},
	} {
		_, err := store.FindOwned(ctx, tc.orderID, tc.userID)
		assert.ErrorIs(t, err, domain.ErrOwnedOrderNotFound, "%s/%s", tc.orderID, tc.userID)
	}
}

func TestOrderStore_ListPages(t *testing.T) {
	ctx := context.Background()
	base := nowUTC()
	store := memory.NewOrderRepository()
	for i := range 12 {
		owner := "user-1"
		if i%3 == 0 {
			owner = "user-2"
		}
		require.NoError(t, store.Create(ctx, newOrder(fmt.Sprintf("ORD%02d", i), owner, base.Add(time.Duration(i)*time.Minute))))
	}

	tests := []struct {
		name      string
		filter    domain.OrderFilter
		wantLen   int
		wantTotal int
		wantFirst string
	}{
		{name: "first page newest first", filter: domain.OrderFilter{Page: 1, Limit: 5}, wantLen: 5, wantTotal: 12, wantFirst: "ORD11"},
		{name: "last partial page", filter: domain.OrderFilter{Page: 3, Limit: 5}, wantLen: 2, wantTotal: 12, wantFirst: "ORD01"},
		{name: "beyond range", filter: domain.OrderFilter{Page: 9, Limit: 5}, wantLen: 0, wantTotal: 12},
		{name: "owner only", filter: domain.OrderFilter{UserID: "user-2"}, wantLen: 4, wantTotal: 4, wantFirst: "ORD09"},
		{name: "unknown owner", filter: domain.OrderFilter{UserID: "nobody"}, wantLen: 0, wantTotal: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, total, err := store.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			require.Len(t, page, tt.wantLen)
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, page[0].OrderID)
			}
		})
	}
}

func TestOrderStore_ListTieBreaksByCode(t *testing.T) {
	at := nowUTC()
	store := seededStore(t, newOrder("AAAAA", "user-1", at), newOrder("BBBBB", "user-1", at))

	page, _, err := store.List(context.Background(), domain.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "BBBBB", page[0].OrderID)
}

func TestOrderStore_SaveBumpsVersion(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, newOrder("AB12C", "user-1", nowUTC()))

	stored, err := store.GetByOrderID(ctx, "AB12C")
	require.NoError(t, err)
	stored.Status = domain.OrderStatusPending
	require.NoError(t, store.Save(ctx, stored))

	updated, err := store.GetByOrderID(ctx, "AB12C")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, updated.Status)
	assert.Equal(t, stored.Version+1, updated.Version)

	// устаревшая копия больше не сохраняется
	assert.True(t, domain.IsVersionConflict(store.Save(ctx, stored)))

	ghost := newOrder("NOPE1", "user-1", nowUTC())
	assert.ErrorIs(t, store.Save(ctx, ghost), domain.ErrOrderNotFound)
}

func TestOrderStore_DeleteFreesCode(t *testing.T) {
	ctx := context.Background()
	order := newOrder("AB12C", "user-1", nowUTC())
	store := seededStore(t, order)

	require.NoError(t, store.Delete(ctx, "AB12C"))
	assert.ErrorIs(t, store.Delete(ctx, "AB12C"), domain.ErrOrderNotFound)

	_, total, err := store.List(ctx, domain.OrderFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Zero(t, total)

	require.NoError(t, store.Create(ctx, order))
}

func TestOrderStore_RollbackRestoresIndexes(t *testing.T) {
	ctx := context.Background()
	kept := newOrder("AB12C", "user-1", nowUTC())
	store := seededStore(t, kept)
	tx := memory.NewTxManager()
	boom := errors.New("boom")

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Create(ctx, newOrder("QW7E2", "user-1", nowUTC())))
		require.NoError(t, store.Delete(ctx, "AB12C"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetByOrderID(ctx, "QW7E2")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	restored, err := store.FindOwned(ctx, "AB12C", "user-1")
	require.NoError(t, err)
	assert.Equal(t, kept.ID, restored.ID)

	page, total, err := store.List(ctx, domain.OrderFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "AB12C", page[0].OrderID)
}
