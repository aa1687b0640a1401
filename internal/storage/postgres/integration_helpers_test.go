package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// testDSN пропускает тест, если база для тестов не задана.
func testDSN(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"TICKETING_POSTGRES_TEST_DSN", "TICKETING_POSTGRES_DSN"} {
		if dsn := strings.TrimSpace(os.Getenv(name)); dsn != "" {
			return dsn
		}
	}
	t.Skip("set TICKETING_POSTGRES_TEST_DSN to run postgres integration tests")
	return ""
}


func dialStore(t *testing.T) *Store {
	t.Helper()
	dsn := testDSN(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn, PoolConfig{MaxConns: 4})
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// freshStore мигрирует схему до последней версии и очищает таблицы.
func freshStore(t *testing.T) *Store {
	t.Helper()
	store := dialStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0), "migrate up")
	_, err := store.DB().ExecContext(ctx,
		`TRUNCATE idempotency_keys, outbox_messages, timeline_events, orders, tickets RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "truncate")
	return store
}

func sampleTicket(id string, price int64, qty int32) domain.Ticket {
	return domain.Ticket{ID: id, EventID: "event-1", Name: "Regular", Price: price, Quantity: qty}
}

func sampleOrder(orderID, userID string, createdAt time.Time) domain.Order {
	order := domain.NewOrder(uuid.NewString(), orderID, userID, sampleTicket("ticket-1", 50000, 100), 2, createdAt)
	order.Payment = &domain.PaymentDescriptor{Token: "tok-" + orderID, RedirectURL: "https://pay.example/" + orderID}
	return order
}
