package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// ticketRepositoryInMemory хранит билеты и остатки в памяти.
type ticketRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Ticket
}

// NewTicketRepository создаёт in-memory реализацию TicketRepository.
func NewTicketRepository() domain.TicketRepository {
	return &ticketRepositoryInMemory{items: make(map[string]domain.Ticket)}
}

func (r *ticketRepositoryInMemory) Create(ctx context.Context, ticket domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[ticket.ID]; exists {
		return domain.ErrTicketAlreadyExists
	}
	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	r.items[ticket.ID] = ticket

	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.items, ticket.ID)
	})
	return nil
}

func (r *ticketRepositoryInMemory) Get(_ context.Context, id string) (domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticket, ok := r.items[id]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return ticket, nil
}

// Withdraw уменьшает остаток под мьютексом, только если остаток >= qty.
func (r *ticketRepositoryInMemory) Withdraw(ctx context.Context, id string, qty int32) (domain.Ticket, error) {
	if qty <= 0 {
		return domain.Ticket{}, domain.ErrQuantityInvalid
	}
	return r.adjust(ctx, id, -qty)
}

// Restock возвращает qty билетов на склад.
func (r *ticketRepositoryInMemory) Restock(ctx context.Context, id string, qty int32) (domain.Ticket, error) {
	if qty <= 0 {
		return domain.Ticket{}, domain.ErrQuantityInvalid
	}
	return r.adjust(ctx, id, qty)
}

func (r *ticketRepositoryInMemory) adjust(ctx context.Context, id string, delta int32) (domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	if current.Quantity+delta < 0 {
		return domain.Ticket{}, domain.ErrTicketSoldOut
	}

	updated := current
	updated.Quantity += delta
	updated.UpdatedAt = time.Now().UTC()
	r.items[id] = updated

	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.items[id] = current
	})
	return updated, nil
}

var _ domain.TicketRepository = (*ticketRepositoryInMemory)(nil)
