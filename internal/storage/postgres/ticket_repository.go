package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type ticketRepository struct {
	db *sql.DB
}

// NewTicketRepository создаёт PostgreSQL-реализацию TicketRepository.
func NewTicketRepository(store *Store) domain.TicketRepository {
	return &ticketRepository{db: store.DB()}
}

func (r *ticketRepository) Create(ctx context.Context, ticket domain.Ticket) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}

	_, err := executorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO tickets (id, event_id, name, price, quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ticket.ID, ticket.EventID, ticket.Name, ticket.Price, ticket.Quantity, ticket.CreatedAt, now)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrTicketAlreadyExists
		}
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *ticketRepository) Get(ctx context.Context, id string) (domain.Ticket, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ticket, err := scanTicket(executorFor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, event_id, name, price, quantity, created_at, updated_at
		FROM tickets
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Ticket{}, domain.ErrTicketNotFound
		}
		return domain.Ticket{}, fmt.Errorf("select ticket: %w", err)
	}
	return ticket, nil
}

// Withdraw списывает остаток одним условным UPDATE: quantity >= qty проверяется в той же строке.
func (r *ticketRepository) Withdraw(ctx context.Context, id string, qty int32) (domain.Ticket, error) {
	if qty <= 0 {
		return domain.Ticket{}, domain.ErrQuantityInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	exec := executorFor(ctx, r.db)
	ticket, err := scanTicket(exec.QueryRowContext(ctx, `
		UPDATE tickets
		SET quantity = quantity - $1,
		    updated_at = $2
		WHERE id = $3
		  AND quantity >= $1
		RETURNING id, event_id, name, price, quantity, created_at, updated_at
	`, qty, time.Now().UTC(), id))
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Ticket{}, fmt.Errorf("withdraw ticket: %w", err)
	}

	// Строка не обновилась: либо билета нет, либо не хватает остатка.
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return domain.Ticket{}, fmt.Errorf("check ticket exists: %w", err)
	}
	if !exists {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return domain.Ticket{}, domain.ErrTicketSoldOut
}

func (r *ticketRepository) Restock(ctx context.Context, id string, qty int32) (domain.Ticket, error) {
	if qty <= 0 {
		return domain.Ticket{}, domain.ErrQuantityInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ticket, err := scanTicket(executorFor(ctx, r.db).QueryRowContext(ctx, `
		UPDATE tickets
		SET quantity = quantity + $1,
		    updated_at = $2
		WHERE id = $3
		RETURNING id, event_id, name, price, quantity, created_at, updated_at
	`, qty, time.Now().UTC(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Ticket{}, domain.ErrTicketNotFound
		}
		return domain.Ticket{}, fmt.Errorf("restock ticket: %w", err)
	}
	return ticket, nil
}

func scanTicket(row rowScanner) (domain.Ticket, error) {
	var ticket domain.Ticket
	err := row.Scan(
		&ticket.ID, &ticket.EventID, &ticket.Name, &ticket.Price,
		&ticket.Quantity, &ticket.CreatedAt, &ticket.UpdatedAt,
	)
	return ticket, err
}

var _ domain.TicketRepository = (*ticketRepository)(nil)
