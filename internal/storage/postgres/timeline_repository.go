package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

// Append пишет запись в той же транзакции, что и изменение заказа.
func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	occurred := event.Occurred
	if occurred.IsZero() {
		occurred = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	const q = `INSERT INTO timeline_events (order_id, type, reason, occurred) VALUES ($1, $2, $3, $4)`
	if _, err := executorFor(ctx, r.db).ExecContext(ctx, q, event.OrderID, string(event.Type), event.Reason, occurred.UTC()); err != nil {
		return fmt.Errorf("timeline %s for order %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

// List возвращает историю заказа; при равном времени порядок задаёт id вставки.
func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	const q = `SELECT type, reason, occurred FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id`
	rows, err := executorFor(ctx, r.db).QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("timeline of order %s: %w", orderID, err)
	}
	defer rows.Close()

	history := []domain.TimelineEvent{}
	for rows.Next() {
		var (
			kind string
			e    = domain.TimelineEvent{OrderID: orderID}
		)
		if err := rows.Scan(&kind, &e.Reason, &e.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline row: %w", err)
		}
		e.Type = domain.TimelineKind(kind)
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeline of order %s: %w", orderID, err)
	}
	return history, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
