package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	orderColumns = `id, order_id, user_id, ticket_id, quantity, unit_price, total, status,
		vouchers, payment, version, created_at, updated_at`
	orderIDUniqueConstraint = "orders_order_id_key"
)

// voucherRow — JSON-представление ваучера в колонке vouchers.
type voucherRow struct {
	Code    string `json:"voucher_id"`
	Printed bool   `json:"is_print"`
	Voided  bool   `json:"voided,omitempty"`
}

// paymentRow — JSON-представление ответа платёжного шлюза.
type paymentRow struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	vouchers, payment, err := encodeOrderDocuments(order)
	if err != nil {
		return err
	}

	_, err = executorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO orders (
			id, order_id, user_id, ticket_id, quantity, unit_price, total, status,
			vouchers, payment, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		order.ID, order.OrderID, order.UserID, order.TicketID, order.Quantity,
		order.UnitPrice, order.Total, string(order.Status), vouchers, payment,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			if pgErr.ConstraintName == orderIDUniqueConstraint {
				return domain.ErrOrderIDTaken
			}
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := executorFor(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_id = $1
	`, orderID)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) FindOwned(ctx context.Context, orderID, userID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := executorFor(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_id = $1
		  AND user_id = $2
	`, orderID, userID)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOwnedOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select owned order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter = filter.Normalize()
	exec := executorFor(ctx, r.db)

	var total int
	if err := exec.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM orders
		WHERE ($1 = '' OR user_id = $1)
	`, filter.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC, order_id DESC
		LIMIT $2 OFFSET $3
	`, filter.UserID, filter.Limit, filter.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, filter.Limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, total, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	vouchers, payment, err := encodeOrderDocuments(order)
	if err != nil {
		return err
	}

	exec := executorFor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    vouchers = $2,
		    payment = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE order_id = $5
		  AND version = $6
	`,
		string(order.Status),
		vouchers,
		payment,
		order.UpdatedAt,
		order.OrderID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := orderExists(ctx, exec, order.OrderID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r *orderRepository) Delete(ctx context.Context, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := executorFor(ctx, r.db).ExecContext(ctx, `DELETE FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		status   string
		vouchers []byte
		payment  []byte
	)

	if err := row.Scan(
		&order.ID, &order.OrderID, &order.UserID, &order.TicketID, &order.Quantity,
		&order.UnitPrice, &order.Total, &status, &vouchers, &payment,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)

	var rows []voucherRow
	if len(vouchers) > 0 {
		if err := json.Unmarshal(vouchers, &rows); err != nil {
			return domain.Order{}, fmt.Errorf("decode vouchers: %w", err)
		}
	}
	for _, v := range rows {
		order.Vouchers = append(order.Vouchers, domain.Voucher{Code: v.Code, Printed: v.Printed, Voided: v.Voided})
	}

	if len(payment) > 0 {
		var p paymentRow
		if err := json.Unmarshal(payment, &p); err != nil {
			return domain.Order{}, fmt.Errorf("decode payment: %w", err)
		}
		order.Payment = &domain.PaymentDescriptor{Token: p.Token, RedirectURL: p.RedirectURL}
	}

	return order, nil
}

func encodeOrderDocuments(order domain.Order) (vouchers []byte, payment []byte, err error) {
	rows := make([]voucherRow, 0, len(order.Vouchers))
	for _, v := range order.Vouchers {
		rows = append(rows, voucherRow{Code: v.Code, Printed: v.Printed, Voided: v.Voided})
	}
	if vouchers, err = json.Marshal(rows); err != nil {
		return nil, nil, fmt.Errorf("encode vouchers: %w", err)
	}

	if order.Payment != nil {
		if payment, err = json.Marshal(paymentRow{Token: order.Payment.Token, RedirectURL: order.Payment.RedirectURL}); err != nil {
			return nil, nil, fmt.Errorf("encode payment: %w", err)
		}
	}
	return vouchers, payment, nil
}

func orderExists(ctx context.Context, exec executor, orderID string) (bool, error) {
	var id string
	err := exec.QueryRowContext(ctx, `SELECT id FROM orders WHERE order_id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
