package domain

import "context"

const (
	// DefaultPage и DefaultLimit применяются, если клиент не передал пагинацию.
	DefaultPage  = 1
	DefaultLimit = 10
)

// OrderFilter задаёт выборку заказов. Пустой UserID — все заказы.
type OrderFilter struct {
	UserID string
	Page   int
	Limit  int
}

// Normalize подставляет значения по умолчанию вместо неположительных.
func (f OrderFilter) Normalize() OrderFilter {
	if f.Page <= 0 {
		f.Page = DefaultPage
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	return f
}

// Offset возвращает число пропускаемых записей.
func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Pagination описывает страницу выборки.
type Pagination struct {
	Current    int
	Total      int
	TotalPages int
}

// NewPagination считает число страниц как ceil(total / limit).
func NewPagination(filter OrderFilter, total int) Pagination {
	filter = filter.Normalize()
	return Pagination{
		Current:    filter.Page,
		Total:      total,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
	}
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderIDTaken, если код заказа уже занят.
	Create(ctx context.Context, order Order) error
	// GetByOrderID возвращает заказ по коду или ErrOrderNotFound.
	GetByOrderID(ctx context.Context, orderID string) (Order, error)
	// FindOwned возвращает заказ по коду, только если он принадлежит userID.
	FindOwned(ctx context.Context, orderID, userID string) (Order, error)
	// List возвращает страницу заказов (createdAt DESC) и общее количество.
	List(ctx context.Context, filter OrderFilter) ([]Order, int, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
	// Delete удаляет заказ по коду.
	Delete(ctx context.Context, orderID string) error
}

// TicketRepository описывает хранилище билетов и их остатков.
type TicketRepository interface {
	Create(ctx context.Context, ticket Ticket) error
	// Get возвращает билет или ErrTicketNotFound.
	Get(ctx context.Context, id string) (Ticket, error)
	// Withdraw атомарно уменьшает остаток на qty, только если остаток >= qty.
	// Возвращает ErrTicketNotFound или ErrTicketSoldOut.
	Withdraw(ctx context.Context, id string, qty int32) (Ticket, error)
	// Restock возвращает qty билетов на склад.
	Restock(ctx context.Context, id string, qty int32) (Ticket, error)
}
