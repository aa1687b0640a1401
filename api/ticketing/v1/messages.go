// Package ticketingv1 описывает gRPC API сервиса заказов на билеты.
// Сообщения передаются в JSON через кодек с content-subtype "json".
package ticketingv1

import "time"

// OrderStatus — статус заказа в API.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Voucher struct {
	VoucherID string `json:"voucher_id"`
	IsPrint   bool   `json:"is_print"`
	Voided    bool   `json:"voided,omitempty"`
}

type Payment struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type Order struct {
	ID        string      `json:"id"`
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id"`
	TicketID  string      `json:"ticket_id"`
	Quantity  int32       `json:"quantity"`
	UnitPrice int64       `json:"unit_price"`
	Total     int64       `json:"total"`
	Status    OrderStatus `json:"status"`
	Vouchers  []Voucher   `json:"vouchers"`
	Payment   *Payment    `json:"payment,omitempty"`
	Version   int64       `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type TimelineEvent struct {
	Type     string `json:"type"`
	Reason   string `json:"reason,omitempty"`
	UnixTime int64  `json:"unix_time"`
}

type Pagination struct {
	Current    int32 `json:"current"`
	Total      int32 `json:"total"`
	TotalPages int32 `json:"total_pages"`
}

type CreateOrderRequest struct {
	TicketID string `json:"ticket_id"`
	Quantity int32  `json:"quantity"`
}

type CreateOrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderResponse struct {
	Order    *Order          `json:"order"`
	Timeline []TimelineEvent `json:"timeline"`
}

// ListOrdersRequest — страница заказов. Администратор получает все заказы, участник только свои.
type ListOrdersRequest struct {
	Page  int32 `json:"page"`
	Limit int32 `json:"limit"`
}

type ListOrdersResponse struct {
	Orders     []*Order   `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

type CompleteOrderRequest struct {
	OrderID string `json:"order_id"`
}

type CompleteOrderResponse struct {
	Order *Order `json:"order"`
}

type SetPendingRequest struct {
	OrderID string `json:"order_id"`
}

type SetPendingResponse struct {
	Order *Order `json:"order"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

type CancelOrderResponse struct {
	Order *Order `json:"order"`
}

type RemoveOrderRequest struct {
	OrderID string `json:"order_id"`
}

type RemoveOrderResponse struct {
	Order *Order `json:"order"`
}
