package domain

import "time"

// MaxOrderQuantity — сколько билетов можно купить одним заказом.
const MaxOrderQuantity = 100

// OrderStatus описывает жизненный цикл заказа на билеты.
type OrderStatus string

const (
	// OrderStatusCreated — заказ создан, ссылка на оплату выдана.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusPending — оплата ожидает подтверждения.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted — оплата подтверждена, ваучеры выданы, остаток списан.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Voucher — код доступа на один билет завершённого заказа.
type Voucher struct {
	Code    string
	Printed bool
	// Voided выставляется, когда завершённый заказ отменяют.
	Voided bool
}

// PaymentDescriptor — ответ шлюза на запрос ссылки оплаты.
type PaymentDescriptor struct {
	Token       string
	RedirectURL string
}

// Order агрегирует состояние заказа на билеты.
type Order struct {
	// ID — ключ хранения.
	ID string
	// OrderID — короткий код заказа для клиента, уникален.
	OrderID  string
	UserID   string
	TicketID string
	Quantity int32
	// UnitPrice — цена билета на момент покупки в минимальных денежных единицах.
	UnitPrice int64
	// Total вычисляется один раз при создании и больше не меняется.
	Total     int64
	Status    OrderStatus
	Vouchers  []Voucher
	Payment   *PaymentDescriptor
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder собирает заказ в статусе created для указанного билета.
func NewOrder(id, orderID, userID string, ticket Ticket, qty int32, now time.Time) Order {
	return Order{
		ID:        id,
		OrderID:   orderID,
		UserID:    userID,
		TicketID:  ticket.ID,
		Quantity:  qty,
		UnitPrice: ticket.Price,
		Total:     ticket.Price * int64(qty),
		Status:    OrderStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Complete переводит заказ в completed и выпускает ваучеры с переданными кодами.
func (o *Order) Complete(codes []string, now time.Time) error {
	switch o.Status {
	case OrderStatusCompleted:
		return ErrOrderAlreadyCompleted
	case OrderStatusCancelled:
		return ErrOrderAlreadyCancelled
	}
	if len(codes) != int(o.Quantity) {
		return ErrVoucherCountMismatch
	}

	vouchers := make([]Voucher, 0, len(codes))
	for _, code := range codes {
		vouchers = append(vouchers, Voucher{Code: code})
	}
	o.Vouchers = vouchers
	o.Status = OrderStatusCompleted
	o.UpdatedAt = now
	return nil
}

// SetPending переводит заказ в pending. Возвращает false, если заказ уже в pending.
func (o *Order) SetPending(now time.Time) (bool, error) {
	switch o.Status {
	case OrderStatusPending:
		return false, nil
	case OrderStatusCompleted:
		return false, ErrOrderAlreadyCompleted
	case OrderStatusCancelled:
		return false, ErrOrderAlreadyCancelled
	}
	o.Status = OrderStatusPending
	o.UpdatedAt = now
	return true, nil
}

// Cancel отменяет заказ. changed=false — заказ уже был отменён;
// wasCompleted=true — нужно вернуть билеты на склад.
func (o *Order) Cancel(now time.Time) (changed, wasCompleted bool) {
	switch o.Status {
	case OrderStatusCancelled:
		return false, false
	case OrderStatusCompleted:
		wasCompleted = true
		for i := range o.Vouchers {
			o.Vouchers[i].Voided = true
		}
	}
	o.Status = OrderStatusCancelled
	o.UpdatedAt = now
	return true, wasCompleted
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if o.UserID == "" {
		errs = append(errs, ErrUserIDRequired)
	}
	if o.TicketID == "" {
		errs = append(errs, ErrTicketIDRequired)
	}
	if o.Quantity <= 0 {
		errs = append(errs, ErrQuantityInvalid)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	if o.UnitPrice*int64(o.Quantity) != o.Total {
		errs = append(errs, ErrTotalMismatch)
	}

	// Ваучеры есть только у завершённых (и отменённых после завершения) заказов.
	switch {
	case o.Status == OrderStatusCompleted && len(o.Vouchers) != int(o.Quantity):
		errs = append(errs, ErrVoucherCountMismatch)
	case (o.Status == OrderStatusCreated || o.Status == OrderStatusPending) && len(o.Vouchers) > 0:
		errs = append(errs, ErrVouchersBeforeCompletion)
	}

	seen := make(map[string]struct{}, len(o.Vouchers))
	for _, v := range o.Vouchers {
		if _, ok := seen[v.Code]; ok {
			errs = append(errs, ErrVoucherCodeDuplicate)
			break
		}
		seen[v.Code] = struct{}{}
	}

	return errs
}

// Clone возвращает копию заказа без общих слайсов и указателей.
func (o Order) Clone() Order {
	if o.Vouchers != nil {
		o.Vouchers = append([]Voucher(nil), o.Vouchers...)
	}
	if o.Payment != nil {
		p := *o.Payment
		o.Payment = &p
	}
	return o
}
