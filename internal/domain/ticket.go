package domain

import "time"

// Ticket — категория билетов мероприятия с ценой и остатком.
type Ticket struct {
	ID      string
	EventID string
	Name    string
	// Price — цена за единицу в минимальных денежных единицах.
	Price int64
	// Quantity — сколько билетов ещё можно продать.
	Quantity  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет корректность полей билета.
func (t *Ticket) Validate() []error {
	var errs []error

	if t.ID == "" {
		errs = append(errs, ErrTicketIDRequired)
	}
	if t.Price <= 0 {
		errs = append(errs, ErrTicketPriceInvalid)
	}
	if t.Quantity < 0 {
		errs = append(errs, ErrTicketQuantityNegative)
	}

	return errs
}

// Available сообщает, хватает ли остатка на qty билетов.
func (t Ticket) Available(qty int32) bool {
	return qty > 0 && t.Quantity >= qty
}
