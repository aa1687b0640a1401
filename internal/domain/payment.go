package domain

// PaymentLinkRequest — запрос ссылки на оплату к платёжному шлюзу.
type PaymentLinkRequest struct {
	OrderID string
	// Amount — сумма к оплате в минимальных денежных единицах.
	Amount int64
}

// Validate проверяет корректность запроса и возвращает ошибки, если они есть.
func (r *PaymentLinkRequest) Validate() []error {
	var errs []error

	switch {
	case r.OrderID == "":
		errs = append(errs, ErrOrderIDRequired)
	case r.Amount <= 0:
		errs = append(errs, ErrPaymentAmountInvalid)
	}

	return errs
}

// PaymentNotificationStatus — статус транзакции из уведомления шлюза.
type PaymentNotificationStatus string

const (
	PaymentNotificationSettlement PaymentNotificationStatus = "settlement"
	PaymentNotificationCapture    PaymentNotificationStatus = "capture"
	PaymentNotificationPending    PaymentNotificationStatus = "pending"
	PaymentNotificationExpire     PaymentNotificationStatus = "expire"
	PaymentNotificationCancel     PaymentNotificationStatus = "cancel"
	PaymentNotificationDeny       PaymentNotificationStatus = "deny"
)

// PaymentOutcome — что уведомление шлюза означает для заказа.
type PaymentOutcome int

const (
	PaymentOutcomeUnknown PaymentOutcome = iota
	PaymentOutcomePaid
	PaymentOutcomeAwaiting
	PaymentOutcomeFailed
)

// Outcome сводит статус транзакции к исходу для заказа.
func (s PaymentNotificationStatus) Outcome() PaymentOutcome {
	switch s {
	case PaymentNotificationSettlement, PaymentNotificationCapture:
		return PaymentOutcomePaid
	case PaymentNotificationPending:
		return PaymentOutcomeAwaiting
	case PaymentNotificationExpire, PaymentNotificationCancel, PaymentNotificationDeny:
		return PaymentOutcomeFailed
	default:
		return PaymentOutcomeUnknown
	}
}

// PaymentNotification — уведомление шлюза о результате оплаты заказа.
type PaymentNotification struct {
	OrderID           string
	TransactionStatus PaymentNotificationStatus
}
