package domain

import "errors"

// Базовые виды ошибок. Транспортный слой сопоставляет их с HTTP-статусами и gRPC-кодами.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrGateway      = errors.New("payment gateway error")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable — временная перегрузка сервиса, запрос можно повторить позже.
	ErrUnavailable = errors.New("temporarily unavailable")
)

// Error — доменная ошибка с видом и сообщением для клиента.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

// Unwrap позволяет проверять вид ошибки через errors.Is.
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserIDRequired = newError(ErrValidation, "user_id is required")
	// Ошибка отсутствующего идентификатора билета.
	ErrTicketIDRequired = newError(ErrValidation, "ticket_id is required")
	// Ошибка отсутствующего кода заказа.
	ErrOrderIDRequired = newError(ErrValidation, "order_id is required")
	// Ошибка при некорректном количестве билетов (<= 0).
	ErrQuantityInvalid = newError(ErrValidation, "quantity must be greater than zero")
	// Ошибка слишком большого количества билетов в одном заказе.
	ErrQuantityTooLarge = newError(ErrValidation, "quantity must not exceed 100")
	// Ошибка суммы заказа, не помещающейся в int64.
	ErrOrderTotalOverflow = newError(ErrValidation, "order total is too large")
	// Ошибка неположительной цены билета.
	ErrTicketPriceInvalid = newError(ErrValidation, "ticket price must be greater than zero")
	// Ошибка отрицательного остатка билетов.
	ErrTicketQuantityNegative = newError(ErrValidation, "ticket quantity must be non-negative")
	// Ошибка несоответствия итоговой суммы цене и количеству.
	ErrTotalMismatch = newError(ErrValidation, "order total does not match price * quantity")
	// Ошибка несоответствия числа ваучеров количеству билетов.
	ErrVoucherCountMismatch = newError(ErrValidation, "voucher count does not match order quantity")
	// Ошибка повторяющегося кода ваучера внутри заказа.
	ErrVoucherCodeDuplicate = newError(ErrValidation, "voucher codes must be distinct")
	// Ошибка выдачи ваучеров заказу, который не завершён.
	ErrVouchersBeforeCompletion = newError(ErrValidation, "vouchers are issued only for completed orders")
	// Ошибка неположительной суммы к оплате.
	ErrPaymentAmountInvalid = newError(ErrValidation, "payment amount must be greater than zero")
	// Ошибка неизвестного статуса заказа.
	ErrOrderStatusInvalid = newError(ErrValidation, "order status is invalid")

	// ErrTicketNotFound возвращается, если билет не найден в хранилище.
	ErrTicketNotFound = newError(ErrNotFound, "Ticket Not Found!")
	// ErrTicketSoldOut — запрошенное количество превышает остаток.
	ErrTicketSoldOut = newError(ErrConflict, "Ticket Sold Out!")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = newError(ErrNotFound, "Order Not Found!")
	// ErrOwnedOrderNotFound — заказ не найден среди заказов пользователя.
	ErrOwnedOrderNotFound = newError(ErrNotFound, "Order Not Found")
	// ErrOrderTicketNotFound — билет заказа исчез к моменту завершения.
	ErrOrderTicketNotFound = newError(ErrNotFound, "Ticket for this Order is Not Found!")
	ErrOrderAlreadyCompleted = newError(ErrConflict, "Order is Already Completed!")
	ErrOrderAlreadyCancelled = newError(ErrConflict, "Order is Already Cancelled!")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = newError(ErrConflict, "order version conflict")
	// ErrOrderIDTaken — сгенерированный код заказа уже занят.
	ErrOrderIDTaken = newError(ErrConflict, "order id already exists")
	// ErrTicketAlreadyExists — билет с таким идентификатором уже заведён.
	ErrTicketAlreadyExists = newError(ErrConflict, "ticket already exists")

	// ErrPaymentGateway — платёжный шлюз не вернул ссылку (ошибка или таймаут).
	ErrPaymentGateway = newError(ErrGateway, "Failed to Create Payment Link!")
	// ErrPaymentGatewayOpen — circuit breaker шлюза разомкнут.
	ErrPaymentGatewayOpen = newError(ErrGateway, "Payment Gateway is Unavailable!")

	// ErrTokenMissing — нет заголовка Authorization или он не в формате Bearer.
	ErrTokenMissing = newError(ErrUnauthorized, "Unauthorized!")
	// ErrTokenInvalid — токен не прошёл проверку подписи или срока.
	ErrTokenInvalid = newError(ErrUnauthorized, "User Not Found!")
	// ErrForbidden — роль пользователя не допускается к операции.
	ErrForbidden = newError(ErrUnauthorized, "Forbidden")

	// ErrOutboxBacklogFull — очередь неотправленных событий переполнена.
	ErrOutboxBacklogFull = newError(ErrUnavailable, "Service is Busy, Try Again Later!")
)

var (
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyFingerprintRequired — заявка без отпечатка запроса.
	ErrIdempotencyFingerprintRequired = errors.New("idempotency fingerprint is required")
	// ErrIdempotencyKeyClaimed — ключ уже занят тем же запросом.
	ErrIdempotencyKeyClaimed = errors.New("idempotency key already claimed")
	// ErrIdempotencyKeyReused — ключ переиспользован для другого запроса.
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — ключ отсутствует или уже удалён.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// KindOf возвращает вид доменной ошибки или nil для внутренних ошибок.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrGateway, ErrUnauthorized, ErrUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// MessageOf возвращает сообщение для клиента; для внутренних ошибок — fallback.
func MessageOf(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return fallback
}
