package httpsvc

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ticketing/internal/service/lifecycle"
)

// Envelope — общий формат ответа REST API.
type Envelope struct {
	Message    string      `json:"message"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination описывает страницу списка.
type Pagination struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// OrderResponse — представление заказа в REST API.
type OrderResponse struct {
	ID        string             `json:"id"`
	OrderID   string             `json:"order_id"`
	UserID    string             `json:"user_id"`
	TicketID  string             `json:"ticket_id"`
	Quantity  int32              `json:"quantity"`
	UnitPrice int64              `json:"unit_price"`
	Total     int64              `json:"total"`
	Status    string             `json:"status"`
	Vouchers  []VoucherResponse  `json:"vouchers"`
	Payment   *PaymentResponse   `json:"payment,omitempty"`
	Timeline  []TimelineResponse `json:"timeline,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type VoucherResponse struct {
	VoucherID string `json:"voucher_id"`
	IsPrint   bool   `json:"is_print"`
	Voided    bool   `json:"voided,omitempty"`
}

type PaymentResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type TimelineResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

func toOrderResponse(order domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:        order.ID,
		OrderID:   order.OrderID,
		UserID:    order.UserID,
		TicketID:  order.TicketID,
		Quantity:  order.Quantity,
		UnitPrice: order.UnitPrice,
		Total:     order.Total,
		Status:    string(order.Status),
		Vouchers:  make([]VoucherResponse, 0, len(order.Vouchers)),
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
	for _, v := range order.Vouchers {
		resp.Vouchers = append(resp.Vouchers, VoucherResponse{VoucherID: v.Code, IsPrint: v.Printed, Voided: v.Voided})
	}
	if order.Payment != nil {
		resp.Payment = &PaymentResponse{Token: order.Payment.Token, RedirectURL: order.Payment.RedirectURL}
	}
	return resp
}

func toTimelineResponse(events []domain.TimelineEvent) []TimelineResponse {
	out := make([]TimelineResponse, 0, len(events))
	for _, e := range events {
		out = append(out, TimelineResponse{Type: string(e.Type), Reason: e.Reason, Occurred: e.Occurred})
	}
	return out
}

func toPageResponse(page lifecycle.Page) ([]OrderResponse, *Pagination) {
	orders := make([]OrderResponse, 0, len(page.Orders))
	for _, o := range page.Orders {
		orders = append(orders, toOrderResponse(o))
	}
	return orders, &Pagination{
		Current:    page.Pagination.Current,
		Total:      page.Pagination.Total,
		TotalPages: page.Pagination.TotalPages,
	}
}

// encodeEnvelope сериализует ответ; используется и для кэша идемпотентности.
func encodeEnvelope(env Envelope) []byte {
	body, err := json.Marshal(env)
	if err != nil {
		log.WithError(err).Error("failed to encode response envelope")
		return []byte(`{"message":"Internal Server Error","data":null}`)
	}
	return body
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	writeRaw(w, status, encodeEnvelope(env))
}

// statusFor сопоставляет вид доменной ошибки с HTTP-статусом.
func statusFor(err error) int {
	switch {
	case errors.Is(err, idempotency.ErrInFlight),
		errors.Is(err, idempotency.ErrKeyTooLong),
		errors.Is(err, domain.ErrIdempotencyKeyReused):
		return http.StatusBadRequest
	}

	switch domain.KindOf(err) {
	case domain.ErrValidation, domain.ErrConflict, domain.ErrGateway:
		return http.StatusBadRequest
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrUnauthorized:
		return http.StatusForbidden
	case domain.ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage возвращает сообщение для клиента; внутренние ошибки скрываются за fallback.
func errorMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, idempotency.ErrInFlight),
		errors.Is(err, idempotency.ErrKeyTooLong),
		errors.Is(err, domain.ErrIdempotencyKeyReused):
		return err.Error()
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joinMessages(joined.Unwrap(), fallback)
	}
	return domain.MessageOf(err, fallback)
}

func joinMessages(errs []error, fallback string) string {
	msg := ""
	for _, e := range errs {
		part := domain.MessageOf(e, fallback)
		if msg == "" {
			msg = part
			continue
		}
		msg += ", " + part
	}
	if msg == "" {
		return fallback
	}
	return msg
}
