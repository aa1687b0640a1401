package httpsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/auth"
	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ticketing/internal/service/lifecycle"
)

const maxBodyBytes = 1 << 20

// CreateOrderRequest — тело POST /api/orders.
type CreateOrderRequest struct {
	TicketID string `json:"ticket_id" validate:"required"`
	Quantity int32  `json:"quantity" validate:"required,gt=0,lte=100"`
}

// CancelOrderRequest — необязательное тело PUT /api/orders/{orderId}/cancelled.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

// ListOrdersRequest — параметры пагинации.
type ListOrdersRequest struct {
	Page  int `validate:"gte=0"`
	Limit int `validate:"gte=0,lte=100"`
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	err := h.validate.StructCtx(ctx, payload)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return &domain.Error{Kind: domain.ErrValidation, Message: err.Error()}
	}

	messages := make([]string, len(fieldErrors))
	for i, fe := range fieldErrors {
		messages[i] = fmt.Sprintf("invalid '%s' with value '%v'", fe.Field(), fe.Value())
	}
	return &domain.Error{Kind: domain.ErrValidation, Message: strings.Join(messages, ", ")}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("order request failed")
	}
	writeJSON(w, status, Envelope{Message: errorMessage(err, fallback)})
}

// idempotent выполняет run под ключом из заголовка Idempotency-Key и воспроизводит сохранённый ответ при повторе.
func (h *Handler) idempotent(
	w http.ResponseWriter,
	r *http.Request,
	owner, operation string,
	body []byte,
	fallback string,
	run func(ctx context.Context) (int, Envelope, error),
) {
	req := idempotency.Request{
		Owner:     owner,
		Key:       r.Header.Get(IdempotencyKeyHeader),
		Operation: operation,
		Body:      body,
	}
	resp, replayed, err := h.guard.Do(r.Context(), req,
		func(ctx context.Context) (idempotency.Response, error) {
			status, env, cause := run(ctx)
			return idempotency.Response{
				Status:    status,
				Body:      encodeEnvelope(env),
				Failed:    status >= http.StatusBadRequest,
				Transient: transient(status, cause),
			}, nil
		})
	if err != nil {
		h.fail(w, r, err, fallback)
		return
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if len(resp.Body) == 0 {
		resp.Body = encodeEnvelope(Envelope{Message: fallback})
	}
	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	writeRaw(w, status, resp.Body)
}

func failure(err error, fallback string) (int, Envelope, error) {
	return statusFor(err), Envelope{Message: errorMessage(err, fallback)}, err
}

// transient — отказ, после которого тот же ключ идемпотентности должен выполниться заново:
// ошибки сервера и недоступность платёжного шлюза.
func transient(status int, cause error) bool {
	return status >= http.StatusInternalServerError || errors.Is(cause, domain.ErrGateway)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	const fallback = "Failed to Create an Order!"
	identity, _ := auth.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, r, err, fallback)
		return
	}

	var req CreateOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Message: err.Error()})
		return
	}
	if err := h.validateRequest(r.Context(), req); err != nil {
		h.fail(w, r, err, fallback)
		return
	}

	h.idempotent(w, r, identity.UserID, "create", body, fallback, func(ctx context.Context) (int, Envelope, error) {
		order, err := h.orders.Create(ctx, lifecycle.CreateInput{
			UserID:   identity.UserID,
			TicketID: req.TicketID,
			Quantity: req.Quantity,
		})
		if err != nil {
			return failure(err, fallback)
		}
		return http.StatusOK, Envelope{Message: "Order Successfully Created!", Data: toOrderResponse(order)}, nil
	})
}

func (h *Handler) parseListRequest(r *http.Request) (ListOrdersRequest, error) {
	qs := r.URL.Query()
	var req ListOrdersRequest
	for _, field := range []struct {
		name string
		dst  *int
	}{
		{"page", &req.Page},
		{"limit", &req.Limit},
	} {
		raw := qs.Get(field.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, &domain.Error{
				Kind:    domain.ErrValidation,
				Message: fmt.Sprintf("invalid '%s' with value '%v'", field.name, raw),
			}
		}
		*field.dst = v
	}
	return req, h.validateRequest(r.Context(), req)
}

func (h *Handler) findAll(w http.ResponseWriter, r *http.Request) {
	const fallback = "Failed to Find All Orders!"
	req, err := h.parseListRequest(r)
	if err != nil {
		h.fail(w, r, err, fallback)
		return
	}

	page, err := h.orders.ListAll(r.Context(), req.Page, req.Limit)
	if err != nil {
		h.fail(w, r, err, fallback)
		return
	}
	orders, pagination := toPageResponse(page)
	writeJSON(w, http.StatusOK, Envelope{Message: "Success Finding All Order!", Data: orders, Pagination: pagination})
}

func (h *Handler) findAllByMember(w http.ResponseWriter, r *http.Request) {
	const fallback = "Failed to Find All Orders!"
	identity, _ := auth.FromContext(r.Context())

	req, err := h.parseListRequest(r)
	if err != nil {
		h.fail(w, r, err, fallback)
		return
	}

	page, err := h.orders.ListByMember(r.Context(), identity.UserID, req.Page, req.Limit)
	if err != nil {
		h.fail(w, r, err, fallback)
		return
	}
	orders, pagination := toPageResponse(page)
	writeJSON(w, http.StatusOK, Envelope{Message: "Success Finding All Order!", Data: orders, Pagination: pagination})
}

func (h *Handler) findOne(w http.ResponseWriter, r *http.Request) {
	const fallback = "Failed to Find This Order!"
	orderID := mux.Vars(r)["orderId"]

	order, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err, fallback)
		return
	}

	resp := toOrderResponse(order)
	if withTimeline, _ := strconv.ParseBool(r.URL.Query().Get("timeline")); withTimeline {
		events, err := h.orders.Timeline(r.Context(), order.OrderID)
		if err != nil {
			h.fail(w, r, err, fallback)
			return
		}
		resp.Timeline = toTimelineResponse(events)
	}
	writeJSON(w, http.StatusOK, Envelope{Message: "Order Found Successfully!", Data: resp})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	const fallback = "Order is not Completed!"
	identity, _ := auth.FromContext(r.Context())
	orderID := mux.Vars(r)["orderId"]

	h.idempotent(w, r, identity.UserID, "complete", []byte(orderID), fallback, func(ctx context.Context) (int, Envelope, error) {
		order, err := h.orders.Complete(ctx, orderID, identity.UserID)
		if err != nil {
			return failure(err, fallback)
		}
		return http.StatusOK, Envelope{Message: "Order Completed Successfully!", Data: toOrderResponse(order)}, nil
	})
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	const fallback = "Order failed to Pending!"
	order, err := h.orders.SetPending(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		h.fail(w, r, err, fallback)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Message: "Order Pending Successfully!", Data: toOrderResponse(order)})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	const fallback = "Failed to cancel Order!"

	var req CancelOrderRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, Envelope{Message: err.Error()})
		return
	}
	if err := h.validateRequest(r.Context(), req); err != nil {
		h.fail(w, r, err, fallback)
		return
	}

	order, err := h.orders.Cancel(r.Context(), mux.Vars(r)["orderId"], req.Reason)
	if err != nil {
		h.fail(w, r, err, fallback)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Message: "Order Cancelled Successfully!", Data: toOrderResponse(order)})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	const fallback = "Failed to Remove Order!"
	order, err := h.orders.Remove(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		h.fail(w, r, err, fallback)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Message: "Order Removed Successfully!", Data: toOrderResponse(order)})
}
