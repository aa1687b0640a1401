package grpcsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ticketingv1 "github.com/vladislavdragonenkov/ticketing/api/ticketing/v1"
	"github.com/vladislavdragonenkov/ticketing/internal/auth"
	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ticketing/internal/service/lifecycle"
)

// Orders — операции жизненного цикла заказа, которые использует gRPC API.
type Orders interface {
	Create(ctx context.Context, in lifecycle.CreateInput) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
	ListAll(ctx context.Context, page, limit int) (lifecycle.Page, error)
	ListByMember(ctx context.Context, userID string, page, limit int) (lifecycle.Page, error)
	Complete(ctx context.Context, orderID, userID string) (domain.Order, error)
	SetPending(ctx context.Context, orderID string) (domain.Order, error)
	Cancel(ctx context.Context, orderID, reason string) (domain.Order, error)
	Remove(ctx context.Context, orderID string) (domain.Order, error)
}

// OrderService реализует gRPC API поверх сервиса жизненного цикла заказов.
type OrderService struct {
	ticketingv1.UnimplementedOrderServiceServer

	orders Orders
	guard  *idempotency.Guard
	logger *log.Entry
}

const (
	idempotencyKeyHeader = "idempotency-key"
	maxListLimit         = 100
)

// NewOrderService конструирует сервис с зависимостями. guard может быть nil.
func NewOrderService(orders Orders, guard *idempotency.Guard, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	return &OrderService{
		orders: orders,
		guard:  guard,
		logger: logger,
	}
}

// CreateOrder оформляет заказ от имени участника.
func (s *OrderService) CreateOrder(ctx context.Context, req *ticketingv1.CreateOrderRequest) (*ticketingv1.CreateOrderResponse, error) {
	identity, err := requireRole(ctx, auth.RoleMember)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return withIdempotency(s, ctx, ticketingv1.OrderService_CreateOrder_FullMethodName, identity, req,
		func(ctx context.Context) (*ticketingv1.CreateOrderResponse, error) {
			order, err := s.orders.Create(ctx, lifecycle.CreateInput{
				UserID:   identity.UserID,
				TicketID: req.TicketID,
				Quantity: req.Quantity,
			})
			if err != nil {
				return nil, s.toStatus(err, "CreateOrder")
			}
			return &ticketingv1.CreateOrderResponse{Order: toAPIOrder(order)}, nil
		})
}

// GetOrder возвращает заказ и его таймлайн.
func (s *OrderService) GetOrder(ctx context.Context, req *ticketingv1.GetOrderRequest) (*ticketingv1.GetOrderResponse, error) {
	if _, err := requireRole(ctx, auth.RoleAdmin, auth.RoleMember); err != nil {
		return nil, err
	}
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, domain.ErrOrderIDRequired.Message)
	}

	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder")
	}

	events, err := s.orders.Timeline(ctx, order.OrderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.OrderID).Warn("failed to list timeline events")
	}
	timeline := make([]ticketingv1.TimelineEvent, 0, len(events))
	for _, e := range events {
		timeline = append(timeline, ticketingv1.TimelineEvent{
			Type:     string(e.Type),
			Reason:   e.Reason,
			UnixTime: e.Occurred.Unix(),
		})
	}

	return &ticketingv1.GetOrderResponse{Order: toAPIOrder(order), Timeline: timeline}, nil
}

// ListOrders возвращает страницу заказов: администратору все, участнику только его.
func (s *OrderService) ListOrders(ctx context.Context, req *ticketingv1.ListOrdersRequest) (*ticketingv1.ListOrdersResponse, error) {
	identity, err := requireRole(ctx, auth.RoleAdmin, auth.RoleMember)
	if err != nil {
		return nil, err
	}
	if req == nil {
		req = &ticketingv1.ListOrdersRequest{}
	}
	if req.Page < 0 || req.Limit < 0 || req.Limit > maxListLimit {
		return nil, status.Errorf(codes.InvalidArgument, "invalid pagination: page=%d limit=%d", req.Page, req.Limit)
	}

	var page lifecycle.Page
	if identity.Role == auth.RoleAdmin {
		page, err = s.orders.ListAll(ctx, int(req.Page), int(req.Limit))
	} else {
		page, err = s.orders.ListByMember(ctx, identity.UserID, int(req.Page), int(req.Limit))
	}
	if err != nil {
		return nil, s.toStatus(err, "ListOrders")
	}

	orders := make([]*ticketingv1.Order, 0, len(page.Orders))
	for _, o := range page.Orders {
		orders = append(orders, toAPIOrder(o))
	}
	return &ticketingv1.ListOrdersResponse{
		Orders: orders,
		Pagination: ticketingv1.Pagination{
			Current:    int32(page.Pagination.Current),    //nolint:gosec // page is bounded by request validation.
			Total:      int32(page.Pagination.Total),      //nolint:gosec // order count fits int32.
			TotalPages: int32(page.Pagination.TotalPages), //nolint:gosec // derived from Total.
		},
	}, nil
}

// CompleteOrder завершает заказ владельца: выпускает ваучеры и списывает остаток.
func (s *OrderService) CompleteOrder(ctx context.Context, req *ticketingv1.CompleteOrderRequest) (*ticketingv1.CompleteOrderResponse, error) {
	identity, err := requireRole(ctx, auth.RoleMember)
	if err != nil {
		return nil, err
	}
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, domain.ErrOrderIDRequired.Message)
	}

	return withIdempotency(s, ctx, ticketingv1.OrderService_CompleteOrder_FullMethodName, identity, req,
		func(ctx context.Context) (*ticketingv1.CompleteOrderResponse, error) {
			order, err := s.orders.Complete(ctx, req.OrderID, identity.UserID)
			if err != nil {
				return nil, s.toStatus(err, "CompleteOrder")
			}
			return &ticketingv1.CompleteOrderResponse{Order: toAPIOrder(order)}, nil
		})
}

// SetPending переводит заказ в ожидание оплаты.
func (s *OrderService) SetPending(ctx context.Context, req *ticketingv1.SetPendingRequest) (*ticketingv1.SetPendingResponse, error) {
	if _, err := requireRole(ctx, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, domain.ErrOrderIDRequired.Message)
	}

	order, err := s.orders.SetPending(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "SetPending")
	}
	return &ticketingv1.SetPendingResponse{Order: toAPIOrder(order)}, nil
}

// CancelOrder отменяет заказ; завершённый заказ возвращает билеты на склад.
func (s *OrderService) CancelOrder(ctx context.Context, req *ticketingv1.CancelOrderRequest) (*ticketingv1.CancelOrderResponse, error) {
	if _, err := requireRole(ctx, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, domain.ErrOrderIDRequired.Message)
	}

	order, err := s.orders.Cancel(ctx, req.OrderID, req.Reason)
	if err != nil {
		return nil, s.toStatus(err, "CancelOrder")
	}
	return &ticketingv1.CancelOrderResponse{Order: toAPIOrder(order)}, nil
}

// RemoveOrder удаляет заказ и возвращает удалённую запись.
func (s *OrderService) RemoveOrder(ctx context.Context, req *ticketingv1.RemoveOrderRequest) (*ticketingv1.RemoveOrderResponse, error) {
	if _, err := requireRole(ctx, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, domain.ErrOrderIDRequired.Message)
	}

	order, err := s.orders.Remove(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "RemoveOrder")
	}
	return &ticketingv1.RemoveOrderResponse{Order: toAPIOrder(order)}, nil
}

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// withIdempotency выполняет handler под ключом из метаданных idempotency-key.
// Без ключа запрос выполняется как обычно.
func withIdempotency[T any](
	s *OrderService,
	ctx context.Context,
	method string,
	identity auth.Identity,
	in any,
	handler func(context.Context) (*T, error),
) (*T, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	var (
		result *T
		runErr error
	)
	req := idempotency.Request{
		Owner:     identity.UserID,
		Key:       readIdempotencyKey(ctx),
		Operation: method,
		Body:      body,
	}
	resp, replayed, err := s.guard.Do(ctx, req,
		func(ctx context.Context) (idempotency.Response, error) {
			result, runErr = handler(ctx)
			if runErr != nil {
				st := status.Convert(runErr)
				payload, _ := json.Marshal(idempotencyErrorPayload{
					Code:    int32(st.Code()), //nolint:gosec // codes.Code is a bounded enum value.
					Message: st.Message(),
				})
				return idempotency.Response{
					Status:    int(st.Code()),
					Body:      payload,
					Failed:    true,
					Transient: transientCode(st.Code()),
				}, nil
			}
			data, err := json.Marshal(result)
			if err != nil {
				return idempotency.Response{}, fmt.Errorf("encode response: %w", err)
			}
			return idempotency.Response{Status: int(codes.OK), Body: data}, nil
		})
	if err != nil {
		return nil, s.toStatus(err, method)
	}
	if !replayed {
		return result, runErr
	}

	if resp.Failed {
		return nil, decodeIdempotencyFailure(resp)
	}
	out := new(T)
	if err := json.Unmarshal(resp.Body, out); err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to decode cached idempotency response")
		return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
	}
	return out, nil
}

// transientCode — отказы, которые не закрепляются за ключом идемпотентности.
func transientCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.Internal, codes.Unknown, codes.DeadlineExceeded,
		codes.ResourceExhausted, codes.Aborted, codes.Canceled:
		return true
	}
	return false
}

func decodeIdempotencyFailure(resp idempotency.Response) error {
	if len(resp.Body) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(resp.Body, &payload); err == nil {
			if code, ok := grpcCodeFromInt(int(payload.Code)); ok && code != codes.OK {
				if payload.Message == "" {
					payload.Message = "previous request with the same idempotency key failed"
				}
				return status.Error(code, payload.Message)
			}
		}
	}
	if code, ok := grpcCodeFromInt(resp.Status); ok && code != codes.OK {
		return status.Error(code, "previous request with the same idempotency key failed")
	}
	return status.Error(codes.Internal, "previous request with the same idempotency key failed")
}

func grpcCodeFromInt(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true //nolint:gosec // range checked above.
}

func readIdempotencyKey(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(idempotencyKeyHeader); len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
	}
	return ""
}

func toAPIOrder(order domain.Order) *ticketingv1.Order {
	out := &ticketingv1.Order{
		ID:        order.ID,
		OrderID:   order.OrderID,
		UserID:    order.UserID,
		TicketID:  order.TicketID,
		Quantity:  order.Quantity,
		UnitPrice: order.UnitPrice,
		Total:     order.Total,
		Status:    ticketingv1.OrderStatus(order.Status),
		Vouchers:  make([]ticketingv1.Voucher, 0, len(order.Vouchers)),
		Version:   order.Version,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
	for _, v := range order.Vouchers {
		out.Vouchers = append(out.Vouchers, ticketingv1.Voucher{VoucherID: v.Code, IsPrint: v.Printed, Voided: v.Voided})
	}
	if order.Payment != nil {
		out.Payment = &ticketingv1.Payment{Token: order.Payment.Token, RedirectURL: order.Payment.RedirectURL}
	}
	return out
}
