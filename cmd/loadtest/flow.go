package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ticketingv1 "github.com/vladislavdragonenkov/ticketing/api/ticketing/v1"
	"github.com/vladislavdragonenkov/ticketing/internal/auth"
)

// flow — последовательность вызовов, которую проходит один заказ.
type flow string

const (
	// только оформление заказа
	flowCreate flow = "create"
	// оформление и оплата; часть оплаченных заказов отменяется по refund-rate
	flowCheckout flow = "checkout"
	// оформление и отмена до оплаты
	flowAbandon flow = "abandon"
	// полный путь: ожидание оплаты, оплата, чтение заказа с таймлайном
	flowLifecycle flow = "lifecycle"
)

func parseFlow(name string) (flow, error) {
	switch f := flow(strings.TrimSpace(name)); f {
	case flowCreate, flowCheckout, flowAbandon, flowLifecycle:
		return f, nil
	}
	return "", fmt.Errorf("unknown flow %q", name)
}

type step string

const (
	stepCreate   step = "CreateOrder"
	stepPending  step = "SetPending"
	stepComplete step = "CompleteOrder"
	stepCancel   step = "CancelOrder"
	stepGet      step = "GetOrder"
)

// steps раскладывает сценарий index на вызовы. Отмена после оплаты выпадает
// детерминированно: на каждые сто сценариев ровно refundRate.
func (f flow) steps(index, refundRate int) []step {
	refund := index%100 < refundRate
	switch f {
	case flowAbandon:
		return []step{stepCreate, stepCancel}
	case flowCheckout:
		if refund {
			return []step{stepCreate, stepComplete, stepCancel}
		}
		return []step{stepCreate, stepComplete}
	case flowLifecycle:
		s := []step{stepCreate, stepPending, stepComplete, stepGet}
		if refund {
			s = append(s, stepCancel)
		}
		return s
	}
	return []step{stepCreate}
}

// credentials выпускает токен участника на каждый сценарий и один токен администратора.
type credentials struct {
	authn *auth.Authenticator
	ttl   time.Duration
	admin string
}

func newCredentials(secret string, ttl time.Duration) (*credentials, error) {
	authn, err := auth.NewAuthenticator(secret)
	if err != nil {
		return nil, err
	}
	admin, err := authn.Issue("loadtest-admin", auth.RoleAdmin, ttl)
	if err != nil {
		return nil, fmt.Errorf("admin token: %w", err)
	}
	return &credentials{authn: authn, ttl: ttl, admin: admin}, nil
}

func (c *credentials) member(userID string) (string, error) {
	return c.authn.Issue(userID, auth.RoleMember, c.ttl)
}

// player проигрывает сценарии и пишет задержки в recorder.
type player struct {
	opts  options
	creds *credentials
	rec   *recorder
	runID string
}

func (p *player) play(client ticketingv1.OrderServiceClient, index int) (err error) {
	started := time.Now()
	defer func() { p.rec.observe(scenarioOp, time.Since(started), status.Code(err)) }()

	member, err := p.creds.member(fmt.Sprintf("%s-%s-%d", p.opts.userPrefix, p.runID, index))
	if err != nil {
		return status.Errorf(codes.Internal, "member token: %v", err)
	}

	var orderID string
	for _, s := range p.opts.flow.steps(index, p.opts.refundRate) {
		callStart := time.Now()
		orderID, err = p.call(client, s, member, orderID, index)
		p.rec.observe(string(s), time.Since(callStart), status.Code(err))
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *player) call(client ticketingv1.OrderServiceClient, s step, member, orderID string, index int) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.rpcTimeout)
	defer cancel()

	switch s {
	case stepCreate:
		ctx = withCaller(ctx, member, fmt.Sprintf("lt-%s-create-%d", p.runID, index))
		resp, err := client.CreateOrder(ctx, &ticketingv1.CreateOrderRequest{TicketID: p.opts.ticketID, Quantity: p.opts.quantity})
		if err != nil {
			return "", err
		}
		if resp.Order == nil || resp.Order.OrderID == "" {
			return "", status.Error(codes.Internal, "create returned empty order id")
		}
		return resp.Order.OrderID, nil
	case stepPending:
		_, err := client.SetPending(withCaller(ctx, p.creds.admin, ""), &ticketingv1.SetPendingRequest{OrderID: orderID})
		return orderID, err
	case stepComplete:
		ctx = withCaller(ctx, member, fmt.Sprintf("lt-%s-complete-%d", p.runID, index))
		_, err := client.CompleteOrder(ctx, &ticketingv1.CompleteOrderRequest{OrderID: orderID})
		return orderID, err
	case stepCancel:
		_, err := client.CancelOrder(withCaller(ctx, p.creds.admin, ""), &ticketingv1.CancelOrderRequest{OrderID: orderID, Reason: "loadtest"})
		return orderID, err
	case stepGet:
		_, err := client.GetOrder(withCaller(ctx, member, ""), &ticketingv1.GetOrderRequest{OrderID: orderID})
		return orderID, err
	}
	return orderID, status.Errorf(codes.Unimplemented, "step %s", s)
}

func withCaller(ctx context.Context, token, idempotencyKey string) context.Context {
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	if idempotencyKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "idempotency-key", idempotencyKey)
	}
	return ctx
}
