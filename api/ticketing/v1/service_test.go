package ticketingv1

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

type fakeClientConn struct {
	invoke func(context.Context, string, any, any, ...grpc.CallOption) error
}

func (f *fakeClientConn) Invoke(ctx context.Context, method string, args any, reply any, opts ...grpc.CallOption) error {
	if f.invoke == nil {
		return errors.New("unexpected Invoke call")
	}
	return f.invoke(ctx, method, args, reply, opts...)
}

func (f *fakeClientConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not implemented")
}

type testOrderService struct {
	UnimplementedOrderServiceServer
}

func (s *testOrderService) CreateOrder(_ context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	return &CreateOrderResponse{Order: &Order{TicketID: req.TicketID, Quantity: req.Quantity}}, nil
}

func (s *testOrderService) GetOrder(_ context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	return &GetOrderResponse{Order: &Order{OrderID: req.OrderID}}, nil
}

func (s *testOrderService) CancelOrder(_ context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	return &CancelOrderResponse{Order: &Order{OrderID: req.OrderID, Status: OrderStatusCancelled}}, nil
}

func TestOrderServiceClientMethods(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		methods := map[string]int{}
		conn := &fakeClientConn{
			invoke: func(_ context.Context, method string, _ any, reply any, opts ...grpc.CallOption) error {
				methods[method]++
				if len(opts) == 0 {
					t.Fatalf("expected content subtype call option for %s", method)
				}
				if sub, ok := opts[0].(grpc.ContentSubtypeCallOption); !ok || sub.ContentSubtype != CodecName {
					t.Fatalf("expected json content subtype, got %#v", opts[0])
				}
				switch out := reply.(type) {
				case *CreateOrderResponse:
					out.Order = &Order{OrderID: "AB12C"}
				case *GetOrderResponse:
					out.Order = &Order{OrderID: "AB12C"}
				case *ListOrdersResponse:
					out.Orders = []*Order{{OrderID: "AB12C"}}
				case *CompleteOrderResponse:
					out.Order = &Order{Status: OrderStatusCompleted}
				case *SetPendingResponse:
					out.Order = &Order{Status: OrderStatusPending}
				case *CancelOrderResponse:
					out.Order = &Order{Status: OrderStatusCancelled}
				case *RemoveOrderResponse:
					out.Order = &Order{OrderID: "AB12C"}
				default:
					t.Fatalf("unexpected reply type: %T", out)
				}
				return nil
			},
		}

		client := NewOrderServiceClient(conn)
		ctx := context.Background()
		calls := map[string]func() error{
			"CreateOrder":   func() error { _, err := client.CreateOrder(ctx, &CreateOrderRequest{}); return err },
			"GetOrder":      func() error { _, err := client.GetOrder(ctx, &GetOrderRequest{}); return err },
			"ListOrders":    func() error { _, err := client.ListOrders(ctx, &ListOrdersRequest{}); return err },
			"CompleteOrder": func() error { _, err := client.CompleteOrder(ctx, &CompleteOrderRequest{}); return err },
			"SetPending":    func() error { _, err := client.SetPending(ctx, &SetPendingRequest{}); return err },
			"CancelOrder":   func() error { _, err := client.CancelOrder(ctx, &CancelOrderRequest{}); return err },
			"RemoveOrder":   func() error { _, err := client.RemoveOrder(ctx, &RemoveOrderRequest{}); return err },
		}
		for name, call := range calls {
			if err := call(); err != nil {
				t.Fatalf("%s failed: %v", name, err)
			}
		}

		for _, method := range []string{
			OrderService_CreateOrder_FullMethodName,
			OrderService_GetOrder_FullMethodName,
			OrderService_ListOrders_FullMethodName,
			OrderService_CompleteOrder_FullMethodName,
			OrderService_SetPending_FullMethodName,
			OrderService_CancelOrder_FullMethodName,
			OrderService_RemoveOrder_FullMethodName,
		} {
			if methods[method] != 1 {
				t.Fatalf("expected method %s called exactly once, got %d", method, methods[method])
			}
		}
	})

	t.Run("error", func(t *testing.T) {
		conn := &fakeClientConn{
			invoke: func(context.Context, string, any, any, ...grpc.CallOption) error {
				return status.Error(codes.Internal, "boom")
			},
		}
		client := NewOrderServiceClient(conn)
		ctx := context.Background()

		if resp, err := client.CreateOrder(ctx, &CreateOrderRequest{}); status.Code(err) != codes.Internal || resp != nil {
			t.Fatalf("expected Internal error and nil response, got %v %v", resp, err)
		}
		if _, err := client.RemoveOrder(ctx, &RemoveOrderRequest{}); status.Code(err) != codes.Internal {
			t.Fatalf("expected Internal error, got %v", err)
		}
	})
}

func TestUnimplementedOrderServiceServer(t *testing.T) {
	var srv UnimplementedOrderServiceServer
	ctx := context.Background()

	for name, call := range map[string]func() error{
		"CreateOrder":   func() error { _, err := srv.CreateOrder(ctx, &CreateOrderRequest{}); return err },
		"GetOrder":      func() error { _, err := srv.GetOrder(ctx, &GetOrderRequest{}); return err },
		"ListOrders":    func() error { _, err := srv.ListOrders(ctx, &ListOrdersRequest{}); return err },
		"CompleteOrder": func() error { _, err := srv.CompleteOrder(ctx, &CompleteOrderRequest{}); return err },
		"SetPending":    func() error { _, err := srv.SetPending(ctx, &SetPendingRequest{}); return err },
		"CancelOrder":   func() error { _, err := srv.CancelOrder(ctx, &CancelOrderRequest{}); return err },
		"RemoveOrder":   func() error { _, err := srv.RemoveOrder(ctx, &RemoveOrderRequest{}); return err },
	} {
		if err := call(); status.Code(err) != codes.Unimplemented {
			t.Fatalf("%s expected Unimplemented error, got %v", name, err)
		}
	}
}

func TestServiceDescHandlers(t *testing.T) {
	srv := &testOrderService{}
	ctx := context.Background()

	handlers := map[string]grpc.MethodHandler{}
	for _, m := range OrderService_ServiceDesc.Methods {
		handlers[m.MethodName] = m.Handler
	}
	if len(handlers) != 7 {
		t.Fatalf("expected 7 method descriptors, got %d", len(handlers))
	}

	create := handlers["CreateOrder"]
	if _, err := create(srv, ctx, func(any) error { return errors.New("decode failed") }, nil); err == nil {
		t.Fatalf("expected decode error")
	}

	decode := func(v any) error {
		req, ok := v.(*CreateOrderRequest)
		if !ok {
			return status.Errorf(codes.Internal, "unexpected request type %T", v)
		}
		req.TicketID = "ticket-1"
		req.Quantity = 2
		return nil
	}

	resp, err := create(srv, ctx, decode, nil)
	if err != nil {
		t.Fatalf("handler without interceptor failed: %v", err)
	}
	if got := resp.(*CreateOrderResponse).Order.Quantity; got != 2 {
		t.Fatalf("expected decoded quantity 2, got %d", got)
	}

	interceptorCalled := false
	_, err = create(srv, ctx, decode, func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		interceptorCalled = true
		if info.FullMethod != OrderService_CreateOrder_FullMethodName {
			t.Fatalf("unexpected full method: %s", info.FullMethod)
		}
		return handler(ctx, req)
	})
	if err != nil {
		t.Fatalf("handler with interceptor failed: %v", err)
	}
	if !interceptorCalled {
		t.Fatalf("interceptor was not called")
	}

	if _, err := handlers["RemoveOrder"](srv, ctx, func(any) error { return nil }, nil); status.Code(err) != codes.Unimplemented {
		t.Fatalf("expected Unimplemented for RemoveOrder, got %v", err)
	}
}

func TestRegisterOrderServiceServer(t *testing.T) {
	g := grpc.NewServer()
	RegisterOrderServiceServer(g, &testOrderService{})

	info := g.GetServiceInfo()
	svc, ok := info[ServiceName]
	if !ok {
		t.Fatalf("service %s is not registered", ServiceName)
	}
	if len(svc.Methods) != 7 {
		t.Fatalf("expected 7 methods, got %d", len(svc.Methods))
	}
}

func TestJSONCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	if codec == nil {
		t.Fatalf("codec %q is not registered", CodecName)
	}

	data, err := codec.Marshal(&CancelOrderRequest{OrderID: "AB12C", Reason: "duplicate"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if got, want := string(data), `{"order_id":"AB12C","reason":"duplicate"}`; got != want {
		t.Fatalf("unexpected payload: got %s want %s", got, want)
	}

	var req CancelOrderRequest
	if err := codec.Unmarshal(data, &req); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if req.OrderID != "AB12C" || req.Reason != "duplicate" {
		t.Fatalf("unexpected request: %+v", req)
	}

	if err := codec.Unmarshal([]byte("{"), &req); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
