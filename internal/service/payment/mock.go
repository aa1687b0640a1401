package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и локального запуска.
type MockGateway struct {
	mu sync.Mutex

	// Err возвращается вместо ссылки, если задан.
	Err error
	// Delay имитирует медленный шлюз; ожидание прерывается по ctx.
	Delay time.Duration
	// BaseURL используется для построения redirect_url.
	BaseURL string

	calls    int
	requests []domain.PaymentLinkRequest
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{BaseURL: "https://payments.local/snap/v2/vtweb"}
}

// CreatePaymentLink возвращает детерминированную ссылку и считает вызовы.
func (m *MockGateway) CreatePaymentLink(ctx context.Context, req domain.PaymentLinkRequest) (domain.PaymentDescriptor, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	delay, failure, baseURL := m.Delay, m.Err, m.BaseURL
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.PaymentDescriptor{}, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, ctx.Err())
		case <-timer.C:
		}
	}
	if failure != nil {
		return domain.PaymentDescriptor{}, failure
	}

	token := fmt.Sprintf("mock-%s-%d", req.OrderID, req.Amount)
	return domain.PaymentDescriptor{
		Token:       token,
		RedirectURL: baseURL + "/" + token,
	}, nil
}

// SetErr меняет ошибку под блокировкой, пока mock используется из других горутин.
func (m *MockGateway) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Calls возвращает количество вызовов.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests возвращает копию полученных запросов.
func (m *MockGateway) Requests() []domain.PaymentLinkRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PaymentLinkRequest(nil), m.requests...)
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
