package payment

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

var (
	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ticketing_payment_breaker_state",
		Help: "Состояние circuit breaker платёжного шлюза: 0 closed, 1 half-open, 2 open.",
	})
	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_payment_breaker_transitions_total",
		Help: "Переходы circuit breaker платёжного шлюза по целевому состоянию.",
	}, []string{"to"})
)

// CircuitState — состояние circuit breaker.
type CircuitState = gobreaker.State

const (
	CircuitClosed   = gobreaker.StateClosed
	CircuitHalfOpen = gobreaker.StateHalfOpen
	CircuitOpen     = gobreaker.StateOpen
)

// CircuitBreaker размыкается после maxFailures отказов подряд и через resetTimeout
// пропускает один пробный вызов. Успешная проба замыкает цепь, неудачная снова размыкает.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker[domain.PaymentDescriptor]
}

// NewCircuitBreaker создаёт замкнутый breaker; maxFailures <= 0 означает 5.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if logger == nil {
		logger = log.WithField("component", "circuit-breaker")
	}
	breakerState.Set(float64(CircuitClosed))

	settings := gobreaker.Settings{
		Name:        "payment_gateway",
		MaxRequests: 1,
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry := logger.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			if to == CircuitOpen {
				entry.Warn("payment circuit breaker opened")
			} else {
				entry.Info("payment circuit breaker state changed")
			}
			breakerState.Set(float64(to))
			breakerTransitions.WithLabelValues(to.String()).Inc()
		},
		// ошибки валидации и отмена запроса клиентом не говорят о состоянии шлюза
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsOutage(err)
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker[domain.PaymentDescriptor](settings)}
}

// State возвращает состояние; разомкнутый breaker с истёкшим resetTimeout считается half-open.
func (b *CircuitBreaker) State() CircuitState {
	return b.cb.State()
}

func (b *CircuitBreaker) execute(fn func() (domain.PaymentDescriptor, error)) (domain.PaymentDescriptor, error) {
	link, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.PaymentDescriptor{}, domain.ErrPaymentGatewayOpen
	}
	return link, err
}

// BreakerGateway пропускает вызовы платёжного шлюза через CircuitBreaker.
type BreakerGateway struct {
	next    domain.PaymentGateway
	breaker *CircuitBreaker
}

// NewBreakerGateway оборачивает шлюз. Ошибки валидации и отмена запроса не размыкают цепь.
func NewBreakerGateway(next domain.PaymentGateway, breaker *CircuitBreaker) *BreakerGateway {
	return &BreakerGateway{next: next, breaker: breaker}
}

func (g *BreakerGateway) CreatePaymentLink(ctx context.Context, req domain.PaymentLinkRequest) (domain.PaymentDescriptor, error) {
	return g.breaker.execute(func() (domain.PaymentDescriptor, error) {
		return g.next.CreatePaymentLink(ctx, req)
	})
}

func (g *BreakerGateway) Breaker() *CircuitBreaker {
	return g.breaker
}

func countsAsOutage(err error) bool {
	return !errors.Is(err, domain.ErrValidation) && !errors.Is(err, context.Canceled)
}

var _ domain.PaymentGateway = (*BreakerGateway)(nil)
