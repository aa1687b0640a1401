package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/idgen"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/metrics"
)

const (
	// DefaultPaymentTimeout ограничивает ожидание ссылки на оплату.
	DefaultPaymentTimeout = 10 * time.Second
	// DefaultCreateAttempts — сколько раз пробуем новый код заказа при коллизии.
	DefaultCreateAttempts = 5
)

// EventPublisher публикует lifecycle-события в брокер (опционально).
type EventPublisher interface {
	PublishEvent(topic string, key string, event interface{}) error
}

// Dependencies описывает обязательные зависимости сервиса.
type Dependencies struct {
	Orders   domain.OrderRepository
	Tickets  domain.TicketRepository
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository
	Tx       domain.TxManager
	Gateway  domain.PaymentGateway
	Codes    domain.CodeGenerator
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает Prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEventPublisher включает публикацию lifecycle-событий в Kafka после commit.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithPaymentTimeout задаёт таймаут запроса к платёжному шлюзу.
func WithPaymentTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.paymentTimeout = d
		}
	}
}

// WithRetryConfig задаёт политику повторов при конфликте версий.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg.normalize()
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOutboxMaxPending ограничивает backlog outbox: при превышении новые заказы отклоняются.
func WithOutboxMaxPending(n int) Option {
	return func(s *Service) {
		s.outboxMaxPending = n
	}
}

// WithCreateAttempts задаёт число попыток вставки при коллизии кода заказа.
func WithCreateAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.createAttempts = n
		}
	}
}

// Service реализует жизненный цикл заказа: создание, переходы статусов, удаление.
type Service struct {
	orders   domain.OrderRepository
	tickets  domain.TicketRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	tx       domain.TxManager
	gateway  domain.PaymentGateway
	codes    domain.CodeGenerator

	logger           *log.Entry
	metrics          *metrics.OrderMetrics
	events           EventPublisher
	paymentTimeout   time.Duration
	retry            RetryConfig
	now              func() time.Time
	outboxMaxPending int
	createAttempts   int
}

// NewService создаёт сервис жизненного цикла заказов.
func NewService(deps Dependencies, opts ...Option) (*Service, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("lifecycle: order repository is required")
	case deps.Tickets == nil:
		return nil, errors.New("lifecycle: ticket repository is required")
	case deps.Outbox == nil:
		return nil, errors.New("lifecycle: outbox repository is required")
	case deps.Timeline == nil:
		return nil, errors.New("lifecycle: timeline repository is required")
	case deps.Tx == nil:
		return nil, errors.New("lifecycle: tx manager is required")
	case deps.Gateway == nil:
		return nil, errors.New("lifecycle: payment gateway is required")
	}

	codes := deps.Codes
	if codes == nil {
		codes = idgen.New()
	}

	s := &Service{
		orders:         deps.Orders,
		tickets:        deps.Tickets,
		outbox:         deps.Outbox,
		timeline:       deps.Timeline,
		tx:             deps.Tx,
		gateway:        deps.Gateway,
		codes:          codes,
		logger:         log.New().WithField("component", "order-lifecycle"),
		paymentTimeout: DefaultPaymentTimeout,
		retry:          DefaultRetryConfig(),
		now:            func() time.Time { return time.Now().UTC() },
		createAttempts: DefaultCreateAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateInput — данные для оформления заказа.
type CreateInput struct {
	UserID   string
	TicketID string
	Quantity int32
}

// Validate проверяет форму запроса.
func (in CreateInput) Validate() []error {
	var errs []error
	if in.UserID == "" {
		errs = append(errs, domain.ErrUserIDRequired)
	}
	if in.TicketID == "" {
		errs = append(errs, domain.ErrTicketIDRequired)
	}
	switch {
	case in.Quantity <= 0:
		errs = append(errs, domain.ErrQuantityInvalid)
	case in.Quantity > domain.MaxOrderQuantity:
		errs = append(errs, domain.ErrQuantityTooLarge)
	}
	return errs
}

// Page — страница заказов с пагинацией.
type Page struct {
	Orders     []domain.Order
	Pagination domain.Pagination
}

// Create оформляет заказ: проверяет остаток, получает ссылку на оплату и сохраняет заказ в статусе created.
// Остаток билетов при создании не списывается.
func (s *Service) Create(ctx context.Context, in CreateInput) (order domain.Order, err error) {
	defer s.observe(domain.OperationCreate, s.now(), &err)

	if errs := in.Validate(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	if err := s.checkOutboxBacklog(ctx); err != nil {
		return domain.Order{}, err
	}

	ticket, err := s.tickets.Get(ctx, in.TicketID)
	if err != nil {
		return domain.Order{}, err
	}
	if !ticket.Available(in.Quantity) {
		return domain.Order{}, domain.ErrTicketSoldOut
	}

	total, err := orderTotal(ticket.Price, in.Quantity)
	if err != nil {
		return domain.Order{}, err
	}

	// каждый новый код получает свою ссылку: шлюз пришлёт уведомление именно с ним
	for attempt := 1; ; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return domain.Order{}, fmt.Errorf("generate order id: %w", err)
		}
		descriptor, err := s.requestPaymentLink(ctx, code, total)
		if err != nil {
			return domain.Order{}, err
		}

		order = domain.NewOrder(uuid.NewString(), code, in.UserID, ticket, in.Quantity, s.now())
		order.Payment = &descriptor

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.orders.Create(ctx, order); err != nil {
				return err
			}
			return s.emitEvent(ctx, order, kafka.EventTypeOrderCreated, domain.TimelineOrderCreated, "")
		})
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrOrderIDTaken) || attempt >= s.createAttempts {
			return domain.Order{}, err
		}
		s.logger.WithFields(log.Fields{
			"order_id": code,
			"attempt":  attempt,
		}).Warn("order id collision, generating a new one")
	}

	s.afterCommit(order, kafka.EventTypeOrderCreated, domain.OperationCreate, "")
	s.logger.WithFields(log.Fields{
		"order_id":  order.OrderID,
		"user_id":   order.UserID,
		"ticket_id": order.TicketID,
		"quantity":  order.Quantity,
		"total":     order.Total,
	}).Info("order created")
	return order, nil
}

// orderTotal отказывает, если сумма не помещается в int64.
func orderTotal(price int64, qty int32) (int64, error) {
	if qty > 0 && price > math.MaxInt64/int64(qty) {
		return 0, domain.ErrOrderTotalOverflow
	}
	return price * int64(qty), nil
}

// Get возвращает заказ по коду.
func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	return s.orders.GetByOrderID(ctx, orderID)
}

// Timeline возвращает историю переходов заказа.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	return s.timeline.List(ctx, orderID)
}

// ListAll возвращает страницу всех заказов.
func (s *Service) ListAll(ctx context.Context, page, limit int) (Page, error) {
	return s.list(ctx, domain.OrderFilter{Page: page, Limit: limit})
}

// ListByMember возвращает страницу заказов пользователя.
func (s *Service) ListByMember(ctx context.Context, userID string, page, limit int) (Page, error) {
	if userID == "" {
		return Page{}, domain.ErrUserIDRequired
	}
	return s.list(ctx, domain.OrderFilter{UserID: userID, Page: page, Limit: limit})
}

func (s *Service) list(ctx context.Context, filter domain.OrderFilter) (Page, error) {
	filter = filter.Normalize()
	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	return Page{Orders: orders, Pagination: domain.NewPagination(filter, total)}, nil
}

// Complete завершает оплаченный заказ владельца: выдаёт ваучеры и списывает остаток в одной транзакции.
func (s *Service) Complete(ctx context.Context, orderID, userID string) (order domain.Order, err error) {
	defer s.observe(domain.OperationComplete, s.now(), &err)

	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	if userID == "" {
		return domain.Order{}, domain.ErrUserIDRequired
	}

	err = s.withVersionRetry(ctx, domain.OperationComplete, orderID, func() error {
		current, err := s.orders.FindOwned(ctx, orderID, userID)
		if err != nil {
			return err
		}
		switch current.Status {
		case domain.OrderStatusCompleted:
			return domain.ErrOrderAlreadyCompleted
		case domain.OrderStatusCancelled:
			return domain.ErrOrderAlreadyCancelled
		}

		codes, err := idgen.Distinct(s.codes, int(current.Quantity))
		if err != nil {
			return fmt.Errorf("generate voucher codes: %w", err)
		}
		if err := current.Complete(codes, s.now()); err != nil {
			return err
		}

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.orders.Save(ctx, current); err != nil {
				return err
			}
			if _, err := s.tickets.Withdraw(ctx, current.TicketID, current.Quantity); err != nil {
				if errors.Is(err, domain.ErrTicketNotFound) {
					return domain.ErrOrderTicketNotFound
				}
				return err
			}
			return s.emitEvent(ctx, current, kafka.EventTypeOrderCompleted, domain.TimelineOrderCompleted, "")
		})
		if err != nil {
			return err
		}

		current.Version++
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordVouchersIssued(len(order.Vouchers))
	}
	s.afterCommit(order, kafka.EventTypeOrderCompleted, domain.OperationComplete, "")
	s.logger.WithFields(log.Fields{
		"order_id": order.OrderID,
		"user_id":  order.UserID,
		"vouchers": len(order.Vouchers),
	}).Info("order completed")
	return order, nil
}

// SetPending переводит заказ в ожидание оплаты. Повторный вызов для pending-заказа ничего не меняет.
func (s *Service) SetPending(ctx context.Context, orderID string) (order domain.Order, err error) {
	defer s.observe(domain.OperationPending, s.now(), &err)

	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	changed := false
	err = s.withVersionRetry(ctx, domain.OperationPending, orderID, func() error {
		current, err := s.orders.GetByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		changed, err = current.SetPending(s.now())
		if err != nil {
			return err
		}
		if !changed {
			order = current
			return nil
		}

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.orders.Save(ctx, current); err != nil {
				return err
			}
			return s.emitEvent(ctx, current, kafka.EventTypeOrderPending, domain.TimelineOrderPending, "")
		})
		if err != nil {
			return err
		}

		current.Version++
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if changed {
		s.afterCommit(order, kafka.EventTypeOrderPending, domain.OperationPending, "")
	}
	return order, nil
}

// Cancel отменяет заказ. Для завершённого заказа в той же транзакции возвращает остаток и аннулирует ваучеры.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (order domain.Order, err error) {
	defer s.observe(domain.OperationCancel, s.now(), &err)

	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	changed := false
	err = s.withVersionRetry(ctx, domain.OperationCancel, orderID, func() error {
		current, err := s.orders.GetByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		var wasCompleted bool
		changed, wasCompleted = current.Cancel(s.now())
		if !changed {
			order = current
			return nil
		}

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.orders.Save(ctx, current); err != nil {
				return err
			}
			if wasCompleted {
				if err := s.restock(ctx, current); err != nil {
					return err
				}
			}
			return s.emitEvent(ctx, current, kafka.EventTypeOrderCancelled, domain.TimelineOrderCancelled, reason)
		})
		if err != nil {
			return err
		}

		current.Version++
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if changed {
		s.afterCommit(order, kafka.EventTypeOrderCancelled, domain.OperationCancel, reason)
		s.logger.WithFields(log.Fields{
			"order_id": order.OrderID,
			"reason":   reason,
		}).Info("order cancelled")
	}
	return order, nil
}

// restock возвращает билеты отменённого завершённого заказа. Удалённый билет пропускаем.
func (s *Service) restock(ctx context.Context, order domain.Order) error {
	if _, err := s.tickets.Restock(ctx, order.TicketID, order.Quantity); err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			s.logger.WithFields(log.Fields{
				"order_id":  order.OrderID,
				"ticket_id": order.TicketID,
			}).Warn("ticket for cancelled order is gone, skipping restock")
			return nil
		}
		return err
	}
	return nil
}

// Remove удаляет заказ и возвращает удалённую запись.
func (s *Service) Remove(ctx context.Context, orderID string) (order domain.Order, err error) {
	defer s.observe(domain.OperationRemove, s.now(), &err)

	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.orders.GetByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.orders.Delete(ctx, orderID); err != nil {
			return err
		}
		order = current
		return s.emitEvent(ctx, current, kafka.EventTypeOrderRemoved, domain.TimelineOrderRemoved, "")
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.afterCommit(order, kafka.EventTypeOrderRemoved, domain.OperationRemove, "")
	s.logger.WithField("order_id", order.OrderID).Info("order removed")
	return order, nil
}

func (s *Service) checkOutboxBacklog(ctx context.Context) error {
	if s.outboxMaxPending <= 0 {
		return nil
	}
	stats, err := s.outbox.Stats(ctx)
	if err != nil {
		return fmt.Errorf("outbox stats: %w", err)
	}
	if stats.PendingCount >= s.outboxMaxPending {
		s.logger.WithFields(log.Fields{
			"pending":     stats.PendingCount,
			"max_pending": s.outboxMaxPending,
		}).Warn("outbox backlog is full, rejecting order")
		return domain.ErrOutboxBacklogFull
	}
	return nil
}

func (s *Service) requestPaymentLink(ctx context.Context, orderID string, amount int64) (domain.PaymentDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	descriptor, err := s.gateway.CreatePaymentLink(ctx, domain.PaymentLinkRequest{OrderID: orderID, Amount: amount})
	if s.metrics != nil {
		switch {
		case err == nil:
			s.metrics.RecordGatewayRequest("success")
		case errors.Is(err, domain.ErrPaymentGatewayOpen):
			s.metrics.RecordGatewayRequest("open")
		default:
			s.metrics.RecordGatewayRequest("error")
		}
	}
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("payment link request failed")
		if errors.Is(err, domain.ErrGateway) || errors.Is(err, domain.ErrValidation) {
			return domain.PaymentDescriptor{}, err
		}
		return domain.PaymentDescriptor{}, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}
	return descriptor, nil
}

func (s *Service) observe(op domain.Operation, start time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDuration(op, s.now().Sub(start))
	if errp != nil && *errp != nil {
		s.metrics.RecordFailure(op)
	}
}
