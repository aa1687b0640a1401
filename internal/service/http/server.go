package httpsvc

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/auth"
	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/metrics"
	"github.com/vladislavdragonenkov/ticketing/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ticketing/internal/service/lifecycle"
)

// IdempotencyKeyHeader — заголовок с ключом идемпотентности.
const IdempotencyKeyHeader = "Idempotency-Key"

// ReplayedHeader выставляется, когда ответ взят из кэша идемпотентности.
const ReplayedHeader = "Idempotent-Replayed"

// OrderService — операции жизненного цикла заказа, которые использует REST API.
type OrderService interface {
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

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithGuard включает обработку заголовка Idempotency-Key.
func WithGuard(guard *idempotency.Guard) Option {
	return func(h *Handler) {
		h.guard = guard
	}
}

// WithMetrics задаёт HTTP-метрики.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithAllowedOrigins задаёт список origin для CORS. Пустой список разрешает любой origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		h.allowedOrigins = origins
	}
}

// Handler — REST API заказов.
type Handler struct {
	orders         OrderService
	auth           *auth.Authenticator
	guard          *idempotency.Guard
	validate       *validator.Validate
	metrics        *metrics.HTTPMetrics
	logger         *log.Entry
	allowedOrigins []string
}

// NewHandler собирает роутер REST API с CORS, аутентификацией и логированием запросов.
func NewHandler(orders OrderService, authenticator *auth.Authenticator, opts ...Option) http.Handler {
	h := &Handler{
		orders:   orders,
		auth:     authenticator,
		validate: validator.New(),
		logger:   log.WithField("component", "http"),
	}
	for _, opt := range opts {
		opt(h)
	}

	router := mux.NewRouter()
	router.Use(h.accessLog)
	h.routes(router)

	notFound := h.accessLog(http.HandlerFunc(routeNotFound))
	router.NotFoundHandler = notFound
	router.MethodNotAllowedHandler = notFound

	origins := h.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", IdempotencyKeyHeader},
		ExposedHeaders: []string{ReplayedHeader},
		MaxAge:         600,
	}).Handler(router)
}

func (h *Handler) routes(router *mux.Router) {
	member := []Middleware{h.authenticate, requireRoles(auth.RoleMember)}
	admin := []Middleware{h.authenticate, requireRoles(auth.RoleAdmin)}
	anyone := []Middleware{h.authenticate, requireRoles(auth.RoleAdmin, auth.RoleMember)}

	api := router.PathPrefix("/api").Subrouter()
	api.Handle("/orders", chain(h.createOrder, member...)).Methods(http.MethodPost)
	api.Handle("/orders", chain(h.findAll, admin...)).Methods(http.MethodGet)
	api.Handle("/orders-history", chain(h.findAllByMember, member...)).Methods(http.MethodGet)
	api.Handle("/orders/{orderId}", chain(h.findOne, anyone...)).Methods(http.MethodGet)
	api.Handle("/orders/{orderId}/completed", chain(h.complete, member...)).Methods(http.MethodPut)
	api.Handle("/orders/{orderId}/pending", chain(h.pending, admin...)).Methods(http.MethodPut)
	api.Handle("/orders/{orderId}/cancelled", chain(h.cancel, admin...)).Methods(http.MethodPut)
	api.Handle("/orders/{orderId}", chain(h.remove, admin...)).Methods(http.MethodDelete)
}

func routeNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, Envelope{Message: "Route Not Found!"})
}
