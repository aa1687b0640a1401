package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// OrderStore держит заказы в памяти: основной индекс по коду заказа, вспомогательные
// по ID хранения и по владельцу. Наружу отдаются только копии.
type OrderStore struct {
	mu      sync.RWMutex
	byCode  map[string]domain.Order
	codeOf  map[string]string
	byOwner map[string]map[string]struct{}
}

func NewOrderRepository() *OrderStore {
	return &OrderStore{
		byCode:  make(map[string]domain.Order),
		codeOf:  make(map[string]string),
		byOwner: make(map[string]map[string]struct{}),
	}
}

func (s *OrderStore) Create(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.has(order.OrderID):
		return domain.ErrOrderIDTaken
	case s.codeOf[order.ID] != "":
		return domain.ErrOrderVersionConflict
	}
	s.put(order)

	recordUndo(ctx, func() {
		s.mu.Lock()
		s.drop(order)
		s.mu.Unlock()
	})
	return nil
}

func (s *OrderStore) GetByOrderID(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.has(orderID) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return s.byCode[orderID].Clone(), nil
}

// FindOwned не различает чужой и несуществующий заказ.
func (s *OrderStore) FindOwned(_ context.Context, orderID, userID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, mine := s.byOwner[userID][orderID]; !mine {
		return domain.Order{}, domain.ErrOwnedOrderNotFound
	}
	return s.byCode[orderID].Clone(), nil
}

func (s *OrderStore) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, int, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Order
	if filter.UserID != "" {
		for code := range s.byOwner[filter.UserID] {
			matched = append(matched, s.byCode[code])
		}
	} else {
		matched = make([]domain.Order, 0, len(s.byCode))
		for _, order := range s.byCode {
			matched = append(matched, order)
		}
	}

	// новые сверху, при равном времени по коду заказа
	slices.SortFunc(matched, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.OrderID, a.OrderID)
	})

	total := len(matched)
	from := min(filter.Offset(), total)
	to := min(from+filter.Limit, total)

	page := make([]domain.Order, 0, to-from)
	for _, order := range matched[from:to] {
		page = append(page, order.Clone())
	}
	return page, total, nil
}

// Save принимает заказ только с той версией, что сейчас в хранилище, и увеличивает её.
func (s *OrderStore) Save(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byCode[order.OrderID]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case prev.Version != order.Version:
		return domain.ErrOrderVersionConflict
	}
	order.Version++
	s.drop(prev)
	s.put(order)

	recordUndo(ctx, func() {
		s.mu.Lock()
		s.drop(order)
		s.put(prev)
		s.mu.Unlock()
	})
	return nil
}

func (s *OrderStore) Delete(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byCode[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	s.drop(prev)

	recordUndo(ctx, func() {
		s.mu.Lock()
		s.put(prev)
		s.mu.Unlock()
	})
	return nil
}

func (s *OrderStore) has(code string) bool {
	_, ok := s.byCode[code]
	return ok
}

// put и drop вызываются под s.mu.
func (s *OrderStore) put(order domain.Order) {
	s.byCode[order.OrderID] = order.Clone()
	s.codeOf[order.ID] = order.OrderID
	owned := s.byOwner[order.UserID]
	if owned == nil {
		owned = make(map[string]struct{})
		s.byOwner[order.UserID] = owned
	}
	owned[order.OrderID] = struct{}{}
}

func (s *OrderStore) drop(order domain.Order) {
	delete(s.byCode, order.OrderID)
	delete(s.codeOf, order.ID)
	if owned := s.byOwner[order.UserID]; owned != nil {
		delete(owned, order.OrderID)
		if len(owned) == 0 {
			delete(s.byOwner, order.UserID)
		}
	}
}

var _ domain.OrderRepository = (*OrderStore)(nil)
