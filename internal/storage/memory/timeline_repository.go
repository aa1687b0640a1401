package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type timelineStore struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineStore{byOrder: make(map[string][]domain.TimelineEvent)}
}

// Append откладывает запись до commit, если ctx несёт транзакцию: откат
// операции не оставляет следа в истории.
func (s *timelineStore) Append(ctx context.Context, event domain.TimelineEvent) error {
	deferUntilCommit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		history := append(s.byOrder[event.OrderID], event)
		domain.SortTimeline(history)
		s.byOrder[event.OrderID] = history
	})
	return nil
}

func (s *timelineStore) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.TimelineEvent{}, s.byOrder[orderID]...), nil
}

var _ domain.TimelineRepository = (*timelineStore)(nil)
