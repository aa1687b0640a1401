package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type claimKey struct {
	owner string
	key   string
}

// claimStore хранит заявки идемпотентности, ключ — пара владелец+ключ.
type claimStore struct {
	mu     sync.Mutex
	claims map[claimKey]domain.IdempotencyRecord
	now    func() time.Time
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &claimStore{
		claims: make(map[claimKey]domain.IdempotencyRecord),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *claimStore) Claim(_ context.Context, claim domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	claim = claim.Normalize()
	if err := claim.Validate(); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	now := s.now()
	claim = claim.WithExpiry(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	id := claimKey{owner: claim.Owner, key: claim.Key}
	if existing, ok := s.claims[id]; ok {
		// Просроченная заявка, которую ещё не вычистил cleanup, уступает место новой.
		if !existing.Expired(now) {
			return copyRecord(existing), existing.ConflictWith(claim)
		}
	}

	record := domain.IdempotencyRecord{
		IdempotencyClaim: claim,
		State:            domain.IdempotencyInFlight,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.claims[id] = record
	return copyRecord(record), nil
}

func (s *claimStore) Find(_ context.Context, owner, key string) (domain.IdempotencyRecord, error) {
	id := claimKey{owner: strings.TrimSpace(owner), key: strings.TrimSpace(key)}
	if id.key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.claims[id]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

func (s *claimStore) Settle(_ context.Context, owner, key string, state domain.IdempotencyState, code int, payload []byte) error {
	id := claimKey{owner: strings.TrimSpace(owner), key: strings.TrimSpace(key)}
	if id.key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.claims[id]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.State = state
	record.Code = code
	record.Payload = append([]byte(nil), payload...)
	record.UpdatedAt = s.now()
	s.claims[id] = record
	return nil
}

func (s *claimStore) Release(_ context.Context, owner, key string) error {
	id := claimKey{owner: strings.TrimSpace(owner), key: strings.TrimSpace(key)}
	if id.key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.claims[id]; ok && record.State == domain.IdempotencyInFlight {
		delete(s.claims, id)
	}
	return nil
}

// Purge удаляет заявки с истёкшим сроком; limit <= 0 снимает ограничение.
func (s *claimStore) Purge(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.claims {
		if limit > 0 && removed >= limit {
			break
		}
		if !record.Expired(before) {
			continue
		}
		delete(s.claims, id)
		removed++
	}
	return removed, nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.Payload = append([]byte(nil), src.Payload...)
	return dst
}

var _ domain.IdempotencyRepository = (*claimStore)(nil)
