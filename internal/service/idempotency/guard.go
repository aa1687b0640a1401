package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// DefaultTTL — сколько хранится ответ по ключу идемпотентности.
const DefaultTTL = domain.DefaultIdempotencyTTL

// MaxKeyLength ограничивает длину ключа из заголовка.
const MaxKeyLength = 128

var (
	// ErrInFlight — запрос с тем же ключом ещё выполняется.
	ErrInFlight = errors.New("request with the same idempotency key is already processing")
	// ErrKeyTooLong — ключ длиннее MaxKeyLength.
	ErrKeyTooLong = errors.New("idempotency key is too long")
)

// Response — ответ транспорта, сохраняемый для повторов.
// Status — HTTP-статус или gRPC-код, в зависимости от транспорта.
// Transient — временный отказ (5xx, Unavailable): такой ответ не сохраняется,
// ключ освобождается для повтора.
type Response struct {
	Status    int
	Body      []byte
	Failed    bool
	Transient bool
}

// Guard выполняет запрос не более одного раза на ключ и воспроизводит сохранённый ответ.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewGuard создаёт guard. ttl <= 0 означает DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Request описывает вызов, защищаемый ключом идемпотентности.
type Request struct {
	Owner     string
	Key       string
	Operation string
	Body      []byte
}

// Fingerprint — sha256 тела запроса в hex.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Do выполняет run не более одного раза на пару владелец+ключ.
// Пустой ключ или отсутствие хранилища означают обычный вызов.
// replayed=true, если ответ взят из хранилища.
func (g *Guard) Do(
	ctx context.Context,
	req Request,
	run func(ctx context.Context) (Response, error),
) (resp Response, replayed bool, err error) {
	req.Key = strings.TrimSpace(req.Key)
	if g == nil || g.repo == nil || req.Key == "" {
		resp, err = run(ctx)
		return resp, false, err
	}
	if len(req.Key) > MaxKeyLength {
		return Response{}, false, ErrKeyTooLong
	}

	logger := g.logger.WithFields(log.Fields{
		"idempotency_key": req.Key,
		"owner":           req.Owner,
		"operation":       req.Operation,
	})

	record, err := g.repo.Claim(ctx, domain.IdempotencyClaim{
		Owner:       req.Owner,
		Key:         req.Key,
		Operation:   req.Operation,
		Fingerprint: Fingerprint(req.Body),
		ExpiresAt:   g.now().Add(g.ttl),
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		return Response{}, false, err
	case errors.Is(err, domain.ErrIdempotencyKeyClaimed):
		if !record.Settled() {
			return Response{}, false, ErrInFlight
		}
		logger.Debug("replaying stored response")
		return Response{
			Status: record.Code,
			Body:   record.Payload,
			Failed: record.State == domain.IdempotencyRejected,
		}, true, nil
	default:
		logger.WithError(err).Warn("failed to claim idempotency key")
		return Response{}, false, err
	}

	resp, err = run(ctx)
	if err != nil || resp.Transient {
		if releaseErr := g.repo.Release(context.WithoutCancel(ctx), req.Owner, req.Key); releaseErr != nil {
			logger.WithError(releaseErr).Warn("failed to release idempotency key")
		}
		if err != nil {
			return Response{}, false, err
		}
		return resp, false, nil
	}

	state := domain.IdempotencySucceeded
	if resp.Failed {
		state = domain.IdempotencyRejected
	}
	if settleErr := g.repo.Settle(ctx, req.Owner, req.Key, state, resp.Status, resp.Body); settleErr != nil {
		logger.WithError(settleErr).Warn("failed to store idempotent response")
	}
	return resp, false, nil
}
