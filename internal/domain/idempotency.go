package domain

import (
	"strings"
	"time"
)

// IdempotencyState — стадия обработки запроса, пришедшего с ключом идемпотентности.
type IdempotencyState string

const (
	// IdempotencyInFlight — запрос принят, ответа ещё нет.
	IdempotencyInFlight IdempotencyState = "in_flight"
	// IdempotencySucceeded — операция выполнена, ответ сохранён.
	IdempotencySucceeded IdempotencyState = "succeeded"
	// IdempotencyRejected — операция отклонена, сохранён ответ с ошибкой.
	IdempotencyRejected IdempotencyState = "rejected"
)

// Valid сообщает, известна ли стадия.
func (s IdempotencyState) Valid() bool {
	switch s {
	case IdempotencyInFlight, IdempotencySucceeded, IdempotencyRejected:
		return true
	default:
		return false
	}
}

// DefaultIdempotencyTTL — срок жизни заявки, если он не указан явно.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyClaim — заявка на выполнение операции под ключом клиента.
// Ключи живут в пространстве владельца: одинаковые ключи разных пользователей не пересекаются.
type IdempotencyClaim struct {
	Owner       string
	Key         string
	Operation   string
	Fingerprint string
	ExpiresAt   time.Time
}

// WithExpiry подставляет срок жизни от now, если он не задан.
func (c IdempotencyClaim) WithExpiry(now time.Time) IdempotencyClaim {
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = now.Add(DefaultIdempotencyTTL)
	}
	return c
}

// Normalize убирает пробелы по краям идентифицирующих полей.
func (c IdempotencyClaim) Normalize() IdempotencyClaim {
	c.Owner = strings.TrimSpace(c.Owner)
	c.Key = strings.TrimSpace(c.Key)
	c.Operation = strings.TrimSpace(c.Operation)
	c.Fingerprint = strings.TrimSpace(c.Fingerprint)
	return c
}

// Validate проверяет обязательные поля заявки.
func (c IdempotencyClaim) Validate() error {
	if c.Key == "" {
		return ErrIdempotencyKeyRequired
	}
	if c.Fingerprint == "" {
		return ErrIdempotencyFingerprintRequired
	}
	return nil
}

// IdempotencyRecord — заявка вместе с сохранённым результатом.
// Code хранит HTTP-статус или gRPC-код, в зависимости от транспорта.
type IdempotencyRecord struct {
	IdempotencyClaim
	State     IdempotencyState
	Code      int
	Payload   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settled сообщает, что результат сохранён и его можно воспроизвести.
func (r IdempotencyRecord) Settled() bool {
	return r.State == IdempotencySucceeded || r.State == IdempotencyRejected
}

// Expired сообщает, что запись пора удалить.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// ConflictWith возвращает ошибку повторной заявки с тем же ключом:
// ErrIdempotencyKeyReused, если запрос другой, иначе ErrIdempotencyKeyClaimed.
func (r IdempotencyRecord) ConflictWith(c IdempotencyClaim) error {
	if r.Operation != c.Operation || r.Fingerprint != c.Fingerprint {
		return ErrIdempotencyKeyReused
	}
	return ErrIdempotencyKeyClaimed
}
