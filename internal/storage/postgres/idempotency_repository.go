package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

const idempotencyColumns = `owner, key, operation, fingerprint, state, code, payload, expires_at, created_at, updated_at`

const (
	// строка возвращается, только если ключ свободен или его запись истекла
	claimKeySQL = `
		INSERT INTO idempotency_keys AS k (` + idempotencyColumns + `)
		VALUES ($1, $2, $3, $4, $5, 0, NULL, $6, $7, $7)
		ON CONFLICT (owner, key) DO UPDATE
		SET operation = EXCLUDED.operation, fingerprint = EXCLUDED.fingerprint,
		    state = EXCLUDED.state, code = 0, payload = NULL,
		    expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at
		WHERE k.expires_at <= EXCLUDED.created_at
		RETURNING ` + idempotencyColumns

	findKeySQL = `SELECT ` + idempotencyColumns + ` FROM idempotency_keys WHERE owner = $1 AND key = $2`

	settleKeySQL = `
		UPDATE idempotency_keys
		SET state = $3, code = $4, payload = $5, updated_at = $6
		WHERE owner = $1 AND key = $2`

	releaseKeySQL = `DELETE FROM idempotency_keys WHERE owner = $1 AND key = $2 AND state = $3`

	// limit 0 снимает ограничение
	purgeKeysSQL = `
		DELETE FROM idempotency_keys
		WHERE (owner, key) IN (
			SELECT owner, key FROM idempotency_keys
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT NULLIF($2, 0))`
)

type idempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

// Claim занимает ключ владельца одним запросом. Если ключ занят живой записью,
// возвращает её вместе с ошибкой конфликта.
func (r *idempotencyRepository) Claim(ctx context.Context, claim domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	claim = claim.Normalize()
	if err := claim.Validate(); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	now := time.Now().UTC()
	claim = claim.WithExpiry(now)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanIdempotency(r.db.QueryRowContext(ctx, claimKeySQL,
		claim.Owner, claim.Key, claim.Operation, claim.Fingerprint,
		string(domain.IdempotencyInFlight), claim.ExpiresAt, now))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return domain.IdempotencyRecord{}, fmt.Errorf("claim %s/%s: %w", claim.Owner, claim.Key, err)
	}

	held, err := r.Find(ctx, claim.Owner, claim.Key)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("load held key %s/%s: %w", claim.Owner, claim.Key, err)
	}
	return held, held.ConflictWith(claim)
}

func (r *idempotencyRepository) Find(ctx context.Context, owner, key string) (domain.IdempotencyRecord, error) {
	owner, key = strings.TrimSpace(owner), strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return scanIdempotency(r.db.QueryRowContext(ctx, findKeySQL, owner, key))
}

func (r *idempotencyRepository) Settle(ctx context.Context, owner, key string, state domain.IdempotencyState, code int, payload []byte) error {
	owner, key = strings.TrimSpace(owner), strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	if !state.Valid() {
		return fmt.Errorf("settle %s/%s: unknown state %q", owner, key, state)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := affected(r.db.ExecContext(ctx, settleKeySQL, owner, key, string(state), code, payload, time.Now().UTC()))
	switch {
	case err != nil:
		return fmt.Errorf("settle %s/%s: %w", owner, key, err)
	case n == 0:
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// Release удаляет только заявку в работе; сохранённый ответ остаётся.
func (r *idempotencyRepository) Release(ctx context.Context, owner, key string) error {
	owner, key = strings.TrimSpace(owner), strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, releaseKeySQL, owner, key, string(domain.IdempotencyInFlight)); err != nil {
		return fmt.Errorf("release %s/%s: %w", owner, key, err)
	}
	return nil
}

func (r *idempotencyRepository) Purge(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := affected(r.db.ExecContext(ctx, purgeKeysSQL, before, max(limit, 0)))
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return int(n), nil
}

// scanIdempotency превращает sql.ErrNoRows в ErrIdempotencyKeyNotFound.
func scanIdempotency(row rowScanner) (domain.IdempotencyRecord, error) {
	var (
		rec   domain.IdempotencyRecord
		state string
	)
	err := row.Scan(&rec.Owner, &rec.Key, &rec.Operation, &rec.Fingerprint, &state,
		&rec.Code, &rec.Payload, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	rec.State = domain.IdempotencyState(state)
	if !rec.State.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency key %s/%s has unknown state %q", rec.Owner, rec.Key, state)
	}
	return rec, nil
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
