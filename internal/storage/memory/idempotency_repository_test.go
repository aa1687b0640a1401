package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/storage/memory"
)

func newClaim(owner, key, operation, fingerprint string, expires time.Time) domain.IdempotencyClaim {
	return domain.IdempotencyClaim{
		Owner:       owner,
		Key:         key,
		Operation:   operation,
		Fingerprint: fingerprint,
		ExpiresAt:   expires,
	}
}

func TestIdempotencyRepository_ClaimScopedByOwner(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	expires := time.Now().UTC().Add(time.Hour)

	first, err := repo.Claim(ctx, newClaim("member-1", "checkout-1", "create", "fp-a", expires))
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if first.State != domain.IdempotencyInFlight {
		t.Fatalf("expected in-flight state, got %s", first.State)
	}

	// другой пользователь с тем же ключом получает собственную заявку
	if _, err := repo.Claim(ctx, newClaim("member-2", "checkout-1", "create", "fp-b", expires)); err != nil {
		t.Fatalf("Claim for other owner failed: %v", err)
	}

	existing, err := repo.Claim(ctx, newClaim("member-1", "checkout-1", "create", "fp-a", expires))
	if !errors.Is(err, domain.ErrIdempotencyKeyClaimed) {
		t.Fatalf("expected ErrIdempotencyKeyClaimed, got %v", err)
	}
	if existing.Fingerprint != "fp-a" {
		t.Fatalf("expected existing record, got %+v", existing)
	}

	if _, err := repo.Claim(ctx, newClaim("member-1", "checkout-1", "create", "fp-c", expires)); !errors.Is(err, domain.ErrIdempotencyKeyReused) {
		t.Fatalf("expected ErrIdempotencyKeyReused, got %v", err)
	}
	if _, err := repo.Claim(ctx, newClaim("member-1", "checkout-1", "complete", "fp-a", expires)); !errors.Is(err, domain.ErrIdempotencyKeyReused) {
		t.Fatalf("expected ErrIdempotencyKeyReused for other operation, got %v", err)
	}
}

func TestIdempotencyRepository_ClaimValidation(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()

	if _, err := repo.Claim(ctx, newClaim("u", " ", "create", "fp", time.Time{})); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := repo.Claim(ctx, newClaim("u", "k", "create", "", time.Time{})); !errors.Is(err, domain.ErrIdempotencyFingerprintRequired) {
		t.Fatalf("expected ErrIdempotencyFingerprintRequired, got %v", err)
	}

	record, err := repo.Claim(ctx, newClaim("u", "k", "create", "fp", time.Time{}))
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if record.ExpiresAt.IsZero() {
		t.Fatal("expected default expiry")
	}
}

func TestIdempotencyRepository_SettleAndFind(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()

	if _, err := repo.Claim(ctx, newClaim("admin", "cancel-1", "cancel", "fp", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	payload := []byte(`{"message":"Order is Already Completed!"}`)
	if err := repo.Settle(ctx, "admin", "cancel-1", domain.IdempotencyRejected, 400, payload); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	payload[0] = 'x'

	got, err := repo.Find(ctx, "admin", "cancel-1")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !got.Settled() || got.Code != 400 || got.Payload[0] != '{' {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := repo.Settle(ctx, "admin", "missing", domain.IdempotencySucceeded, 200, nil); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
	if _, err := repo.Find(ctx, "member", "cancel-1"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound for other owner, got %v", err)
	}
}

func TestIdempotencyRepository_PurgeAndReclaim(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, key := range []string{"old-1", "old-2", "old-3"} {
		if _, err := repo.Claim(ctx, newClaim("u", key, "create", "fp", now.Add(-time.Minute))); err != nil {
			t.Fatalf("Claim %s failed: %v", key, err)
		}
	}
	if _, err := repo.Claim(ctx, newClaim("u", "fresh", "create", "fp", now.Add(time.Hour))); err != nil {
		t.Fatalf("Claim fresh failed: %v", err)
	}

	// истёкший ключ можно занять заново и до очистки
	if _, err := repo.Claim(ctx, newClaim("u", "old-3", "complete", "fp-2", now.Add(time.Hour))); err != nil {
		t.Fatalf("reclaim expired key failed: %v", err)
	}

	removed, err := repo.Purge(ctx, now, 1)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed with limit, got %d", removed)
	}

	removed, err = repo.Purge(ctx, now, 0)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected remaining expired claim removed, got %d", removed)
	}

	for _, key := range []string{"fresh", "old-3"} {
		if _, err := repo.Find(ctx, "u", key); err != nil {
			t.Fatalf("expected %s to survive purge: %v", key, err)
		}
	}
}
