package domain

import (
	"errors"
	"testing"
	"time"
)

func TestIdempotencyStateValid(t *testing.T) {
	tests := []struct {
		state IdempotencyState
		want  bool
	}{
		{IdempotencyInFlight, true},
		{IdempotencySucceeded, true},
		{IdempotencyRejected, true},
		{IdempotencyState("done"), false},
		{IdempotencyState(""), false},
	}

	for _, tc := range tests {
		if got := tc.state.Valid(); got != tc.want {
			t.Errorf("state %q valid=%v, want %v", tc.state, got, tc.want)
		}
	}
}

func TestIdempotencyClaimValidate(t *testing.T) {
	claim := IdempotencyClaim{Owner: " user-1 ", Key: "  ", Operation: "create", Fingerprint: "abc"}.Normalize()
	if claim.Owner != "user-1" {
		t.Fatalf("owner not trimmed: %q", claim.Owner)
	}
	if err := claim.Validate(); !errors.Is(err, ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}

	claim.Key = "k-1"
	claim.Fingerprint = ""
	if err := claim.Validate(); !errors.Is(err, ErrIdempotencyFingerprintRequired) {
		t.Fatalf("expected ErrIdempotencyFingerprintRequired, got %v", err)
	}

	claim.Fingerprint = "abc"
	if err := claim.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIdempotencyRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record := IdempotencyRecord{
		IdempotencyClaim: IdempotencyClaim{Owner: "u", Key: "k", Operation: "create", Fingerprint: "f1", ExpiresAt: now},
		State:            IdempotencyInFlight,
	}

	if record.Settled() {
		t.Fatal("in-flight record must not be settled")
	}
	record.State = IdempotencyRejected
	if !record.Settled() {
		t.Fatal("rejected record must be settled")
	}

	if !record.Expired(now) {
		t.Fatal("record expiring now must be expired")
	}
	if record.Expired(now.Add(-time.Second)) {
		t.Fatal("record must not be expired before its deadline")
	}

	same := record.IdempotencyClaim
	if err := record.ConflictWith(same); !errors.Is(err, ErrIdempotencyKeyClaimed) {
		t.Fatalf("expected ErrIdempotencyKeyClaimed, got %v", err)
	}
	other := same
	other.Operation = "complete"
	if err := record.ConflictWith(other); !errors.Is(err, ErrIdempotencyKeyReused) {
		t.Fatalf("expected ErrIdempotencyKeyReused, got %v", err)
	}
	other = same
	other.Fingerprint = "f2"
	if err := record.ConflictWith(other); !errors.Is(err, ErrIdempotencyKeyReused) {
		t.Fatalf("expected ErrIdempotencyKeyReused, got %v", err)
	}
}
