package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/storage/memory"
)

func TestTimelineRepository_ChronologicalOrder(t *testing.T) {
	repo := memory.NewTimelineRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []domain.TimelineEvent{
		{OrderID: "AB12C", Type: domain.TimelineOrderCompleted, Occurred: base.Add(2 * time.Minute)},
		{OrderID: "AB12C", Type: domain.TimelineOrderCreated, Occurred: base},
		{OrderID: "AB12C", Type: domain.TimelineOrderPending, Occurred: base.Add(time.Minute)},
		{OrderID: "QW7E2", Type: domain.TimelineOrderCreated, Occurred: base},
	}
	for _, e := range events {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := repo.List(ctx, "AB12C")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []domain.TimelineKind{domain.TimelineOrderCreated, domain.TimelineOrderPending, domain.TimelineOrderCompleted}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, kind := range want {
		if got[i].Type != kind {
			t.Errorf("event %d: expected %s, got %s", i, kind, got[i].Type)
		}
	}

	// возвращается копия
	got[0].Reason = "mutated"
	again, _ := repo.List(ctx, "AB12C")
	if again[0].Reason != "" {
		t.Fatal("List must not expose internal slice")
	}

	empty, err := repo.List(ctx, "MISS0")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil history, got %v, %v", empty, err)
	}
}

func TestTimelineRepository_RolledBackTxLeavesNoTrace(t *testing.T) {
	repo := memory.NewTimelineRepository()
	tx := memory.NewTxManager()
	ctx := context.Background()

	errAbort := errors.New("abort")
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := repo.Append(ctx, domain.TimelineEvent{OrderID: "AB12C", Type: domain.TimelineOrderCancelled}); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected abort error, got %v", err)
	}

	if got, _ := repo.List(ctx, "AB12C"); len(got) != 0 {
		t.Fatalf("rolled back append must be discarded, got %d", len(got))
	}

	if err := tx.WithinTx(ctx, func(ctx context.Context) error {
		return repo.Append(ctx, domain.TimelineEvent{OrderID: "AB12C", Type: domain.TimelineOrderCreated})
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got, _ := repo.List(ctx, "AB12C"); len(got) != 1 {
		t.Fatalf("committed append must be visible, got %d", len(got))
	}
}
