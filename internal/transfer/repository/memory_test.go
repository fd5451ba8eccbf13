package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"foxtrail/handoff/internal/transfer/domain"
)

func newSession(owner, token string, expiresAt time.Time) *domain.TransferSession {
	return &domain.TransferSession{
		OwnerID:      owner,
		SessionToken: token,
		Credential:   "credential-" + token,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestMemoryRepository_UpsertReplacesOwnerRow(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	exp := time.Now().Add(5 * time.Minute)

	if err := r.UpsertByOwner(ctx, newSession("owner-1", "token-a", exp)); err != nil {
		t.Fatalf("UpsertByOwner: %v", err)
	}
	if err := r.UpsertByOwner(ctx, newSession("owner-1", "token-b", exp)); err != nil {
		t.Fatalf("UpsertByOwner: %v", err)
	}

	// Old token is gone, not duplicated.
	old, err := r.GetByToken(ctx, "token-a")
	if err != nil || old != nil {
		t.Errorf("GetByToken(token-a) = (%v, %v), want (nil, nil)", old, err)
	}
	current, err := r.GetByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("GetByOwner: %v", err)
	}
	if current == nil || current.SessionToken != "token-b" {
		t.Errorf("owner row = %+v, want token-b", current)
	}
}

func TestMemoryRepository_ConsumeByToken(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	exp := time.Now().Add(5 * time.Minute)
	if err := r.UpsertByOwner(ctx, newSession("owner-1", "token-a", exp)); err != nil {
		t.Fatalf("UpsertByOwner: %v", err)
	}

	at := time.Now().UTC()
	s, err := r.ConsumeByToken(ctx, "token-a", at)
	if err != nil {
		t.Fatalf("ConsumeByToken: %v", err)
	}
	if s == nil || !s.Consumed || s.ConsumedAt == nil {
		t.Fatalf("consumed session = %+v", s)
	}

	// Second consume misses.
	again, err := r.ConsumeByToken(ctx, "token-a", at)
	if err != nil {
		t.Fatalf("ConsumeByToken: %v", err)
	}
	if again != nil {
		t.Error("second consume should return nil")
	}
}

func TestMemoryRepository_ConsumeRace(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	exp := time.Now().Add(5 * time.Minute)
	if err := r.UpsertByOwner(ctx, newSession("owner-1", "token-a", exp)); err != nil {
		t.Fatalf("UpsertByOwner: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.ConsumeByToken(ctx, "token-a", time.Now().UTC())
			if err != nil {
				t.Errorf("ConsumeByToken: %v", err)
				return
			}
			if s != nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Errorf("consume winners = %d, want exactly 1", won)
	}
}

func TestMemoryRepository_DeleteExpiredByOwner(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now().UTC()

	if err := r.UpsertByOwner(ctx, newSession("owner-1", "token-a", now.Add(-time.Minute))); err != nil {
		t.Fatalf("UpsertByOwner: %v", err)
	}
	if err := r.UpsertByOwner(ctx, newSession("owner-2", "token-b", now.Add(time.Minute))); err != nil {
		t.Fatalf("UpsertByOwner: %v", err)
	}

	if err := r.DeleteExpiredByOwner(ctx, "owner-1", now); err != nil {
		t.Fatalf("DeleteExpiredByOwner: %v", err)
	}
	if err := r.DeleteExpiredByOwner(ctx, "owner-2", now); err != nil {
		t.Fatalf("DeleteExpiredByOwner: %v", err)
	}

	if s, _ := r.GetByOwner(ctx, "owner-1"); s != nil {
		t.Error("expired owner-1 row should be deleted")
	}
	if s, _ := r.GetByOwner(ctx, "owner-2"); s == nil {
		t.Error("unexpired owner-2 row should survive")
	}
}

func TestMemoryRepository_DeleteByOwner(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	if err := r.UpsertByOwner(ctx, newSession("owner-1", "token-a", time.Now().Add(time.Minute))); err != nil {
		t.Fatalf("UpsertByOwner: %v", err)
	}
	if err := r.DeleteByOwner(ctx, "owner-1"); err != nil {
		t.Fatalf("DeleteByOwner: %v", err)
	}
	if s, _ := r.GetByOwner(ctx, "owner-1"); s != nil {
		t.Error("row should be deleted")
	}
	// Deleting a missing owner is not an error.
	if err := r.DeleteByOwner(ctx, "owner-unknown"); err != nil {
		t.Errorf("DeleteByOwner(missing) = %v", err)
	}
}
