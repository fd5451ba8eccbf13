package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"foxtrail/handoff/internal/transfer/domain"
	"foxtrail/handoff/internal/transfer/notify"
	"foxtrail/handoff/internal/transfer/repository"
)

const testTTL = 300 * time.Second

func newTestManager(t *testing.T) (*Manager, *repository.MemoryRepository, *notify.MemoryBroker) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	broker := notify.NewMemoryBroker()
	m := NewManager(repo, broker, nil, nil, testTTL)
	return m, repo, broker
}

// flakyRepo fails the first failCount writes, then delegates.
type flakyRepo struct {
	repository.Repository
	mu        sync.Mutex
	failCount int
	calls     int
}

func (f *flakyRepo) UpsertByOwner(ctx context.Context, s *domain.TransferSession) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failCount
	f.mu.Unlock()
	if fail {
		return errors.New("connection refused")
	}
	return f.Repository.UpsertByOwner(ctx, s)
}

func TestDefaultClockAdvances(t *testing.T) {
	m := NewManager(repository.NewMemoryRepository(), nil, nil, nil, testTTL)
	first := m.nowF()
	time.Sleep(20 * time.Millisecond)
	second := m.nowF()
	if !second.After(first) {
		t.Fatalf("clock did not advance: %v then %v", first, second)
	}

	s, err := m.Create(context.Background(), "owner-1", "cred")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.CreatedAt.Before(second) {
		t.Errorf("CreatedAt %v predates an earlier clock reading %v", s.CreatedAt, second)
	}
}

func TestCreateIssuesSingleUseSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "owner-1", "refresh-token-abc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.SessionToken == "" {
		t.Fatal("expected a session token")
	}
	if s.Consumed {
		t.Error("new session must not be consumed")
	}
	want := s.CreatedAt.Add(testTTL)
	if !s.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, want)
	}

	got, err := m.Current(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got.SessionToken != s.SessionToken {
		t.Errorf("Current token = %q, want %q", got.SessionToken, s.SessionToken)
	}
}

func TestCreateRequiresOwnerAndCredential(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.Create(context.Background(), "", "cred"); err == nil {
		t.Error("expected error for empty owner id")
	}
	if _, err := m.Create(context.Background(), "owner-1", ""); err == nil {
		t.Error("expected error for empty credential")
	}
}

func TestRefreshSupersedesPreviousToken(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, "owner-1", "cred")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := m.Refresh(ctx, "owner-1", "cred")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if first.SessionToken == second.SessionToken {
		t.Fatal("refresh must issue a new token")
	}

	// The superseded token is dead for good.
	if _, err := m.ValidateAndConsume(ctx, first.SessionToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("superseded token: got %v, want ErrNotFound", err)
	}
	// The replacement still works.
	if _, err := m.ValidateAndConsume(ctx, second.SessionToken); err != nil {
		t.Errorf("current token: %v", err)
	}
}

func TestValidateAndConsumeHappyPath(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, "owner-1", "refresh-token-abc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s, err := m.ValidateAndConsume(ctx, created.SessionToken)
	if err != nil {
		t.Fatalf("ValidateAndConsume: %v", err)
	}
	if s.Credential != "refresh-token-abc" {
		t.Errorf("credential = %q, want original", s.Credential)
	}
	if !s.Consumed || s.ConsumedAt == nil {
		t.Error("returned session must be marked consumed")
	}

	stored, err := repo.GetByToken(ctx, created.SessionToken)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if !stored.Consumed {
		t.Error("stored row must be consumed")
	}

	if _, err := m.ValidateAndConsume(ctx, created.SessionToken); !errors.Is(err, ErrAlreadyConsumed) {
		t.Errorf("second consume: got %v, want ErrAlreadyConsumed", err)
	}
}

func TestValidateAndConsumeUnknownToken(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.ValidateAndConsume(context.Background(), "no-such-token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if _, err := m.ValidateAndConsume(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty token: got %v, want ErrNotFound", err)
	}
}

func TestValidateAndConsumeJustBeforeExpiry(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "owner-1", "cred")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.nowF = func() time.Time { return s.ExpiresAt.Add(-time.Second) }

	got, err := m.ValidateAndConsume(ctx, s.SessionToken)
	if err != nil {
		t.Fatalf("consume one second before expiry: %v", err)
	}
	if got.Credential != "cred" {
		t.Errorf("credential = %q, want original", got.Credential)
	}
}

func TestValidateAndConsumeExpiredLeavesRowUnconsumed(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "owner-1", "cred")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.nowF = func() time.Time { return s.ExpiresAt.Add(time.Second) }

	if _, err := m.ValidateAndConsume(ctx, s.SessionToken); !errors.Is(err, ErrExpired) {
		t.Fatalf("got %v, want ErrExpired", err)
	}
	stored, err := repo.GetByToken(ctx, s.SessionToken)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if stored == nil || stored.Consumed {
		t.Error("expired row must remain present and unconsumed")
	}
}

func TestConcurrentConsumeHasExactlyOneWinner(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "owner-1", "cred")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.ValidateAndConsume(ctx, s.SessionToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyConsumed), errors.Is(err, ErrNotFound):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
	if losses != n-1 {
		t.Errorf("losses = %d, want %d", losses, n-1)
	}
}

func TestConsumePublishesChange(t *testing.T) {
	m, _, broker := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "owner-1", "cred")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got := make(chan notify.Change, 1)
	unsub, err := broker.Subscribe(ctx, s.SessionToken, func(c notify.Change) {
		got <- c
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()

	if _, err := m.ValidateAndConsume(ctx, s.SessionToken); err != nil {
		t.Fatalf("ValidateAndConsume: %v", err)
	}
	select {
	case c := <-got:
		if !c.Consumed || c.Token != s.SessionToken || c.OwnerID != "owner-1" {
			t.Errorf("unexpected change %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("no change published")
	}
}

func TestCreateRetriesOnceOnWriteFailure(t *testing.T) {
	old := retryBackoff
	retryBackoff = time.Millisecond
	defer func() { retryBackoff = old }()

	flaky := &flakyRepo{Repository: repository.NewMemoryRepository(), failCount: 1}
	m := NewManager(flaky, nil, nil, nil, testTTL)

	if _, err := m.Create(context.Background(), "owner-1", "cred"); err != nil {
		t.Fatalf("Create with one transient failure: %v", err)
	}
	if flaky.calls != 2 {
		t.Errorf("upsert calls = %d, want 2", flaky.calls)
	}
}

func TestCreateGivesUpAfterOneRetry(t *testing.T) {
	old := retryBackoff
	retryBackoff = time.Millisecond
	defer func() { retryBackoff = old }()

	flaky := &flakyRepo{Repository: repository.NewMemoryRepository(), failCount: 2}
	m := NewManager(flaky, nil, nil, nil, testTTL)

	_, err := m.Create(context.Background(), "owner-1", "cred")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("got %v, want ErrStoreUnavailable", err)
	}
	if flaky.calls != 2 {
		t.Errorf("upsert calls = %d, want 2", flaky.calls)
	}
}

func TestCurrentReportsLifecycleStates(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Current(ctx, "owner-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("no session: got %v, want ErrNotFound", err)
	}

	s, err := m.Create(ctx, "owner-1", "cred")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if active, err := m.HasActive(ctx, "owner-1"); err != nil || !active {
		t.Errorf("HasActive = (%v, %v), want (true, nil)", active, err)
	}

	if _, err := m.ValidateAndConsume(ctx, s.SessionToken); err != nil {
		t.Fatalf("ValidateAndConsume: %v", err)
	}
	if _, err := m.Current(ctx, "owner-1"); !errors.Is(err, ErrAlreadyConsumed) {
		t.Errorf("consumed: got %v, want ErrAlreadyConsumed", err)
	}
	if active, _ := m.HasActive(ctx, "owner-1"); active {
		t.Error("consumed session must not be active")
	}

	s2, err := m.Create(ctx, "owner-1", "cred")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.nowF = func() time.Time { return s2.ExpiresAt.Add(time.Minute) }
	if _, err := m.Current(ctx, "owner-1"); !errors.Is(err, ErrExpired) {
		t.Errorf("expired: got %v, want ErrExpired", err)
	}
}

func TestInvalidateRemovesSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "owner-1", "cred")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Invalidate(ctx, "owner-1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := m.ValidateAndConsume(ctx, s.SessionToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("invalidated token: got %v, want ErrNotFound", err)
	}
	if err := m.Invalidate(ctx, "owner-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second invalidate: got %v, want ErrNotFound", err)
	}
}

func TestCleanupExpiredRemovesOnlyLapsedRows(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "owner-1", "cred")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Still fresh: cleanup keeps it.
	m.CleanupExpired(ctx, "owner-1")
	if row, _ := repo.GetByOwner(ctx, "owner-1"); row == nil {
		t.Fatal("fresh session must survive cleanup")
	}

	m.nowF = func() time.Time { return s.ExpiresAt.Add(time.Minute) }
	m.CleanupExpired(ctx, "owner-1")
	if row, _ := repo.GetByOwner(ctx, "owner-1"); row != nil {
		t.Error("expired session must be removed")
	}
}
