package repository

import (
	"context"
	"sync"
	"time"

	"foxtrail/handoff/internal/transfer/domain"
)

// MemoryRepository is an in-memory Repository used in dev mode (no
// DATABASE_URL) and in tests. All operations take the store lock, so the
// consume check-and-mark is atomic like the Postgres conditional UPDATE.
type MemoryRepository struct {
	mu      sync.Mutex
	byOwner map[string]*domain.TransferSession
}

// NewMemoryRepository returns an empty in-memory transfer session store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byOwner: make(map[string]*domain.TransferSession)}
}

// UpsertByOwner inserts or replaces the owner's session.
func (r *MemoryRepository) UpsertByOwner(ctx context.Context, s *domain.TransferSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.byOwner[s.OwnerID] = &cp
	return nil
}

// GetByToken returns the session with the given token, or nil.
func (r *MemoryRepository) GetByToken(ctx context.Context, token string) (*domain.TransferSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byOwner {
		if s.SessionToken == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

// GetByOwner returns the owner's session, or nil.
func (r *MemoryRepository) GetByOwner(ctx context.Context, ownerID string) (*domain.TransferSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byOwner[ownerID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// ConsumeByToken atomically marks the unconsumed session with the given token
// as consumed. Returns (nil, nil) when no unconsumed row matches.
func (r *MemoryRepository) ConsumeByToken(ctx context.Context, token string, at time.Time) (*domain.TransferSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byOwner {
		if s.SessionToken == token && !s.Consumed {
			s.Consumed = true
			consumedAt := at
			s.ConsumedAt = &consumedAt
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

// DeleteByOwner removes the owner's session if any.
func (r *MemoryRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byOwner, ownerID)
	return nil
}

// DeleteExpiredByOwner removes the owner's session when its expiry precedes before.
func (r *MemoryRepository) DeleteExpiredByOwner(ctx context.Context, ownerID string, before time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byOwner[ownerID]; ok && s.ExpiresAt.Before(before) {
		delete(r.byOwner, ownerID)
	}
	return nil
}
