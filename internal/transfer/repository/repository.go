package repository

import (
	"context"
	"time"

	"foxtrail/handoff/internal/transfer/domain"
)

// Repository defines persistence for transfer sessions. Lookups return
// (nil, nil) for missing rows; errors are reserved for store failures.
type Repository interface {
	// UpsertByOwner atomically inserts the session or, when a row for the
	// owner already exists, replaces every field of it. The replaced row's
	// token is permanently superseded.
	UpsertByOwner(ctx context.Context, s *domain.TransferSession) error
	// GetByToken returns the session with the given token, or nil.
	GetByToken(ctx context.Context, token string) (*domain.TransferSession, error)
	// GetByOwner returns the owner's session row, or nil.
	GetByOwner(ctx context.Context, ownerID string) (*domain.TransferSession, error)
	// ConsumeByToken atomically marks the unconsumed session with the given
	// token as consumed at the given time and returns it. Returns (nil, nil)
	// when no unconsumed row matches, including when a concurrent caller won
	// the race. This is the protocol's mutual-exclusion point.
	ConsumeByToken(ctx context.Context, token string, at time.Time) (*domain.TransferSession, error)
	// DeleteByOwner removes the owner's session row if any.
	DeleteByOwner(ctx context.Context, ownerID string) error
	// DeleteExpiredByOwner removes the owner's rows whose expiry precedes before.
	DeleteExpiredByOwner(ctx context.Context, ownerID string, before time.Time) error
}
