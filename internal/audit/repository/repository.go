package repository

import (
	"context"

	"foxtrail/handoff/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByOwner(ctx context.Context, ownerID string, limit, offset int32) ([]*domain.AuditLog, error)
}
