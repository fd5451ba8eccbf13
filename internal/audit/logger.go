// Package audit records transfer protocol events best-effort: a failed audit
// write never fails the operation it describes.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"foxtrail/handoff/internal/audit/domain"
	auditrepo "foxtrail/handoff/internal/audit/repository"
)

// Actions recorded by the transfer session manager.
const (
	ActionCreate     = "create"
	ActionRefresh    = "refresh"
	ActionConsume    = "consume"
	ActionInvalidate = "invalidate"
	ActionCleanup    = "cleanup"
)

// ResourceTransferSession is the resource name for transfer session events.
const ResourceTransferSession = "transfer_session"

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, ownerID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo auditrepo.Repository
}

// NewLogger returns an AuditLogger that persists to repo. repo may be nil;
// then LogEvent is a no-op.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, ownerID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Action:    action,
		Resource:  resource,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}
