package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"foxtrail/handoff/internal/audit"
	"foxtrail/handoff/internal/security"
	"foxtrail/handoff/internal/telemetry"
	telemetrydomain "foxtrail/handoff/internal/telemetry/domain"
	"foxtrail/handoff/internal/transfer/domain"
	"foxtrail/handoff/internal/transfer/notify"
	"foxtrail/handoff/internal/transfer/repository"
)

// Sentinel errors for the session manager; handler maps them to HTTP codes.
var (
	ErrStoreUnavailable = errors.New("transfer session store unavailable")
	ErrNotFound         = errors.New("transfer session not found")
	ErrExpired          = errors.New("transfer session expired")
	ErrAlreadyConsumed  = errors.New("transfer session already consumed")
)

// retryBackoff is the pause before the single write retry. Var so tests can
// shorten it.
var retryBackoff = 100 * time.Millisecond

// Manager owns the transfer session lifecycle: issuing single-use tokens,
// superseding them on refresh, and consuming them exactly once.
type Manager struct {
	repo    repository.Repository
	broker  notify.Publisher
	auditor audit.AuditLogger
	emitter telemetry.EventEmitter
	ttl     time.Duration
	source  string
	nowF    func() time.Time
}

// NewManager returns a Manager with the given dependencies. broker, auditor,
// and emitter may be nil; the corresponding side effects are then skipped.
func NewManager(
	repo repository.Repository,
	broker notify.Publisher,
	auditor audit.AuditLogger,
	emitter telemetry.EventEmitter,
	ttl time.Duration,
) *Manager {
	return &Manager{
		repo:    repo,
		broker:  broker,
		auditor: auditor,
		emitter: emitter,
		ttl:     ttl,
		source:  "handoff-service",
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// Create issues a fresh transfer session for the owner, replacing any
// existing one. The previous token, if any, is permanently superseded.
func (m *Manager) Create(ctx context.Context, ownerID, credential string) (*domain.TransferSession, error) {
	return m.issue(ctx, ownerID, credential, audit.ActionCreate, telemetrydomain.EventSessionCreated)
}

// Refresh issues a new token for the owner before the current one expires.
// Semantically identical to Create; recorded separately for auditing.
func (m *Manager) Refresh(ctx context.Context, ownerID, credential string) (*domain.TransferSession, error) {
	return m.issue(ctx, ownerID, credential, audit.ActionRefresh, telemetrydomain.EventSessionRefreshed)
}

func (m *Manager) issue(ctx context.Context, ownerID, credential, action, eventType string) (*domain.TransferSession, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	if credential == "" {
		return nil, errors.New("credential is required")
	}
	now := m.nowF()
	s := &domain.TransferSession{
		OwnerID:      ownerID,
		SessionToken: uuid.New().String(),
		Credential:   credential,
		ExpiresAt:    now.Add(m.ttl),
		CreatedAt:    now,
	}
	if err := m.upsertWithRetry(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	m.logEvent(ctx, ownerID, action, s)
	m.emit(eventType, s)
	return s, nil
}

// upsertWithRetry writes the session, retrying once after a short pause.
// Transient store hiccups get one second chance; anything beyond that is the
// caller's problem.
func (m *Manager) upsertWithRetry(ctx context.Context, s *domain.TransferSession) error {
	err := m.repo.UpsertByOwner(ctx, s)
	if err == nil {
		return nil
	}
	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return ctx.Err()
	}
	return m.repo.UpsertByOwner(ctx, s)
}

// Current returns the owner's active session. ErrNotFound if the owner has
// none; ErrExpired if the stored one has lapsed.
func (m *Manager) Current(ctx context.Context, ownerID string) (*domain.TransferSession, error) {
	s, err := m.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if s == nil {
		return nil, ErrNotFound
	}
	if s.Consumed {
		return nil, ErrAlreadyConsumed
	}
	if s.Expired(m.nowF()) {
		return nil, ErrExpired
	}
	return s, nil
}

// HasActive reports whether the owner currently has a consumable session.
func (m *Manager) HasActive(ctx context.Context, ownerID string) (bool, error) {
	_, err := m.Current(ctx, ownerID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired), errors.Is(err, ErrAlreadyConsumed):
		return false, nil
	default:
		return false, err
	}
}

// ValidateAndConsume atomically consumes the session with the given token
// and returns it with its credential. Exactly one caller can succeed for a
// given token; every later or concurrent-losing call gets ErrAlreadyConsumed
// or ErrNotFound. An expired session is reported as ErrExpired and its row
// is left untouched for the owner's cleanup.
func (m *Manager) ValidateAndConsume(ctx context.Context, token string) (*domain.TransferSession, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	existing, err := m.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	now := m.nowF()
	if existing.Consumed {
		return nil, ErrAlreadyConsumed
	}
	if existing.Expired(now) {
		m.emit(telemetrydomain.EventSessionExpired, existing)
		return nil, ErrExpired
	}
	s, err := m.repo.ConsumeByToken(ctx, token, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if s == nil {
		// Lost the race: someone consumed (or the owner replaced) the row
		// between the read and the conditional update.
		return nil, ErrAlreadyConsumed
	}
	m.publishConsumed(ctx, s)
	m.logEvent(ctx, s.OwnerID, audit.ActionConsume, s)
	m.emit(telemetrydomain.EventSessionConsumed, s)
	return s, nil
}

// Invalidate removes the owner's session so its token can no longer be
// consumed.
func (m *Manager) Invalidate(ctx context.Context, ownerID string) error {
	s, err := m.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if s == nil {
		return ErrNotFound
	}
	if err := m.repo.DeleteByOwner(ctx, ownerID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	m.logEvent(ctx, ownerID, audit.ActionInvalidate, s)
	m.emit(telemetrydomain.EventSessionInvalidated, s)
	return nil
}

// CleanupExpired removes the owner's lapsed rows. Best-effort: failures are
// logged and swallowed so teardown paths never fail on housekeeping.
func (m *Manager) CleanupExpired(ctx context.Context, ownerID string) {
	if err := m.repo.DeleteExpiredByOwner(ctx, ownerID, m.nowF()); err != nil {
		log.Printf("transfer: cleanup expired sessions for owner %s: %v", ownerID, err)
		return
	}
	if m.auditor != nil {
		m.auditor.LogEvent(ctx, ownerID, audit.ActionCleanup, audit.ResourceTransferSession, "")
	}
}

// publishConsumed announces the consumption on the change feed. Best-effort:
// the consume already happened; a missed announcement only delays the
// producer's UI.
func (m *Manager) publishConsumed(ctx context.Context, s *domain.TransferSession) {
	if m.broker == nil {
		return
	}
	change := notify.Change{
		Token:      s.SessionToken,
		OwnerID:    s.OwnerID,
		Consumed:   true,
		ConsumedAt: s.ConsumedAt,
	}
	if err := m.broker.Publish(ctx, change); err != nil {
		log.Printf("transfer: publish consumed change for token %s: %v", s.SessionToken, err)
	}
}

func (m *Manager) logEvent(ctx context.Context, ownerID, action string, s *domain.TransferSession) {
	if m.auditor == nil {
		return
	}
	meta := fmt.Sprintf(`{"session_token":%q,"credential_hash":%q}`,
		s.SessionToken, security.HashCredential(s.Credential))
	m.auditor.LogEvent(ctx, ownerID, action, audit.ResourceTransferSession, meta)
}

func (m *Manager) emit(eventType string, s *domain.TransferSession) {
	if m.emitter == nil {
		return
	}
	telemetry.EmitAsync(m.emitter, &telemetrydomain.TelemetryEvent{
		ID:           uuid.New().String(),
		EventType:    eventType,
		OwnerID:      s.OwnerID,
		SessionToken: s.SessionToken,
		Source:       m.source,
		Metadata: map[string]string{
			"credential_hash": security.HashCredential(s.Credential),
		},
		CreatedAt: m.nowF(),
	})
}
