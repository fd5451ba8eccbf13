// Package consumer drives the scanning side of the handoff: requesting
// camera permission, scanning the code, claiming the token, and redeeming
// the transferred credential for an independent session.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"foxtrail/handoff/internal/identity"
	"foxtrail/handoff/internal/transfer/domain"
	"foxtrail/handoff/internal/transfer/qr"
)

var (
	// ErrPermissionDenied is returned when the device refuses camera access.
	ErrPermissionDenied = errors.New("consumer: camera permission denied")
	// ErrBusy is returned when a claim flow is already in progress.
	ErrBusy = errors.New("consumer: a sign-in is already in progress")
)

// ScanCapability is the device's camera surface. StartScan blocks until a
// code is read or ctx is done, and returns the raw decoded payload text.
type ScanCapability interface {
	RequestPermission(ctx context.Context) error
	StartScan(ctx context.Context) (string, error)
}

// Claimer is the slice of the session manager the consumer needs.
type Claimer interface {
	ValidateAndConsume(ctx context.Context, token string) (*domain.TransferSession, error)
}

// Coordinator runs the scanning device's side of the protocol. At most one
// claim flow is in flight at a time; a second Claim while one is running
// fails fast with ErrBusy.
type Coordinator struct {
	scanner  ScanCapability
	sessions Claimer
	ident    identity.Provider

	mu   sync.Mutex
	busy bool
}

// NewCoordinator returns a Coordinator over the given device capabilities.
func NewCoordinator(scanner ScanCapability, sessions Claimer, ident identity.Provider) *Coordinator {
	return &Coordinator{scanner: scanner, sessions: sessions, ident: ident}
}

// Busy reports whether a claim flow is currently in progress.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Claim runs the whole flow: permission, scan, decode, consume, establish.
// Whatever the outcome, the coordinator is ready for another attempt when
// Claim returns.
func (c *Coordinator) Claim(ctx context.Context) (*identity.SessionHandle, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.busy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	if err := c.scanner.RequestPermission(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	raw, err := c.scanner.StartScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("consumer: scan: %w", err)
	}
	return c.ClaimPayload(ctx, raw)
}

// ClaimPayload claims a session from an already scanned payload. Exposed for
// transports that receive the payload out of band.
func (c *Coordinator) ClaimPayload(ctx context.Context, raw string) (*identity.SessionHandle, error) {
	payload, err := qr.Decode(raw)
	if err != nil {
		return nil, err
	}
	s, err := c.sessions.ValidateAndConsume(ctx, payload.Token)
	if err != nil {
		return nil, err
	}
	handle, err := c.ident.IssueIndependentSession(ctx, s.Credential)
	if err != nil {
		// The token is spent; the user must start over with a fresh code.
		return nil, err
	}
	return handle, nil
}
