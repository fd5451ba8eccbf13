// Package producer drives the displaying side of the handoff: it issues a
// transfer session, renders the scannable code, rotates the token before it
// expires, and reports exactly once when another device consumes it.
package producer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"foxtrail/handoff/internal/identity"
	"foxtrail/handoff/internal/transfer/domain"
	"foxtrail/handoff/internal/transfer/notify"
	"foxtrail/handoff/internal/transfer/qr"
)

// SessionSource is the slice of the session manager the coordinator needs.
type SessionSource interface {
	Create(ctx context.Context, ownerID, credential string) (*domain.TransferSession, error)
	Refresh(ctx context.Context, ownerID, credential string) (*domain.TransferSession, error)
	Invalidate(ctx context.Context, ownerID string) error
	CleanupExpired(ctx context.Context, ownerID string)
}

// Display is what the UI shows for the current token.
type Display struct {
	SessionToken string
	QRDataURL    string
	ExpiresAt    time.Time
}

// CompletionHandler runs exactly once, when the displayed session has been
// consumed on another device.
type CompletionHandler func(notify.Change)

// refreshLead is how long before expiry the coordinator rotates the token,
// so the displayed code is never within a scan of going stale.
const refreshLead = 30 * time.Second

// Coordinator owns one display's session lifecycle. It holds at most one
// feed subscription at a time; rotating the token swaps the subscription
// before the new code is shown.
type Coordinator struct {
	sessions   SessionSource
	feed       notify.Subscriber
	renderer   qr.Renderer
	creds      identity.CredentialSource
	ownerID    string
	onConsumed CompletionHandler

	// countdownF returns a channel that fires when the rotation deadline
	// passes. Injected by tests.
	countdownF func(time.Duration) <-chan time.Time
	nowF       func() time.Time

	mu          sync.Mutex
	current     *domain.TransferSession
	unsubscribe notify.UnsubscribeFunc
	consumed    bool
	closed      bool
	done        chan struct{}
	doneOnce    sync.Once
	completeOne sync.Once
	closeOne    sync.Once
}

// stop closes done exactly once; both completion and Close reach here.
func (c *Coordinator) stop() {
	c.doneOnce.Do(func() { close(c.done) })
}

// NewCoordinator returns a Coordinator for one owner's display. onConsumed
// may be nil.
func NewCoordinator(
	sessions SessionSource,
	feed notify.Subscriber,
	renderer qr.Renderer,
	creds identity.CredentialSource,
	ownerID string,
	onConsumed CompletionHandler,
) *Coordinator {
	return &Coordinator{
		sessions:   sessions,
		feed:       feed,
		renderer:   renderer,
		creds:      creds,
		ownerID:    ownerID,
		onConsumed: onConsumed,
		countdownF: func(d time.Duration) <-chan time.Time { return time.After(d) },
		nowF:       func() time.Time { return time.Now().UTC() },
		done:       make(chan struct{}),
	}
}

// Start issues the first session, subscribes to its change feed, and kicks
// off the rotation loop. Returns what the UI should display.
func (c *Coordinator) Start(ctx context.Context) (*Display, error) {
	credential, err := c.creds.CurrentCredential(ctx)
	if err != nil {
		return nil, err
	}
	s, err := c.sessions.Create(ctx, c.ownerID, credential)
	if err != nil {
		return nil, err
	}
	display, err := c.install(ctx, s)
	if err != nil {
		return nil, err
	}
	go c.run(ctx)
	return display, nil
}

// Display returns the current code, or nil once consumed or closed.
func (c *Coordinator) Display() *Display {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.consumed || c.closed {
		return nil
	}
	d, err := c.render(c.current)
	if err != nil {
		return nil
	}
	return d
}

// Close tears the display down: the subscription is dropped, the session is
// invalidated, and lapsed rows are cleaned up. Idempotent.
func (c *Coordinator) Close(ctx context.Context) {
	c.closeOne.Do(func() {
		c.mu.Lock()
		c.closed = true
		unsub := c.unsubscribe
		c.unsubscribe = nil
		consumed := c.consumed
		c.mu.Unlock()
		c.stop()
		if unsub != nil {
			unsub()
		}
		if !consumed {
			if err := c.sessions.Invalidate(ctx, c.ownerID); err != nil {
				log.Printf("producer: invalidate on close for owner %s: %v", c.ownerID, err)
			}
		}
		c.sessions.CleanupExpired(ctx, c.ownerID)
	})
}

// install swaps the coordinator onto a freshly issued session: old feed
// subscription out, new one in, under one lock so no change can slip between.
func (c *Coordinator) install(ctx context.Context, s *domain.TransferSession) (*Display, error) {
	unsub, err := c.feed.Subscribe(ctx, s.SessionToken, c.handleChange)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.consumed || c.closed {
		// Consumption beat us here; the fresh session must not be shown.
		c.mu.Unlock()
		unsub()
		return nil, context.Canceled
	}
	old := c.unsubscribe
	c.unsubscribe = unsub
	c.current = s
	c.mu.Unlock()
	if old != nil {
		old()
	}
	return c.render(s)
}

func (c *Coordinator) render(s *domain.TransferSession) (*Display, error) {
	payload, err := qr.Encode(s.SessionToken, c.nowF())
	if err != nil {
		return nil, err
	}
	png, err := c.renderer.Render(payload)
	if err != nil {
		return nil, err
	}
	return &Display{
		SessionToken: s.SessionToken,
		QRDataURL:    qr.DataURL(png),
		ExpiresAt:    s.ExpiresAt,
	}, nil
}

// run rotates the token shortly before each expiry until the session is
// consumed or the coordinator is closed.
func (c *Coordinator) run(ctx context.Context) {
	for {
		c.mu.Lock()
		s := c.current
		c.mu.Unlock()
		if s == nil {
			return
		}
		wait := s.ExpiresAt.Sub(c.nowF()) - refreshLead
		if wait < 0 {
			wait = 0
		}
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-c.countdownF(wait):
			if !c.rotate(ctx) {
				return
			}
		}
	}
}

// rotate refreshes the session and installs the replacement. Returns false
// when the loop should stop. A consumption that lands while the refresh is
// in flight wins: the fresh token is discarded.
func (c *Coordinator) rotate(ctx context.Context) bool {
	c.mu.Lock()
	if c.consumed || c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()
	credential, err := c.creds.CurrentCredential(ctx)
	if err != nil {
		log.Printf("producer: current credential for owner %s: %v", c.ownerID, err)
		return true
	}
	s, err := c.sessions.Refresh(ctx, c.ownerID, credential)
	if err != nil {
		log.Printf("producer: refresh for owner %s: %v", c.ownerID, err)
		return true
	}
	if _, err := c.install(ctx, s); err != nil {
		if errors.Is(err, context.Canceled) {
			// Consumption or Close won while the refresh was in flight.
			return false
		}
		log.Printf("producer: install refreshed session for owner %s: %v", c.ownerID, err)
		return true
	}
	return true
}

// handleChange reacts to a change on the subscribed token. Only a consumed
// change matters; it completes the handoff exactly once.
func (c *Coordinator) handleChange(change notify.Change) {
	if !change.Consumed {
		return
	}
	c.mu.Lock()
	if c.closed || c.consumed || c.current == nil || c.current.SessionToken != change.Token {
		c.mu.Unlock()
		return
	}
	c.consumed = true
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	c.completeOne.Do(func() {
		c.stop()
		if unsub != nil {
			unsub()
		}
		if c.onConsumed != nil {
			c.onConsumed(change)
		}
	})
}
