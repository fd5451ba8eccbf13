// Package notify carries transfer session change events from the store side to
// the producer coordinator: one logical channel per session token, mirroring a
// subscribe-by-filter row change feed.
package notify

import (
	"context"
	"time"
)

// Change describes a transfer session row change observed on the feed.
type Change struct {
	Token      string     `json:"token"`
	OwnerID    string     `json:"owner_id"`
	Consumed   bool       `json:"consumed"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// Handler receives a change for a subscribed token.
type Handler func(Change)

// UnsubscribeFunc tears down one subscription. Implementations must make it
// idempotent; coordinators may call it from several paths.
type UnsubscribeFunc func()

// Publisher emits changes onto the feed. Best-effort from the caller's view:
// a consume that cannot be announced is still a consume.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Subscriber opens a subscription for one token's changes.
type Subscriber interface {
	Subscribe(ctx context.Context, token string, onChange Handler) (UnsubscribeFunc, error)
}

// Broker is both ends of the feed.
type Broker interface {
	Publisher
	Subscriber
}
