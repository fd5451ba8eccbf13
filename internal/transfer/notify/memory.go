package notify

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker for dev mode and tests. Handlers run
// synchronously on the publishing goroutine.
type MemoryBroker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]Handler // token -> subscription id -> handler
}

// NewMemoryBroker returns an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[int]Handler)}
}

// Publish delivers the change to every handler subscribed to its token.
func (b *MemoryBroker) Publish(ctx context.Context, change Change) error {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[change.Token]))
	for _, h := range b.subs[change.Token] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	// Called outside the lock so a handler may unsubscribe itself.
	for _, h := range handlers {
		h(change)
	}
	return nil
}

// Subscribe registers onChange for the token and returns an idempotent unsubscribe.
func (b *MemoryBroker) Subscribe(ctx context.Context, token string, onChange Handler) (UnsubscribeFunc, error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[token] == nil {
		b.subs[token] = make(map[int]Handler)
	}
	b.subs[token][id] = onChange
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[token], id)
			if len(b.subs[token]) == 0 {
				delete(b.subs, token)
			}
		})
	}, nil
}

// SubscriberCount reports active subscriptions for a token. Test hook.
func (b *MemoryBroker) SubscriberCount(token string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[token])
}
