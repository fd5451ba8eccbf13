package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "transfer:session:"

// RedisBroker implements Broker over Redis pub/sub with one channel per
// session token. Subscribers on other processes (the desktop's API node) see
// consumes performed on any node.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker returns a Broker using the given Redis client.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish sends the change as JSON on the token's channel.
func (b *RedisBroker) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+change.Token, payload).Err()
}

// Subscribe opens a Redis subscription on the token's channel and invokes
// onChange for each decoded message until unsubscribed. The returned func is
// idempotent and closes the underlying Redis subscription.
func (b *RedisBroker) Subscribe(ctx context.Context, token string, onChange Handler) (UnsubscribeFunc, error) {
	sub := b.client.Subscribe(ctx, channelPrefix+token)
	// Confirm the subscription before handing back control so a publish right
	// after Subscribe returns cannot be missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	msgs := sub.Channel()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					log.Printf("notify: bad change payload on %s: %v", msg.Channel, err)
					continue
				}
				onChange(change)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}, nil
}
