package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"chatcore/internal/service"
)

type originKey struct{}

// WithOriginSession marks ctx as acting on behalf of a websocket session.
// Broadcasts caused by that request skip the originating session, which
// already has the result, while the user's other devices still receive it.
func WithOriginSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, sessionID)
}

func originSession(ctx context.Context) string {
	id, _ := ctx.Value(originKey{}).(string)
	return id
}

// envelope is what travels through the relay: the encoded event plus its
// audience.
type envelope struct {
	Recipients []int64         `json:"recipients"`
	Origin     string          `json:"origin,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

type relay interface {
	Publish(ctx context.Context, env envelope) error
	Run(ctx context.Context, ready chan<- struct{}) error
}

// Broadcaster delivers service events to connected sessions, either directly
// through the local hub or through a relay shared by every node.
type Broadcaster struct {
	hub *Hub

	mu    sync.RWMutex
	relay relay
}

var _ service.Broadcaster = (*Broadcaster)(nil)

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// WithRelay routes broadcasts through r; the relay's subscriber, started by
// RunRelay, delivers them to the local hub.
func (b *Broadcaster) WithRelay(r *RedisRelay) *Broadcaster {
	b.setRelay(r)
	return b
}

// RunRelay runs the relay subscriber until ctx is done. If the subscription
// ends while ctx is still live, the relay is detached and broadcasts go to
// the local hub from then on; the subscriber's error is returned.
func (b *Broadcaster) RunRelay(ctx context.Context, ready chan<- struct{}) error {
	r := b.currentRelay()
	if r == nil {
		return errors.New("no relay configured")
	}
	err := r.Run(ctx, ready)
	if ctx.Err() != nil {
		return nil
	}
	b.setRelay(nil)
	if err == nil {
		err = errors.New("relay subscription ended")
	}
	return err
}

func (b *Broadcaster) setRelay(r relay) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = r
}

func (b *Broadcaster) currentRelay() relay {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.relay
}

func (b *Broadcaster) Broadcast(ctx context.Context, ev service.Event) error {
	if len(ev.Recipients) == 0 {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	env := envelope{Recipients: ev.Recipients, Origin: originSession(ctx), Payload: payload}
	if r := b.currentRelay(); r != nil {
		return r.Publish(ctx, env)
	}
	b.hub.Deliver(env.Recipients, env.Payload, env.Origin)
	return nil
}
