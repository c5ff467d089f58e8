// Package eventrelay fans confirmed follow and preference changes out to the
// other instances of the service over Redis pub/sub, so their caches
// converge. Delivery is best effort; the store stays authoritative and a
// missed message leaves a remote cache stale until the entry expires (see
// cache_ttl) and is reloaded.
package eventrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dalemusser/alerthub/internal/app/subscriptions"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Applier applies changes received from other instances.
type Applier interface {
	ApplyRemote(ch subscriptions.Change)
}

type envelope struct {
	Origin string               `json:"origin"`
	Change subscriptions.Change `json:"change"`
}

// Relay publishes local changes and applies remote ones.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	log     *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// New returns a relay on channel. Each relay gets a random origin id so it
// can skip its own messages.
func New(client *redis.Client, channel string, logger *zap.Logger) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		log:     logger,
	}
}

// Publish sends ch to the other instances.
func (r *Relay) Publish(ctx context.Context, ch subscriptions.Change) error {
	payload, err := encode(r.origin, ch)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Start subscribes and applies remote changes until Stop. It returns once
// the subscription is confirmed by the server.
func (r *Relay) Start(ctx context.Context, applier Applier) error {
	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	r.mu.Lock()
	r.pubsub = ps
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for msg := range ps.Channel() {
			ch, ok, err := decode(r.origin, msg.Payload)
			if err != nil {
				r.log.Warn("dropping malformed relay message", zap.Error(err))
				continue
			}
			if ok {
				applier.ApplyRemote(ch)
			}
		}
	}()

	r.log.Info("change relay started",
		zap.String("channel", r.channel),
		zap.String("origin", r.origin))
	return nil
}

// Stop closes the subscription and waits for the receive loop to exit.
func (r *Relay) Stop() {
	r.mu.Lock()
	ps := r.pubsub
	r.pubsub = nil
	r.mu.Unlock()
	if ps == nil {
		return
	}
	if err := ps.Close(); err != nil {
		r.log.Warn("closing relay subscription failed", zap.Error(err))
	}
	r.wg.Wait()
	r.log.Info("change relay stopped")
}

func encode(origin string, ch subscriptions.Change) (string, error) {
	b, err := json.Marshal(envelope{Origin: origin, Change: ch})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decode parses a relay message. ok is false for messages this relay sent
// itself.
func decode(origin, payload string) (subscriptions.Change, bool, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return subscriptions.Change{}, false, err
	}
	switch env.Change.Kind {
	case subscriptions.ChangeFollow, subscriptions.ChangePreference:
	default:
		return subscriptions.Change{}, false, fmt.Errorf("unknown change kind %q", env.Change.Kind)
	}
	if env.Origin == origin {
		return subscriptions.Change{}, false, nil
	}
	return env.Change, true, nil
}
