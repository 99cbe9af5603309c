package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	dominv "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
)

const componentRelay = "redis_relay"

// LocalBroadcaster receives updates relayed from any replica, this one included.
type LocalBroadcaster interface {
	BroadcastStock(ctx context.Context, e dominv.StockUpdatedEvent) error
}

type envelope struct {
	ProductID  string    `json:"productId"`
	NewStock   int       `json:"newStock"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Relay shares stock updates between replicas over a Redis pub/sub channel. Every
// replica publishes its own updates and feeds whatever arrives on the channel to its
// local observers.
type Relay struct {
	client  redis.UniversalClient
	channel string
	local   LocalBroadcaster
	log     observability.Logger
}

func NewRelay(client redis.UniversalClient, channel string, local LocalBroadcaster, logger observability.Logger) *Relay {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Relay{
		client:  client,
		channel: channel,
		local:   local,
		log:     logger.With(observability.F("component", componentRelay), observability.F("channel", channel)),
	}
}

func (r *Relay) BroadcastStock(ctx context.Context, e dominv.StockUpdatedEvent) error {
	payload, err := json.Marshal(envelope{ProductID: e.ProductID, NewStock: e.NewStock, OccurredAt: e.OccurredAt})
	if err != nil {
		return fmt.Errorf("redis relay: encode: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis relay: publish: %w", err)
	}
	return nil
}

// Run subscribes and forwards messages until ctx is done. It returns once the
// subscription is confirmed or fails; ready is closed at that point when non-nil.
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis relay: subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	r.log.Info("relay_subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay_stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis relay: subscription closed")
			}
			r.forward(ctx, msg)
		}
	}
}

func (r *Relay) forward(ctx context.Context, msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.log.Warn("relay_message_malformed", observability.F("error", err.Error()))
		return
	}
	e := dominv.StockUpdatedEvent{ProductID: env.ProductID, NewStock: env.NewStock, OccurredAt: env.OccurredAt}
	if err := r.local.BroadcastStock(ctx, e); err != nil {
		r.log.Warn("relay_local_broadcast_failed",
			observability.F("product_id", e.ProductID),
			observability.F("error", err.Error()),
		)
	}
}
