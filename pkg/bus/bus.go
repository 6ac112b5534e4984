// Package bus carries notification events from the intake path to every
// instance's websocket hub. With redis configured the fan-out crosses
// instances; the local bus covers a single process.
package bus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"alert-service/internal/domain"
	"alert-service/pkg/hub"
)

// Channel is the redis pub/sub channel all instances share.
const Channel = "alerts.events"

// Bus publishes notification events and feeds received ones into a hub.
type Bus interface {
	PublishNew(ctx context.Context, n *domain.Notification) error
	PublishTransition(ctx context.Context, ev domain.TransitionEvent) error
	// Start blocks consuming events until ctx is cancelled.
	Start(ctx context.Context) error
}

// LocalBus dispatches straight into the hub. Single-instance deployments
// and tests.
type LocalBus struct {
	Hub *hub.Hub
}

func NewLocal(h *hub.Hub) *LocalBus { return &LocalBus{Hub: h} }

func (b *LocalBus) PublishNew(ctx context.Context, n *domain.Notification) error {
	b.Hub.RouteNew(n)
	return nil
}

func (b *LocalBus) PublishTransition(ctx context.Context, ev domain.TransitionEvent) error {
	b.Hub.BroadcastTransition(ev)
	return nil
}

func (b *LocalBus) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// RedisBus publishes envelopes on a shared pub/sub channel and routes the
// ones it receives (its own included) into the local hub. Delivery through
// the bus only, so a record is never pushed twice on one instance.
type RedisBus struct {
	rdb    *redis.Client
	hub    *hub.Hub
	logger *zap.Logger
}

func NewRedis(rdb *redis.Client, h *hub.Hub, logger *zap.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, hub: h, logger: logger}
}

func (b *RedisBus) PublishNew(ctx context.Context, n *domain.Notification) error {
	data, err := domain.NewEnvelope(domain.PushNew, n)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel, data).Err()
}

func (b *RedisBus) PublishTransition(ctx context.Context, ev domain.TransitionEvent) error {
	data, err := domain.NewEnvelope(ev.PushName(), ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel, data).Err()
}

// Start consumes the pub/sub channel until ctx is cancelled. go-redis
// resubscribes on connection loss; events published while disconnected are
// lost, which is fine: clients reconcile through the pull-fetch path.
func (b *RedisBus) Start(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("bus subscription closed")
			}
			b.dispatch([]byte(msg.Payload))
		}
	}
}

func (b *RedisBus) dispatch(data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.logger.Warn("bus: bad envelope", zap.Error(err))
		return
	}
	switch env.Event {
	case domain.PushNew:
		var n domain.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			b.logger.Warn("bus: bad notification", zap.Error(err))
			return
		}
		b.hub.RouteNew(&n)
	case domain.PushAck, domain.PushResolved:
		var ev domain.TransitionEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			b.logger.Warn("bus: bad transition", zap.Error(err))
			return
		}
		b.hub.BroadcastTransition(ev)
	default:
		b.logger.Warn("bus: unknown event", zap.String("event", env.Event))
	}
}
