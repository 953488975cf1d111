package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

const (
	positionChannelPrefix = "positions:"
	recalcChannel         = "route-recalc"
)

// PositionChannelName returns the pub/sub channel carrying an entity's positions.
func PositionChannelName(entityID string) string {
	return positionChannelPrefix + entityID
}

// PositionChannel is the push channel over Redis pub/sub. go-redis re-establishes
// dropped subscriptions on its own; messages published while disconnected are
// lost and picked up by the poll channel instead.
type PositionChannel struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewPositionChannel creates a PositionChannel wrapping the given Redis client.
func NewPositionChannel(client *redis.Client, log zerolog.Logger) *PositionChannel {
	return &PositionChannel{client: client, log: log}
}

// Publish sends rec to the entity's channel.
func (c *PositionChannel) Publish(ctx context.Context, rec domain.PositionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	if err := c.client.Publish(ctx, PositionChannelName(rec.EntityID), payload).Err(); err != nil {
		return fmt.Errorf("publish position: %w", err)
	}
	return nil
}

// Subscribe delivers every record published for entityID to fn until the
// returned function is called or ctx is cancelled.
func (c *PositionChannel) Subscribe(ctx context.Context, entityID string, fn func(domain.PositionRecord)) (func(), error) {
	pubsub := c.client.Subscribe(ctx, PositionChannelName(entityID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", entityID, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			var rec domain.PositionRecord
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				c.log.Debug().Err(err).Str("entity_id", entityID).Msg("malformed position message ignored")
				continue
			}
			fn(rec)
		}
	}()

	stopCtx, stop := context.WithCancel(ctx)
	go func() {
		<-stopCtx.Done()
		_ = pubsub.Close()
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			<-done
		})
	}, nil
}

// RecalculationPublisher announces recalculation requests to the route planner.
type RecalculationPublisher struct {
	client *redis.Client
}

// NewRecalculationPublisher creates a RecalculationPublisher wrapping the given Redis client.
func NewRecalculationPublisher(client *redis.Client) *RecalculationPublisher {
	return &RecalculationPublisher{client: client}
}

// NotifyRecalculation publishes evt on the route-recalc channel.
func (p *RecalculationPublisher) NotifyRecalculation(ctx context.Context, evt domain.RecalculationEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode recalculation: %w", err)
	}
	return p.client.Publish(ctx, recalcChannel, payload).Err()
}
