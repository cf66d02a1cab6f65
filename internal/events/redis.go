package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "verdict:case-events"

// RedisBus relays events through a Redis channel so that observers
// connected to any server process see every turn. Events are delivered to
// the local hub only when they come back from Redis, so each process
// delivers each event once.
type RedisBus struct {
	client  *redis.Client
	hub     *Hub
	channel string
	logger  *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewRedisBus(client *redis.Client, hub *Hub, logger *zap.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		hub:     hub,
		channel: DefaultChannel,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

func (b *RedisBus) SetChannel(channel string) {
	b.channel = channel
}

// OpenRedis parses a redis:// URL and verifies the server answers.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Publish sends evt to Redis. If Redis rejects it, the event still reaches
// local observers.
func (b *RedisBus) Publish(ctx context.Context, evt domain.CaseEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal case event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.hub.deliver(evt)
		return fmt.Errorf("publish case event: %w", err)
	}
	return nil
}

// Start subscribes to the channel and relays events into the hub in a
// background goroutine. It returns once the subscription is confirmed.
func (b *RedisBus) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { _ = pubsub.Close() }()

		b.logger.Info("case event relay started", zap.String("channel", b.channel))
		msgs := pubsub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					b.logger.Warn("case event relay channel closed")
					return
				}
				var evt domain.CaseEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.logger.Warn("dropping malformed case event", zap.Error(err))
					continue
				}
				b.hub.deliver(evt)
			case <-b.stopCh:
				b.logger.Info("case event relay stopped")
				return
			}
		}
	}()
	return nil
}

// Stop ends the relay and waits for it to exit.
func (b *RedisBus) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}
