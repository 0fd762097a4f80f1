package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "companion:events"

// RedisPublisher publishes events as JSON on a Redis pub/sub channel so other
// processes (UI gateways, recorders) can follow the assistant.
type RedisPublisher struct {
	rdb     *goredis.Client
	channel string
	timeout time.Duration
	log     *zap.Logger
}

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(rdb *goredis.Client, channel string, log *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, channel: channel, timeout: 2 * time.Second, log: log.Named("redis")}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, channel string, log *zap.Logger) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis: empty address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisPublisher(rdb, channel, log), nil
}

// Notify publishes ev. Failures are logged, never returned.
func (p *RedisPublisher) Notify(ctx context.Context, ev Event) {
	if err := p.Publish(ctx, ev); err != nil {
		p.log.Warn("publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// Publish encodes and publishes ev, bounded by the publisher's timeout.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis publisher not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

// Forward subscribes to the channel and hands decoded events to onEvent until ctx ends.
// It returns once the subscription is confirmed.
func (p *RedisPublisher) Forward(ctx context.Context, onEvent func(Event)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := p.rdb.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		p.pump(ctx, sub.Channel(), onEvent)
	}()
	return nil
}

// pump decodes messages from ch until ctx ends or ch closes. Undecodable
// payloads are logged and skipped.
func (p *RedisPublisher) pump(ctx context.Context, ch <-chan *goredis.Message, onEvent func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				p.log.Warn("bad event payload", zap.Error(err))
				continue
			}
			onEvent(ev)
		}
	}
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
