package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"socialpub/internal/observability"
)

// channelFor names the Redis pub/sub channel carrying one job's frames.
func channelFor(jobID string) string {
	return "publish:job:" + jobID
}

// RedisBroadcaster delivers frames over Redis pub/sub so a subscriber on
// any instance can follow a job running on another.
type RedisBroadcaster struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	closed bool
	subs   map[*redis.PubSub]struct{}
	wg     sync.WaitGroup
}

// NewRedisBroadcaster creates a broadcaster over the given Redis client.
// Metrics may be nil.
func NewRedisBroadcaster(client redis.UniversalClient, metrics *observability.Metrics) *RedisBroadcaster {
	return &RedisBroadcaster{
		client:  client,
		logger:  slog.With("component", "broadcast"),
		metrics: metrics,
		subs:    make(map[*redis.PubSub]struct{}),
	}
}

// Publish marshals the frame and publishes it on the job's channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, jobID string, f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := b.client.Publish(ctx, channelFor(jobID), payload).Err(); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	if b.metrics != nil {
		b.metrics.RecordFramePublished(ctx)
	}
	return nil
}

// Subscribe opens a Redis subscription on the job's channel and decodes
// incoming frames. Undecodable payloads are logged and skipped.
func (b *RedisBroadcaster) Subscribe(jobID string) (<-chan Frame, func()) {
	out := make(chan Frame, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(out)
		return out, func() {}
	}
	pubsub := b.client.Subscribe(context.Background(), channelFor(jobID))
	b.subs[pubsub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer close(out)
		for msg := range pubsub.Channel() {
			var f Frame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				b.logger.Warn("Dropping undecodable frame", "jobId", jobID, "error", err)
				continue
			}
			select {
			case out <- f:
			default:
				if b.metrics != nil {
					b.metrics.RecordFrameDropped(context.Background())
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, pubsub)
			b.mu.Unlock()
			if err := pubsub.Close(); err != nil {
				b.logger.Warn("Closing subscription failed", "jobId", jobID, "error", err)
			}
		})
	}
	return out, cancel
}

// Close tears down all subscriptions. The underlying Redis client is owned
// by the caller and stays open.
func (b *RedisBroadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	open := make([]*redis.PubSub, 0, len(b.subs))
	for ps := range b.subs {
		open = append(open, ps)
	}
	b.subs = make(map[*redis.PubSub]struct{})
	b.mu.Unlock()

	for _, ps := range open {
		if err := ps.Close(); err != nil {
			b.logger.Warn("Closing subscription failed", "error", err)
		}
	}
	b.wg.Wait()
}

var _ Broadcaster = (*RedisBroadcaster)(nil)
