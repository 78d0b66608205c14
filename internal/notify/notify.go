// Package notify publishes job lifecycle events so downstream services can
// react to finished recordings without polling the API.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel lifecycle events land on unless
// configured otherwise.
const DefaultChannel = "bitriver:vod:jobs"

// Event describes one job reaching a terminal state.
type Event struct {
	JobID      string `json:"jobId"`
	StreamID   string `json:"streamId"`
	EventID    string `json:"eventId"`
	Status     string `json:"status"`
	OutputPath string `json:"outputPath,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Publisher delivers lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client     *redis.Client
	channel    string
	retryDelay time.Duration
}

// RedisOptions configures a RedisPublisher. Addr is required.
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	Channel  string
	// RetryDelay is the pause before the single retry of a failed publish.
	RetryDelay time.Duration
}

func NewRedisPublisher(opts RedisOptions) (*RedisPublisher, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 250 * time.Millisecond
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
	})
	return &RedisPublisher{
		client:     client,
		channel:    channel,
		retryDelay: retryDelay,
	}, nil
}

// Ping verifies the connection. The health endpoint reports its outcome.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Publish sends the event, retrying once after a short pause on failure.
// Delivery is at-most-once: a second failure is returned to the caller and
// never affects the job's status.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.retryDelay):
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// MemoryPublisher records events in process. Tests and redis-less deployments
// use it in place of the Redis publisher.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *MemoryPublisher) Close() error {
	return nil
}
