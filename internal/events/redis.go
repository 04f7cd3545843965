package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis publisher.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration

	// PublishTimeout bounds each asynchronous publish
	PublishTimeout time.Duration
	// AsyncBufferSize bounds queued async events (default: 1000)
	AsyncBufferSize int
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	if out.PublishTimeout <= 0 {
		out.PublishTimeout = 2 * time.Second
	}
	if out.AsyncBufferSize <= 0 {
		out.AsyncBufferSize = 1000
	}
	return out
}

// redisClient is the subset of *redis.Client the publisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

type asyncItem struct {
	event   Event
	flushed chan struct{}
}

// RedisPublisher publishes events as JSON on Redis pub/sub channels named
// after the event subject.
type RedisPublisher struct {
	client redisClient
	cfg    RedisConfig

	asyncCh  chan asyncItem
	loopDone chan struct{}

	closedMu sync.RWMutex
	closed   bool

	publishCount atomic.Int64
	errorCount   atomic.Int64
	asyncDropped atomic.Int64
}

// NewRedisPublisher connects to Redis and validates connectivity via PING.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	slog.Info("[Events] Redis publisher connected", "addr", cfg.Addr)
	return newRedisPublisher(rdb, cfg), nil
}

func newRedisPublisher(client redisClient, cfg RedisConfig) *RedisPublisher {
	cfg = cfg.withDefaults()
	p := &RedisPublisher{
		client:   client,
		cfg:      cfg,
		asyncCh:  make(chan asyncItem, cfg.AsyncBufferSize),
		loopDone: make(chan struct{}),
	}
	go p.asyncLoop()
	return p
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := MarshalEvent(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Type(), err)
	}
	if err := p.client.Publish(ctx, event.Subject(), data).Err(); err != nil {
		p.errorCount.Add(1)
		return fmt.Errorf("redis publish %s: %w", event.Subject(), err)
	}
	p.publishCount.Add(1)
	return nil
}

func (p *RedisPublisher) PublishAsync(event Event) {
	p.closedMu.RLock()
	defer p.closedMu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.asyncCh <- asyncItem{event: event}:
	default:
		if p.asyncDropped.Add(1) == 1 {
			slog.Warn("[Events] Redis async buffer full, dropping events")
		}
	}
}

func (p *RedisPublisher) asyncLoop() {
	defer close(p.loopDone)
	for item := range p.asyncCh {
		if item.flushed != nil {
			close(item.flushed)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
		if err := p.Publish(ctx, item.event); err != nil {
			slog.Warn("[Events] Redis publish failed", "error", err)
		}
		cancel()
	}
}

// Flush waits until every event queued before the call has been published.
func (p *RedisPublisher) Flush(ctx context.Context) error {
	p.closedMu.RLock()
	if p.closed {
		p.closedMu.RUnlock()
		return nil
	}
	marker := asyncItem{flushed: make(chan struct{})}
	select {
	case p.asyncCh <- marker:
	case <-ctx.Done():
		p.closedMu.RUnlock()
		return ctx.Err()
	}
	p.closedMu.RUnlock()

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *RedisPublisher) Close() error {
	p.closedMu.Lock()
	if p.closed {
		p.closedMu.Unlock()
		return nil
	}
	p.closed = true
	close(p.asyncCh)
	p.closedMu.Unlock()

	<-p.loopDone
	slog.Info("[Events] Redis publisher closed",
		"published", p.publishCount.Load(),
		"errors", p.errorCount.Load(),
		"dropped", p.asyncDropped.Load(),
	)
	return p.client.Close()
}

// Stats returns publish, error and drop counters.
func (p *RedisPublisher) Stats() (published, errors, dropped int64) {
	return p.publishCount.Load(), p.errorCount.Load(), p.asyncDropped.Load()
}
