package game

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "cubomatch:state"

// RedisPublisher mirrors every snapshot to a Redis pub/sub channel so remote
// scoreboards can follow the competition. Nothing is stored under a key.
// Snapshots are dropped while the queue is full; only the newest matters.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	log     *slog.Logger
	timeout time.Duration

	queue chan []byte
}

func NewRedisPublisher(rdb *redis.Client, channel string, log *slog.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisPublisher{
		rdb:     rdb,
		channel: channel,
		log:     log,
		timeout: 2 * time.Second,
		queue:   make(chan []byte, 16),
	}
}

func (p *RedisPublisher) Publish(payload []byte) {
	select {
	case p.queue <- payload:
	default:
	}
}

// Run drains the queue until ctx is cancelled.
func (p *RedisPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-p.queue:
			pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
			err := p.rdb.Publish(pubCtx, p.channel, b).Err()
			cancel()
			if err != nil {
				p.log.Warn("redis publish failed", "channel", p.channel, "err", err)
			}
		}
	}
}
