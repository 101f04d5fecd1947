package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// streamMaxLen is the approximate cap on the opportunity stream (XADD MAXLEN ~).
const streamMaxLen int64 = 10000

// RedisConfig configures the Redis notifier. Empty Channel or Stream disables
// that half of the publication.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Stream   string
}

// Redis implements ports.Notifier by publishing every accepted opportunity as
// JSON on a pub/sub channel and appending it to a capped stream.
type Redis struct {
	rdb     *redis.Client
	channel string
	stream  string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("notify.NewRedis: ping %s: %w", cfg.Addr, err)
	}
	return &Redis{rdb: rdb, channel: cfg.Channel, stream: cfg.Stream}, nil
}

// Notify publishes each opportunity. Errors are joined so one bad publish does
// not hide the rest.
func (r *Redis) Notify(ctx context.Context, opportunities []domain.ArbitrageOpportunity) error {
	var errs []error
	for _, o := range opportunities {
		payload, err := json.Marshal(o)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal %s: %w", o.Pair, err))
			continue
		}

		if r.channel != "" {
			if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
				errs = append(errs, fmt.Errorf("publish %s: %w", r.channel, err))
			}
		}
		if r.stream != "" {
			err := r.rdb.XAdd(ctx, &redis.XAddArgs{
				Stream: r.stream,
				MaxLen: streamMaxLen,
				Approx: true,
				Values: []interface{}{"pair", o.Pair, "payload", payload},
			}).Err()
			if err != nil {
				errs = append(errs, fmt.Errorf("stream append %s: %w", r.stream, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify.Redis: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
