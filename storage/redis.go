package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Redis stores a tab's keys under prefix:tab: in a shared Redis and publishes
// change events on prefix:storage-events, so tabs living in different
// processes observe each other the way browser tabs do.
type Redis struct {
	client  *redis.Client
	prefix  string
	tab     string
	channel string
	logger  zerolog.Logger
}

var (
	_ Storage = (*Redis)(nil)
	_ Watcher = (*Redis)(nil)
)

func NewRedis(client *redis.Client, prefix, tab string) *Redis {
	return &Redis{
		client:  client,
		prefix:  prefix,
		tab:     tab,
		channel: prefix + ":storage-events",
		logger:  log.Logger.With().Str("component", "storage-redis").Str("tab", tab).Logger(),
	}
}

// ID identifies the tab in change events
func (r *Redis) ID() string {
	return r.tab
}

func (r *Redis) key(key string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, r.tab, key)
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("[Redis Get] %w", err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	old, err := r.client.SetArgs(ctx, r.key(key), value, redis.SetArgs{Get: true}).Result()
	existed := true
	if errors.Is(err, redis.Nil) {
		existed = false
	} else if err != nil {
		return fmt.Errorf("[Redis Set] %w", err)
	}

	if existed && old == value {
		return nil
	}
	r.publish(ctx, []ChangeEvent{{Key: key, Source: r.tab, At: time.Now()}})
	return nil
}

func (r *Redis) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	gets := make([]*redis.StringCmd, len(keys))
	full := make([]string, len(keys))
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			full[i] = r.key(key)
			gets[i] = pipe.Get(ctx, full[i])
		}
		pipe.Del(ctx, full...)
		return nil
	})
	// a missing key surfaces as redis.Nil from its GET inside the transaction
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("[Redis Remove] %w", err)
	}

	var events []ChangeEvent
	for i, key := range keys {
		if gets[i].Err() != nil {
			continue
		}
		events = append(events, ChangeEvent{Key: key, Removed: true, Source: r.tab, At: time.Now()})
	}
	r.publish(ctx, events)
	return nil
}

func (r *Redis) publish(ctx context.Context, events []ChangeEvent) {
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			r.logger.Error().Err(err).Str("key", ev.Key).Msg("failed to encode storage event")
			continue
		}
		if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
			r.logger.Error().Err(err).Str("key", ev.Key).Msg("failed to publish storage event")
		}
	}
}

// Watch subscribes to the origin channel and returns once the subscription
// is confirmed, so no event published afterwards is missed.
func (r *Redis) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("[Redis Watch] failed to subscribe: %w", err)
	}

	messages := pubsub.Channel()
	out := make(chan ChangeEvent, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.Warn().Err(err).Msg("ignoring malformed storage event")
					continue
				}
				if ev.Source == r.tab {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
