package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lobbysim/eventpipe/internal/events"
)

// fallbackKey is used when an envelope carries no session id. Such
// envelopes still land on the topic but get no per-session ordering.
const fallbackKey = "unknown"

// Publisher publishes a validated batch to the durable topic and
// returns how many envelopes were written. Errors surface to the
// ingress, which does not retry; retry responsibility lives entirely
// with the client publisher.
type Publisher interface {
	PublishBatch(ctx context.Context, batch []events.Envelope) (int, error)
	Ping(ctx context.Context) error
}

// RedisStream publishes every envelope to a single Redis stream. The
// message key is the session id, so any consumer reading the stream
// observes one session's events in emission order.
type RedisStream struct {
	client *redis.Client
	stream string
}

// NewRedisStream connects once, best-effort, with no retry. A broker
// that is down at startup is reported to the caller, which may choose
// to run without one.
func NewRedisStream(addr, password string, db int, stream string) (*RedisStream, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect broker: %w", err)
	}

	return &RedisStream{client: client, stream: stream}, nil
}

// PublishBatch appends envelopes to the stream in batch order. On a
// mid-batch error it returns how many made it.
func (r *RedisStream) PublishBatch(ctx context.Context, batch []events.Envelope) (int, error) {
	published := 0
	for _, envelope := range batch {
		value, err := json.Marshal(envelope)
		if err != nil {
			return published, fmt.Errorf("encode envelope %s: %w", envelope.EventID, err)
		}

		key := envelope.SessionID
		if key == "" {
			key = fallbackKey
		}

		err = r.client.XAdd(ctx, &redis.XAddArgs{
			Stream: r.stream,
			Values: map[string]any{
				"key":   key,
				"event": string(value),
			},
		}).Err()
		if err != nil {
			return published, fmt.Errorf("publish envelope %s: %w", envelope.EventID, err)
		}
		published++
	}
	return published, nil
}

// Ping is used by the readiness endpoint.
func (r *RedisStream) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *RedisStream) Close() error {
	return r.client.Close()
}
