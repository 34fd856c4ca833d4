package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// streamBackend 是消费者对事件流的全部依赖
type streamBackend interface {
	EnsureGroup(ctx context.Context) error
	ReadNew(ctx context.Context, consumer string, count int64, block time.Duration) ([]redis.XMessage, error)
	// Pending 列出待确认消息；consumer 为空时列出整个消费者组
	Pending(ctx context.Context, consumer string, count int64) ([]redis.XPendingExt, error)
	Claim(ctx context.Context, consumer string, minIdle time.Duration, ids ...string) ([]redis.XMessage, error)
	Ack(ctx context.Context, ids ...string) error
	DeadLetter(ctx context.Context, values map[string]interface{}) error
	DeadLetterLen(ctx context.Context) (int64, error)
	GroupPending(ctx context.Context) (int64, error)
}

type redisBackend struct {
	client *redis.Client
	stream Stream
	group  ConsumerGroup
}

func newRedisBackend(client *redis.Client, stream Stream, group ConsumerGroup) *redisBackend {
	return &redisBackend{client: client, stream: stream, group: group}
}

func (b *redisBackend) EnsureGroup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, string(b.stream), string(b.group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (b *redisBackend) ReadNew(ctx context.Context, consumer string, count int64, block time.Duration) ([]redis.XMessage, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    string(b.group),
		Consumer: consumer,
		Streams:  []string{string(b.stream), ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []redis.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (b *redisBackend) Pending(ctx context.Context, consumer string, count int64) ([]redis.XPendingExt, error) {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(b.stream),
		Group:    string(b.group),
		Start:    "-",
		End:      "+",
		Count:    count,
		Consumer: consumer,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return pending, err
}

func (b *redisBackend) Claim(ctx context.Context, consumer string, minIdle time.Duration, ids ...string) ([]redis.XMessage, error) {
	return b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(b.stream),
		Group:    string(b.group),
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
}

func (b *redisBackend) Ack(ctx context.Context, ids ...string) error {
	return b.client.XAck(ctx, string(b.stream), string(b.group), ids...).Err()
}

func (b *redisBackend) DeadLetter(ctx context.Context, values map[string]interface{}) error {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream.DLQStream(),
		Values: values,
	}).Err()
}

func (b *redisBackend) DeadLetterLen(ctx context.Context) (int64, error) {
	return b.client.XLen(ctx, b.stream.DLQStream()).Result()
}

func (b *redisBackend) GroupPending(ctx context.Context) (int64, error) {
	groups, err := b.client.XInfoGroups(ctx, string(b.stream)).Result()
	if err != nil {
		return 0, err
	}
	for _, g := range groups {
		if g.Name == string(b.group) {
			return g.Pending, nil
		}
	}
	return 0, nil
}
