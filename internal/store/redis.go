package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisMaxAttempts = 5

// RedisBackend keeps each namespace value in a plain string key. Writes use
// optimistic WATCH/MULTI transactions over the namespace keys.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to Redis at addr and returns a store on top of it.
func OpenRedis(ctx context.Context, addr, password string, db int, opts ...Option) (*KVStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return New(NewRedisBackend(client, ""), opts...), nil
}

// NewRedisBackend wraps client. All keys are stored under prefix.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) View(ctx context.Context, fn func(tx Tx) error) error {
	return fn(&redisTx{ctx: ctx, reader: b.client, prefix: b.prefix})
}

func (b *RedisBackend) Update(ctx context.Context, fn func(tx Tx) error) error {
	watched := []string{
		b.prefix + PagesKey,
		b.prefix + AnalyticsKey,
		b.prefix + CredentialKey,
	}

	for attempt := 0; attempt < redisMaxAttempts; attempt++ {
		err := b.client.Watch(ctx, func(rtx *redis.Tx) error {
			t := &redisTx{ctx: ctx, reader: rtx, prefix: b.prefix, writes: map[string][]byte{}}
			if err := fn(t); err != nil {
				return err
			}
			if len(t.writes) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for key, value := range t.writes {
					pipe.Set(ctx, key, value, 0)
				}
				return nil
			})
			return err
		}, watched...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction conflicted %d times", redisMaxAttempts)
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

type redisReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type redisTx struct {
	ctx    context.Context
	reader redisReader
	prefix string
	// writes is nil for read-only transactions.
	writes map[string][]byte
}

func (t *redisTx) Get(key string) ([]byte, error) {
	key = t.prefix + key
	if v, ok := t.writes[key]; ok {
		return v, nil
	}
	data, err := t.reader.Get(t.ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (t *redisTx) Put(key string, value []byte) error {
	if t.writes == nil {
		return errReadOnly
	}
	t.writes[t.prefix+key] = value
	return nil
}
