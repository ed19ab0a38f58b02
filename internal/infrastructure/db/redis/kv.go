package redisdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KVStore is a generic key-value store for storing JSON-encoded structs in Redis.
type KVStore[T any] struct {
	rdb    *redis.Client
	prefix string // e.g., "asset:"
}

func NewRedisKVStore[T any](rdb *redis.Client, prefix string) *KVStore[T] {
	return &KVStore[T]{rdb: rdb, prefix: prefix}
}

func (s *KVStore[T]) key(id string) string {
	return s.prefix + id
}

func (s *KVStore[T]) Get(ctx context.Context, id string) (*T, error) {
	return s.get(ctx, s.rdb, id)
}

func (s *KVStore[T]) Set(ctx context.Context, id string, value *T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(id), data, 0).Err()
}

func (s *KVStore[T]) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}

// Update runs fn on the current value of id inside an optimistic
// transaction and stores the result, or deletes the key if fn returns nil.
func (s *KVStore[T]) Update(
	ctx context.Context, id string, fn func(current *T) (*T, error),
) error {
	txf := func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}

		updated, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if updated == nil {
				pipe.Del(ctx, s.key(id))
				return nil
			}
			data, err := json.Marshal(updated)
			if err != nil {
				return err
			}
			pipe.Set(ctx, s.key(id), data, 0)
			return nil
		})
		return err
	}

	for range maxRetries {
		err := s.rdb.Watch(ctx, txf, s.key(id))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to update %s: too many conflicts", s.key(id))
}

func (s *KVStore[T]) get(ctx context.Context, rdb redis.Cmdable, id string) (*T, error) {
	val, err := rdb.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
