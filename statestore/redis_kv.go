package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Put implements KVStore over a plain Redis SET/EXPIRE, the same pipelined
// SET-with-TTL idiom Save uses for the monolithic ConversationState blob.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Get implements KVStore over a plain Redis GET.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return data, true, nil
}

// AppendBoundedList implements KVStore over RPUSH + LTRIM, the same bounded
// rolling-list pattern AppendMessages/SaveSummary already use for turns and
// summaries — here generalized to any key (entities_index, in practice).
func (s *RedisStore) AppendBoundedList(ctx context.Context, key string, value []byte, cap int) error {
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, value)
	if cap > 0 {
		pipe.LTrim(ctx, key, int64(-cap), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// ListHead implements KVStore over LRANGE, returning the n most recently
// appended entries, oldest-first (mirroring LoadRecentMessages' use of
// LRANGE with negative indices).
func (s *RedisStore) ListHead(ctx context.Context, key string, n int) ([][]byte, error) {
	start, stop := int64(0), int64(-1)
	if n > 0 {
		start = int64(-n)
	}
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}
