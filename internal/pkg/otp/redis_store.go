package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	RedisKeyPrefix = "pmb:otp:"

	defaultTxRetries = 5
)

var errContention = errors.New("otp: key is contended, giving up")

// RedisStore keeps challenges as JSON strings whose Redis TTL matches ExpiresAt.
// Mutations run as WATCH/MULTI transactions and retry on conflicts.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	retries int
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  RedisKeyPrefix,
		retries: defaultTxRetries,
	}
}

func (s *RedisStore) Mutate(ctx context.Context, key string, fn Mutation) error {
	redisKey := s.prefix + key
	var result error

	txf := func(tx *redis.Tx) error {
		current, err := s.read(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		next, fnErr := fn(current)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, redisKey)
				return nil
			}
			ttl := time.Until(next.ExpiresAt)
			if ttl <= 0 {
				pipe.Del(ctx, redisKey)
				return nil
			}
			data, err := json.Marshal(next)
			if err != nil {
				return err
			}
			pipe.Set(ctx, redisKey, data, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = fnErr
		return nil
	}

	for i := 0; i < s.retries; i++ {
		err := s.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return result
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("otp redis mutate: %w", err)
	}
	return errContention
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Challenge, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("otp redis get: %w", err)
	}
	return decodeChallenge(data)
}

func (s *RedisStore) read(ctx context.Context, tx *redis.Tx, redisKey string) (*Challenge, error) {
	data, err := tx.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeChallenge(data)
}

func decodeChallenge(data []byte) (*Challenge, error) {
	var ch Challenge
	if err := json.Unmarshal(data, &ch); err != nil {
		// A corrupt entry is treated as absent and overwritten by the next issue.
		return nil, nil
	}
	return &ch, nil
}
