package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const attemptKeyPrefix = "login:attempts:"

// RedisThrottle は失敗記録を Redis に保存する Throttle です。
// 複数プロセスで同じ制限を共有できます。
type RedisThrottle struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisThrottle は RedisThrottle を作成します。
func NewRedisThrottle(rdb *redis.Client) *RedisThrottle {
	return &RedisThrottle{rdb: rdb, now: time.Now}
}

// NewRedisThrottleFromURL は redis:// 形式の URL から接続します。
func NewRedisThrottleFromURL(ctx context.Context, url string) (*RedisThrottle, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisThrottle(rdb), nil
}

// Close は接続を閉じます。
func (r *RedisThrottle) Close() error {
	return r.rdb.Close()
}

func (r *RedisThrottle) Locked(ctx context.Context, key string) (time.Duration, error) {
	state, err := r.get(ctx, r.rdb, attemptKey(key))
	if err != nil || state == nil {
		return 0, err
	}
	return state.lockedFor(r.now()), nil
}

// Fail は WATCH による楽観ロックで記録を更新します。
func (r *RedisThrottle) Fail(ctx context.Context, key string) (int, error) {
	redisKey := attemptKey(key)
	var remaining int

	for {
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			state, err := r.get(ctx, tx, redisKey)
			if err != nil {
				return err
			}
			if state == nil {
				state = &attemptState{}
			}
			remaining = state.record(r.now())

			payload, err := json.Marshal(state)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, redisKey, payload, attemptTTL())
				return nil
			})
			return err
		}, redisKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return remaining, err
	}
}

func (r *RedisThrottle) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, attemptKey(key)).Err()
}

// getter は *redis.Client と *redis.Tx の共通部分です。
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisThrottle) get(ctx context.Context, c getter, key string) (*attemptState, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var state attemptState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// attemptTTL は記録の保持期間です。集計期間とロック期間の長い方を使います。
func attemptTTL() time.Duration {
	if lockDuration > loginWindow {
		return lockDuration
	}
	return loginWindow
}

func attemptKey(key string) string {
	return attemptKeyPrefix + key
}
