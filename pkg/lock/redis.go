package lock

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLocker is a distributed lock using SET NX with a per-holder token.
// Only the holder's token can release or extend the key.
type RedisLocker struct {
	rdb       redis.UniversalClient
	logger    ectologger.Logger
	keyPrefix string
	opts      Options
}

func NewRedisLocker(rdb redis.UniversalClient, logger ectologger.Logger, keyPrefix string, opts Options) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "fern:lock:"
	}
	return &RedisLocker{rdb: rdb, logger: logger, keyPrefix: keyPrefix, opts: opts}
}

type redisLock struct {
	locker *RedisLocker
	key    string
	token  string
}

func (l *RedisLocker) try(ctx context.Context, key string) (*redisLock, error) {
	lockKey := l.keyPrefix + key
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, lockKey, token, l.opts.TTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	l.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)
	return &redisLock{locker: l, key: lockKey, token: token}, nil
}

// Acquire retries with capped exponential backoff until WaitTimeout
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	deadline := time.Now().Add(l.opts.WaitTimeout)
	backoff := 10 * time.Millisecond

	for {
		lock, err := l.try(ctx, key)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}
}

func (lock *redisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.locker.rdb, []string{lock.key}, lock.token).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrNotHeld
	}
	lock.locker.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}

func (lock *redisLock) TTL() time.Duration {
	return lock.locker.opts.TTL
}

// Extend pushes the expiry of a held lock out to ttl from now
func (lock *redisLock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, lock.locker.rdb, []string{lock.key}, lock.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}
