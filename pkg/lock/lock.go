package lock

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when a lock cannot be acquired in time
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that expired or changed hands
	ErrLockNotHeld = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Lock is one held key.
type Lock struct {
	client *Client
	key    string
	value  string
}

// Locker takes SET NX locks under a key prefix.
type Locker struct {
	client      *Client
	keyPrefix   string
	ttl         time.Duration
	waitTimeout time.Duration
}

func NewLocker(client *Client, keyPrefix string, ttl, waitTimeout time.Duration) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{
		client:      client,
		keyPrefix:   keyPrefix,
		ttl:         ttl,
		waitTimeout: waitTimeout,
	}
}

// Acquire makes one attempt to take key.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, lockValue, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", lockKey)
	return &Lock{client: l.client, key: lockKey, value: lockValue}, nil
}

// TryAcquire retries Acquire with capped exponential backoff until the wait
// timeout elapses.
func (l *Locker) TryAcquire(ctx context.Context, key string) (*Lock, error) {
	deadline := time.Now().Add(l.waitTimeout)
	backoff := 10 * time.Millisecond

	for {
		lock, err := l.Acquire(ctx, key)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockNotAcquired
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

// LockKeys takes every key in sorted order and returns a func releasing them
// all. On failure any keys already taken are released before returning.
func (l *Locker) LockKeys(ctx context.Context, keys []string) (func(context.Context), error) {
	held := make([]*Lock, 0, len(keys))
	release := func(ctx context.Context) {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(ctx); err != nil {
				l.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock: %s", held[i].key)
			}
		}
	}

	for _, key := range normalizeKeys(keys) {
		lock, err := l.TryAcquire(ctx, key)
		if err != nil {
			release(context.WithoutCancel(ctx))
			return nil, err
		}
		held = append(held, lock)
	}

	return release, nil
}

func (lock *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.client.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}

// normalizeKeys sorts and dedupes keys so overlapping callers lock in the same order.
func normalizeKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, key := range out {
		if key == "" || (i > 0 && key == out[i-1]) {
			continue
		}
		out[n] = key
		n++
	}
	return out[:n]
}
