// Package distlock is a single-holder lock on a redis key, used to keep
// replicated background jobs from running at the same time.
package distlock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/dwarvesf/paywall-backend/internal/utils/config"
)

// ErrLocked means another holder owns the key.
var ErrLocked = errors.New("lock held by another owner")

// deletes the key only while it still carries our token
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

type DistLock struct {
	client     redis.Cmdable
	key        string
	token      string
	expiration time.Duration
}

// New creates a lock handle. Each handle has its own token, so only the
// handle that acquired the key can release it.
func New(client redis.Cmdable, key string, expiration time.Duration) *DistLock {
	return &DistLock{
		client:     client,
		key:        key,
		token:      uuid.NewString(),
		expiration: expiration,
	}
}

// TryLock makes a single SET NX PX attempt.
func (l *DistLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.expiration).Result()
	if err != nil {
		return false, errors.Wrapf(err, "acquire %s", l.key)
	}
	return ok, nil
}

// Unlock releases the key if this handle still owns it. It reports false
// when the key expired or was taken over.
func (l *DistLock) Unlock(ctx context.Context) (bool, error) {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return false, errors.Wrapf(err, "release %s", l.key)
	}
	return n == 1, nil
}

// Do runs fn while holding the lock, returning ErrLocked without running
// it if the key is taken.
func (l *DistLock) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	ok, err := l.TryLock(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	defer func() {
		// release even if ctx is already done
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_, _ = l.Unlock(releaseCtx)
	}()
	return fn(ctx)
}

// NewClient connects to redis and pings it.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}
