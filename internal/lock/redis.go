package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrLockBusy is returned when the key stayed held for longer than the
// configured wait.
var ErrLockBusy = errors.New("lock busy")

// releaseScript deletes the key only if it still carries our token, so a
// holder whose lease expired cannot release somebody else's lock.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker is a Locker shared by every service instance pointing at the
// same Redis.  Locks are leases: they expire after TTL even if the holder
// dies without releasing.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker builds a RedisLocker.  ttl bounds how long a crashed
// holder can block a key; wait bounds how long Lock polls for a busy key
// (zero means until ctx is done).
func NewRedisLocker(rdb *redis.Client, prefix string, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl, wait: wait}
}

// Lock polls SET NX with exponential backoff until the key is acquired.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := l.prefix + ":" + key
	token := uuid.NewString()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = l.wait

	err := backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		// The SET runs detached from ctx: a caller that gives up mid-command
		// must not leave a lease behind that nobody knows the token of.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
		ok, err := l.rdb.SetNX(sctx, name, token, l.ttl).Result()
		cancel()
		if err != nil {
			// The SET may have been applied before the error; drop it if so.
			l.release(name, token)
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockBusy
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(name, token) })
	}, nil
}

const opTimeout = 2 * time.Second

// release deletes name if it still carries token.
func (l *RedisLocker) release(name, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := releaseScript.Run(ctx, l.rdb, []string{name}, token).Err(); err != nil {
		log.Warn().Err(err).Str("lock", name).Msg("release admission lock failed; lease will expire")
	}
}
