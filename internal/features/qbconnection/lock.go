package qbconnection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roof-crm/internal/config"
	"roof-crm/internal/database"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker serializes token refresh per tenant.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func NewLocker(cfg *config.Config, rdb *database.RedisDB) Locker {
	if rdb != nil && rdb.Client != nil {
		return NewRedisLocker(rdb.Client, cfg.RedisPrefix)
	}
	return NewLocalLocker()
}

// LocalLocker is a keyed mutex for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.sem
				l.release(key, kl)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker shares the refresh lock across processes with SET NX PX.
// Release only deletes the key if it still holds this holder's token.
type RedisLocker struct {
	Client     *redis.Client
	Prefix     string
	TTL        time.Duration
	RetryEvery time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{
		Client:     client,
		Prefix:     prefix,
		TTL:        30 * time.Second,
		RetryEvery: 50 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := fmt.Sprintf("%s:lock:%s", l.Prefix, key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.RetryEvery)
	defer ticker.Stop()

	for {
		ok, err := l.Client.SetNX(ctx, redisKey, token, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// Use a fresh context so a cancelled caller still releases.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = unlockScript.Run(releaseCtx, l.Client, []string{redisKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
