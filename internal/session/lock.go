package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker serializes work on one key. Unlock must be called exactly once per successful Lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func sessionLockKey(id int64) string   { return "session:" + strconv.FormatInt(id, 10) }
func userLockKey(userID string) string { return "user:" + userID }

// KeyedMutex is an in-process Locker. Entries are reference counted and dropped when unused,
// so distinct keys never contend and the map does not grow with finished sessions.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(key, e)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// ErrLockTimeout is returned when a distributed lease cannot be acquired before the context ends.
var ErrLockTimeout = errors.New("session lock timeout")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a lease-based Locker for multi-process deployments (SET NX PX + token-checked release).
type RedisLocker struct {
	rdb   redis.UniversalClient
	lease time.Duration
	retry time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, lease time.Duration) *RedisLocker {
	if lease <= 0 {
		lease = 5 * time.Second
	}
	return &RedisLocker{rdb: rdb, lease: lease, retry: 20 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	rkey := "ttt:lock:" + key
	token := uuid.NewString()
	wait := l.retry
	for {
		ok, err := l.rdb.SetNX(ctx, rkey, token, l.lease).Result()
		if err != nil {
			return nil, unavailable("lock", err)
		}
		if ok {
			break
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, unavailable("lock", fmt.Errorf("%w: %s", ErrLockTimeout, key))
		case <-t.C:
		}
		if wait < 200*time.Millisecond {
			wait *= 2
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(rkey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release with a fresh context so a cancelled request does not leak the lease.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, l.rdb, []string{rkey}, token).Err()
		})
	}, nil
}

// renew extends the lease every third of its length while the holder still owns it,
// so a slow fan-out keeps the session serialized.
func (l *RedisLocker) renew(rkey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(l.lease / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.lease/3)
		n, err := renewScript.Run(ctx, l.rdb, []string{rkey}, token, l.lease.Milliseconds()).Int64()
		cancel()
		if err != nil {
			obslog.L().Warn("lock_renew_error", zap.String("key", rkey), zap.Error(err))
			continue
		}
		if n == 0 {
			obslog.L().Warn("lock_lease_lost", zap.String("key", rkey))
			return
		}
	}
}
