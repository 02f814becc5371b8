package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL  = 30 * time.Second
	minPollWait = 5 * time.Millisecond
	maxPollWait = 200 * time.Millisecond
)

var ErrLockLost = errors.New("redis lock expired before release")

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was taken by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker shared by every process pointed at the same redis.
// TTL bounds how long a crashed holder can block a key; a live holder renews
// its lease every renewEvery(TTL) until it unlocks.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) Key(key string) string {
	return l.prefix + "lock:" + key
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := l.Key(key)
	token := uuid.NewString()
	wait := minPollWait
	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", k, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		if wait *= 2; wait > maxPollWait {
			wait = maxPollWait
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release on a fresh context: the caller's may already be done.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := releaseScript.Run(rctx, l.rdb, []string{k}, token).Int()
			if err == nil && n == 0 {
				err = ErrLockLost
			}
			if err != nil {
				log.Printf("[lock] release %s: %v", k, err)
			}
		})
	}, nil
}

// renewEvery is how often a held lease is extended: a third of the TTL, so
// two renewals can fail before the key expires.
func renewEvery(ttl time.Duration) time.Duration {
	return ttl / 3
}

func (l *RedisLocker) renew(k, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tick := time.NewTicker(renewEvery(l.ttl))
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			rctx, cancel := context.WithTimeout(context.Background(), renewEvery(l.ttl))
			n, err := extendScript.Run(rctx, l.rdb, []string{k}, token, l.ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				log.Printf("[lock] renew %s: %v", k, err)
			case n == 0:
				log.Printf("[lock] renew %s: %v", k, ErrLockLost)
				return
			}
		}
	}
}
