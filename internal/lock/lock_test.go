package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "user:1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected at most 1 holder, got %d", maxInside)
	}
	if m.Len() != 0 {
		t.Fatalf("expected lock table to drain, got %d keys", m.Len())
	}
}

func TestKeyedMutexDifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "user:1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	other, err := m.Lock(ctx, "user:2")
	if err != nil {
		t.Fatalf("expected second key to lock, got %v", err)
	}
	other()
}

func TestKeyedMutexHonorsContext(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "user:1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, "user:1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	unlock()
	unlock() // second call is a no-op
	if m.Len() != 0 {
		t.Fatalf("expected lock table to drain, got %d keys", m.Len())
	}
}

func TestRedisLockerKey(t *testing.T) {
	l := NewRedisLocker(nil, "affluence:", 0)
	if got := l.Key("user:7"); got != "affluence:lock:user:7" {
		t.Fatalf("unexpected key %q", got)
	}
	if l.ttl != defaultTTL {
		t.Fatalf("expected default ttl, got %s", l.ttl)
	}
}

func TestRenewEveryLeavesHeadroom(t *testing.T) {
	for _, ttl := range []time.Duration{3 * time.Second, defaultTTL, time.Minute} {
		if got := renewEvery(ttl); got <= 0 || 2*got >= ttl {
			t.Fatalf("renewEvery(%s) = %s, want two renewals to fit inside the ttl", ttl, got)
		}
	}
}
