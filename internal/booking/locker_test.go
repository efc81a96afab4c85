package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

func TestKey_PerDetailerAndDate(t *testing.T) {
	id := uuid.New()
	day := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	if Key(id, day) == Key(id, day.AddDate(0, 0, 1)) {
		t.Fatalf("expected different keys for different dates")
	}
	if Key(id, day) == Key(uuid.New(), day) {
		t.Fatalf("expected different keys for different detailers")
	}
}

func TestKeyedLocker_MutualExclusion(t *testing.T) {
	l := NewKeyedLocker()
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "a", "b")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
	if l.size() != 0 {
		t.Fatalf("expected all keys released, %d left", l.size())
	}
}

func TestKeyedLocker_DifferentKeysDoNotContend(t *testing.T) {
	l := NewKeyedLocker()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	tctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(tctx, "b")
	if err != nil {
		t.Fatalf("expected b to be free, got %v", err)
	}
	unlockB()
}

func TestKeyedLocker_ContextCancel(t *testing.T) {
	l := NewKeyedLocker()

	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "b", "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// после неудачи ни один ключ не остаётся занятым
	bctx, bcancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer bcancel()
	unlockB, err := l.Lock(bctx, "b")
	if err != nil {
		t.Fatalf("expected b to be released, got %v", err)
	}
	unlockB()

	unlock()
	unlock() // повторный вызов безопасен
	if l.size() != 0 {
		t.Fatalf("expected no keys left, got %d", l.size())
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker(t *testing.T) {
	_, client := newTestRedis(t)

	l := NewRedisLocker(client, 2*time.Second)
	key := "test:" + uuid.NewString()

	unlock, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, key); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second lock to time out, got %v", err)
	}

	unlock()
	if n := client.Exists(context.Background(), key).Val(); n != 0 {
		t.Fatalf("expected key to be deleted on unlock, got %d", n)
	}
	unlock2, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
	unlock2()
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLocker(client, 5*time.Second)
	key := "test:" + uuid.NewString()

	var (
		inside, overlap int32
		wg              sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			unlock, err := l.Lock(ctx, key)
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if atomic.LoadInt32(&overlap) != 0 {
		t.Fatalf("two holders inside the critical section")
	}
}

func TestRedisLocker_ExpiredUnlockKeepsNewOwner(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Second)
	key := "test:" + uuid.NewString()

	stale, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	mr.FastForward(2 * time.Second)

	fresh, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("expected lock after ttl expiry, got %v", err)
	}
	owner, _ := mr.Get(key)

	stale()
	if got, _ := mr.Get(key); got != owner {
		t.Fatalf("stale unlock removed foreign lock: %q -> %q", owner, got)
	}
	fresh()
	if mr.Exists(key) {
		t.Fatalf("expected key to be released")
	}
}
