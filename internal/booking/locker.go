package booking

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker сериализует запись к календарю исполнителя на дату.
// Разные исполнители друг другу не мешают.
type Locker interface {
	// Lock берёт все ключи (в отсортированном порядке) и возвращает функцию освобождения.
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// Key — ключ блокировки календаря исполнителя на дату.
func Key(detailerID uuid.UUID, date time.Time) string {
	return "booking-lock:" + detailerID.String() + ":" + date.Format("2006-01-02")
}

// normalizeKeys сортирует и убирает дубли, чтобы два запроса к одной паре
// исполнителей не взяли ключи в разном порядке.
func normalizeKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// KeyedLocker — блокировки по ключу внутри процесса.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedEntry)}
}

func (l *KeyedLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)

	held := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := l.acquire(ctx, k); err != nil {
			for i := len(held) - 1; i >= 0; i-- {
				l.release(held[i], true)
			}
			return nil, err
		}
		held = append(held, k)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				l.release(held[i], true)
			}
		})
	}, nil
}

func (l *KeyedLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, false)
		return ctx.Err()
	}
}

func (l *KeyedLocker) release(key string, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.locks[key]
	if held {
		<-e.ch
	}
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size — число живых ключей, для тестов.
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
