package storage

import (
	"context"
	"sort"
	"sync"
)

// LocalLocker serializes work per key inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	keys = uniqueSorted(keys)
	acquired := make([]string, 0, len(keys))

	for _, key := range keys {
		kl := l.ref(key)
		select {
		case kl.ch <- struct{}{}:
			acquired = append(acquired, key)
		case <-ctx.Done():
			l.unref(key)
			l.release(acquired)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(acquired) })
	}, nil
}

func (l *LocalLocker) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl := l.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *LocalLocker) release(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		kl := l.locks[keys[i]]
		l.mu.Unlock()

		<-kl.ch
		l.unref(keys[i])
	}
}

func uniqueSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
