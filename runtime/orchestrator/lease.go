package orchestrator

import (
	"context"
	"sync"
)

type (
	// Lease serializes handle calls per session key. Two concurrent calls for
	// the same key must not both read a stale session and each write back a
	// partial update; the second call queues until the first releases.
	// Different keys proceed fully in parallel.
	Lease interface {
		// Acquire blocks until the key is exclusively held or the context is
		// done. The returned function releases the lease.
		Acquire(ctx context.Context, key string) (release func(), err error)
	}

	// KeyedMutex is the in-process Lease: one mutex per live key with
	// reference counting so idle keys do not accumulate.
	KeyedMutex struct {
		mu    sync.Mutex
		locks map[string]*keyLock
	}

	keyLock struct {
		ch   chan struct{}
		refs int
	}
)

// NewKeyedMutex returns an empty in-process lease.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Acquire implements Lease.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	kl, ok := m.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = kl
	}
	kl.refs++
	m.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		m.put(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-kl.ch
			m.put(key, kl)
		})
	}
	return release, nil
}

func (m *KeyedMutex) put(key string, kl *keyLock) {
	m.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}
