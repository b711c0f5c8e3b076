package core

import (
	"context"
	"sync"
)

// PrincipalLocker serializes operations on the same principal.
// Lock blocks until the lock is held or ctx is done.
type PrincipalLocker interface {
	Lock(ctx context.Context, principalID string) (unlock func(), err error)
}

// LocalLocker is an in-process keyed mutex. Entries are dropped once no
// caller holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyedLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, principalID string) (func(), error) {
	l.mu.Lock()
	k, ok := l.locks[principalID]
	if !ok {
		k = &keyedLock{sem: make(chan struct{}, 1)}
		l.locks[principalID] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(principalID, k)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-k.sem
			l.release(principalID, k)
		})
	}, nil
}

func (l *LocalLocker) release(principalID string, k *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, principalID)
	}
}
