package application

import (
	"context"
	"sync"

	"github.com/pco-network/pco/internal/core/domain"
)

type heldLocksKey struct{}

// assetLocker serializes operations per asset id. The returned context
// remembers the locks it holds so that a nested call for the same asset,
// for example from a payment recipient calling back, is rejected instead of
// deadlocking.
type assetLocker struct {
	lock  *sync.Mutex
	locks map[string]*sync.Mutex
}

func newAssetLocker() *assetLocker {
	return &assetLocker{
		lock:  &sync.Mutex{},
		locks: make(map[string]*sync.Mutex),
	}
}

func (l *assetLocker) acquire(
	ctx context.Context, id string,
) (context.Context, func(), error) {
	held, _ := ctx.Value(heldLocksKey{}).(map[string]struct{})
	if _, ok := held[id]; ok {
		return nil, nil, domain.ErrReentrantCall
	}

	l.lock.Lock()
	mtx, ok := l.locks[id]
	if !ok {
		mtx = &sync.Mutex{}
		l.locks[id] = mtx
	}
	l.lock.Unlock()

	mtx.Lock()

	newHeld := make(map[string]struct{}, len(held)+1)
	for k := range held {
		newHeld[k] = struct{}{}
	}
	newHeld[id] = struct{}{}

	return context.WithValue(ctx, heldLocksKey{}, newHeld), mtx.Unlock, nil
}
