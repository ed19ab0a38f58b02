package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pco-network/pco/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestAssetLocker(t *testing.T) {
	locker := newAssetLocker()

	t.Run("reentrant", func(t *testing.T) {
		ctx, unlock, err := locker.acquire(context.Background(), "a")
		require.NoError(t, err)
		defer unlock()

		_, _, err = locker.acquire(ctx, "a")
		require.ErrorIs(t, err, domain.ErrReentrantCall)

		// other assets can still be locked from the same context
		_, unlockB, err := locker.acquire(ctx, "b")
		require.NoError(t, err)
		unlockB()
	})

	t.Run("serializes callers", func(t *testing.T) {
		_, unlock, err := locker.acquire(context.Background(), "c")
		require.NoError(t, err)

		acquired := make(chan struct{})
		wg := &sync.WaitGroup{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, unlock, err := locker.acquire(context.Background(), "c")
			require.NoError(t, err)
			close(acquired)
			unlock()
		}()

		select {
		case <-acquired:
			t.Fatal("lock acquired twice")
		case <-time.After(100 * time.Millisecond):
		}

		unlock()
		wg.Wait()
	})
}
