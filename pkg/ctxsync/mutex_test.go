package ctxsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vinicius-lino-figueiredo/gedm/pkg/ctxsync"
)

// Multiple goroutines should not be able to acquire the same lock.
func TestLock(t *testing.T) {
	workers := 1000

	n := 0
	mu := ctxsync.NewMutex()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(workers)
	start := make(chan struct{})
	for range workers {
		go func() {
			defer wg.Done()
			<-start
			assert.NoError(t, mu.Lock(ctx))
			defer mu.Unlock()
			n++
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, workers, n)
}

// A cancelled wait gives up without holding the lock.
func TestLockCancelled(t *testing.T) {
	mu := ctxsync.NewMutex()
	assert.NoError(t, mu.Lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, mu.Lock(ctx), context.DeadlineExceeded)

	mu.Unlock()
	assert.True(t, mu.TryLock())
	mu.Unlock()
}

// A context that is already done fails even when the lock is free.
func TestLockDoneContext(t *testing.T) {
	mu := ctxsync.NewMutex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 100 {
		assert.ErrorIs(t, mu.Lock(ctx), context.Canceled)
	}
	assert.True(t, mu.TryLock())
}

func TestTryLock(t *testing.T) {
	mu := ctxsync.NewMutex()
	assert.True(t, mu.TryLock())
	assert.False(t, mu.TryLock())
	mu.Unlock()
	assert.True(t, mu.TryLock())
}

func TestUnlockOfUnlocked(t *testing.T) {
	mu := ctxsync.NewMutex()
	assert.PanicsWithValue(t, "ctxsync: unlock of unlocked mutex", mu.Unlock)
}

func TestDo(t *testing.T) {
	mu := ctxsync.NewMutex()
	errFn := errors.New("fn")

	err := mu.Do(context.Background(), func() error {
		assert.False(t, mu.TryLock())
		return errFn
	})
	assert.ErrorIs(t, err, errFn)
	assert.True(t, mu.TryLock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err = mu.Do(ctx, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
