package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heldKeys(k *KeyedMutex) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(context.Background(), "s1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxActive.Load())
	assert.Equal(t, 0, heldKeys(km))
}

func TestKeyedMutexDistinctKeysIndependent(t *testing.T) {
	km := NewKeyedMutex()

	unlockA, err := km.Lock(context.Background(), "a")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		unlock, err := km.Lock(context.Background(), "b")
		if assert.NoError(t, err) {
			unlock()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	unlockA()
	assert.Equal(t, 0, heldKeys(km))
}

func TestKeyedMutexUnlockIdempotent(t *testing.T) {
	km := NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
	unlock()

	relock, err := km.Lock(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, heldKeys(km))
	relock()
}

func TestKeyedMutexWaiterHonorsCancellation(t *testing.T) {
	km := NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	waitErr := make(chan error, 1)
	go func() {
		_, err := km.Lock(ctx, "s1")
		waitErr <- err
	}()

	cancel()
	select {
	case err := <-waitErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter stayed blocked")
	}

	unlock()
	assert.Equal(t, 0, heldKeys(km))

	relock, err := km.Lock(context.Background(), "s1")
	require.NoError(t, err, "a cancelled waiter must not hold the key")
	relock()
}

func TestKeyedMutexDeadline(t *testing.T) {
	km := NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "s1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
