package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "hall:2026-01-01")
			if !assert.NoError(t, err) {
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

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, m.Len(), "entries are dropped once unused")
}

func TestKeyedMutexDifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()
	unlockA, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := m.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutexHonoursCancellation(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned waiter must not keep the key reserved.
	unlock()
	unlock()
	assert.Zero(t, m.Len())

	again, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}
