package keyedmutex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameKey(t *testing.T) {
	m := New()
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Lock(context.Background(), 42)
			require.NoError(t, err)
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	m := New()
	release1, err := m.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer release1()

	done := make(chan struct{})
	go func() {
		release2, err := m.Lock(context.Background(), 2)
		assert.NoError(t, err)
		release2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestLockHonorsContext(t *testing.T) {
	m := New()
	release, err := m.Lock(context.Background(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, 7)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()

	// The key must be usable again after a failed acquisition.
	release2, err := m.Lock(context.Background(), 7)
	require.NoError(t, err)
	release2()
}

func TestTryLock(t *testing.T) {
	m := New()
	release, ok := m.TryLock(9)
	require.True(t, ok)

	_, ok = m.TryLock(9)
	assert.False(t, ok)

	release()
	release2, ok := m.TryLock(9)
	assert.True(t, ok)
	release2()
}

func TestEntriesAreReclaimed(t *testing.T) {
	m := New()
	release, err := m.Lock(context.Background(), 11)
	require.NoError(t, err)
	release()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.entries)
}
