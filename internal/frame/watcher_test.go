package frame_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/lumabox/illumctl/internal/frame"
)

func TestWatcherDeliversPublishedIdentity(t *testing.T) {
	w := frame.NewWatcher()

	w.Publish(frame.Identity(7))

	id, ok := w.AwaitNext(time.Second)
	require.True(t, ok)
	assert.Equal(t, frame.Identity(7), id)
}

func TestWatcherLatestWins(t *testing.T) {
	w := frame.NewWatcher()

	// Rapid publications with no consumer: only the newest survives.
	for i := 1; i <= 100; i++ {
		w.Publish(frame.Identity(i))
	}

	id, ok := w.AwaitNext(time.Second)
	require.True(t, ok)
	assert.Equal(t, frame.Identity(100), id)
	assert.Equal(t, uint64(99), w.Drops())

	// The slot was cleared by the take; nothing stale remains.
	_, ok = w.AwaitNext(10 * time.Millisecond)
	assert.False(t, ok)
}

func TestWatcherTimeout(t *testing.T) {
	w := frame.NewWatcher()

	start := time.Now()
	_, ok := w.AwaitNext(50 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestWatcherWakesBlockedConsumer(t *testing.T) {
	w := frame.NewWatcher()

	got := make(chan frame.Identity, 1)
	go func() {
		id, ok := w.AwaitNext(5 * time.Second)
		if ok {
			got <- id
		}
	}()

	// Give the consumer a moment to block before publishing.
	time.Sleep(20 * time.Millisecond)
	w.Publish(frame.Identity(42))

	select {
	case id := <-got:
		assert.Equal(t, frame.Identity(42), id)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken by publish")
	}
}

func TestWatcherCloseReleasesWaiter(t *testing.T) {
	w := frame.NewWatcher()

	released := make(chan bool, 1)
	go func() {
		_, ok := w.AwaitNext(5 * time.Second)
		released <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	w.Close()

	select {
	case ok := <-released:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("close did not release the waiting consumer")
	}
}

func TestWatcherConcurrentPublishers(t *testing.T) {
	w := frame.NewWatcher()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				w.Publish(frame.Identity(base*1000 + i))
			}
		}(p)
	}
	wg.Wait()

	// Exactly one identity is pending regardless of publisher count.
	_, ok := w.AwaitNext(time.Second)
	require.True(t, ok)
	_, ok = w.AwaitNext(10 * time.Millisecond)
	assert.False(t, ok)

	assert.Equal(t, uint64(999), w.Drops())
}
