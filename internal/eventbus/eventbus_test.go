package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DispatchesToAllHandlers(t *testing.T) {
	bus := New(Config{QueueSize: 16, IdleTimeout: 100 * time.Millisecond})

	var mu sync.Mutex
	var gotA, gotB []string

	bus.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		gotA = append(gotA, e.Type)
	})
	bus.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		gotB = append(gotB, e.Type)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bus.Run(ctx)
	}()

	bus.Publish("signal.generated", nil)
	bus.Publish("position.closed", nil)

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"signal.generated", "position.closed"}, gotA)
	assert.Equal(t, []string{"signal.generated", "position.closed"}, gotB)
}

func TestBus_IdleTimeoutStopsRunWithoutCancel(t *testing.T) {
	bus := New(Config{QueueSize: 4, IdleTimeout: 30 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		bus.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("bus did not stop on idle timeout")
	}
}

func TestBus_DropsEventsWhenQueueFull(t *testing.T) {
	bus := New(Config{QueueSize: 1, IdleTimeout: time.Second})

	bus.Publish("a", nil)
	bus.Publish("b", nil) // queue capacity 1, this should drop

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.EventsPublished)
	assert.Equal(t, uint64(1), stats.EventsDropped)
}

func TestBus_StatsReflectRunningState(t *testing.T) {
	bus := New(DefaultConfig())
	assert.False(t, bus.Stats().WorkerRunning)

	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx)

	require.Eventually(t, func() bool {
		return bus.Stats().WorkerRunning
	}, time.Second, 10*time.Millisecond)

	cancel()

	require.Eventually(t, func() bool {
		return !bus.Stats().WorkerRunning
	}, time.Second, 10*time.Millisecond)
}
