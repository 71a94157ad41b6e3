package enrichment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSerializesPerMessage(t *testing.T) {
	var (
		mu      sync.Mutex
		running = map[string]int{}
		overlap atomic.Bool
		done    atomic.Int64
	)
	fn := func(ctx context.Context, id string) error {
		mu.Lock()
		running[id]++
		if running[id] > 1 {
			overlap.Store(true)
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		running[id]--
		mu.Unlock()
		done.Add(1)
		return nil
	}

	p := NewPool(4, 64, fn, nil)
	p.Start()
	for i := 0; i < 40; i++ {
		require.NoError(t, p.Submit(context.Background(), fmt.Sprintf("msg-%d", i%3)))
	}
	require.NoError(t, p.Stop(context.Background()))

	assert.False(t, overlap.Load())
	assert.Equal(t, int64(40), done.Load(), "stop drains the queue")
}

func TestPoolRejectsAfterStop(t *testing.T) {
	p := NewPool(1, 1, func(context.Context, string) error { return nil }, nil)
	p.Start()
	require.NoError(t, p.Stop(context.Background()))
	assert.ErrorIs(t, p.Submit(context.Background(), "x"), ErrPoolStopped)
	assert.NoError(t, p.Stop(context.Background()))
}

func TestPoolSurvivesPanics(t *testing.T) {
	var ok atomic.Bool
	p := NewPool(1, 4, func(_ context.Context, id string) error {
		if id == "boom" {
			panic("bad message")
		}
		ok.Store(true)
		return nil
	}, nil)
	p.Start()
	require.NoError(t, p.Submit(context.Background(), "boom"))
	require.NoError(t, p.Submit(context.Background(), "fine"))
	require.NoError(t, p.Stop(context.Background()))
	assert.True(t, ok.Load())
}

func TestSubmitHonoursContextWhenFull(t *testing.T) {
	block := make(chan struct{})
	p := NewPool(1, 1, func(context.Context, string) error { <-block; return nil }, nil)
	p.Start()
	require.NoError(t, p.Submit(context.Background(), "a"))
	// returns once the worker has taken "a", leaving "b" in the only slot
	require.NoError(t, p.Submit(context.Background(), "b"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Submit(ctx, "c"))
	close(block)
	require.NoError(t, p.Stop(context.Background()))
}
