package loop

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := New()
	l.Start()
	defer l.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	for i := range 100 {
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestLoopNeverRunsConcurrently(t *testing.T) {
	l := New()
	l.Start()
	defer l.Close()

	var running, overlaps atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				wg.Add(1)
				l.Post(func() {
					defer wg.Done()
					if running.Add(1) > 1 {
						overlaps.Add(1)
					}
					running.Add(-1)
				})
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps.Load())
}

func TestLoopCloseFromTask(t *testing.T) {
	l := New()
	l.Start()

	var ran atomic.Bool
	l.Post(func() { l.Close() })
	l.Post(func() { ran.Store(true) })

	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.False(t, ran.Load(), "task queued behind Close must not run")

	l.Post(func() { ran.Store(true) })
	assert.False(t, ran.Load())
}

func TestQueueRunsNestedPosts(t *testing.T) {
	var q Queue
	var order []string
	q.Post(func() {
		order = append(order, "a")
		q.Post(func() { order = append(order, "c") })
	})
	q.Post(func() { order = append(order, "b") })

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 3, q.RunPending())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Zero(t, q.RunPending())
}
