// Package loop provides the serial execution context sessions use to run
// transport events and application notifications.
package loop

import (
	"sync"
)

// Executor runs posted tasks one at a time, in posting order.
type Executor interface {
	Post(fn func())
}

// Loop is an Executor backed by a single goroutine and an unbounded queue.
// Post never blocks.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
	closed bool
}

// New creates a Loop. Call Start to begin running tasks.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling it more than once has no
// effect.
func (l *Loop) Start() {
	l.once.Do(func() { go l.run() })
}

// Post queues fn. Tasks posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Close stops the loop after the running task returns. Pending tasks are
// discarded. Close does not wait and may be called from inside a task.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.tasks = nil
	close(l.quit)
}

// Done is closed once the worker goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.wake:
		case <-l.quit:
			return
		}

		for {
			l.mu.Lock()
			if l.closed || len(l.tasks) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.tasks[0]
			l.tasks[0] = nil
			l.tasks = l.tasks[1:]
			l.mu.Unlock()

			fn()
		}
	}
}
