package loop

import "sync"

// Queue is an Executor that only runs tasks when asked to. Tests use it to
// step a session deterministically.
type Queue struct {
	mu    sync.Mutex
	tasks []func()
}

// Post queues fn until the next RunPending.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
}

// RunPending runs tasks until the queue is empty, including tasks posted by
// the tasks it runs, and returns how many ran.
func (q *Queue) RunPending() int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return n
		}
		fn := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		fn()
		n++
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
