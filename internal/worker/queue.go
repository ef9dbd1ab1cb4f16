package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by Submit after Close has been called.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned by Submit when the buffer has no room.
	ErrFull = errors.New("queue full")
)

// Task is a deferred write.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type job struct {
	ctx  context.Context
	task Task
}

// Queue runs deferred writes on a fixed set of goroutines. Failures are
// logged and dropped.
type Queue struct {
	jobs    chan job
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewQueue(workers, size int, timeout time.Duration) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}

	q := &Queue{
		jobs:    make(chan job, size),
		timeout: timeout,
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.loop()
	}

	return q
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for j := range q.jobs {
		q.run(j)
	}
}

func (q *Queue) run(j job) {
	ctx := j.ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: task %s panicked: %v", j.task.Name, r)
		}
	}()

	if err := j.task.Run(ctx); err != nil {
		log.Printf("worker: task %s failed: %v", j.task.Name, err)
	}
}

// Submit schedules task without waiting. The task keeps ctx's values but not
// its cancellation, so it outlives the request that scheduled it.
func (q *Queue) Submit(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.jobs <- job{ctx: context.WithoutCancel(ctx), task: task}:
		return nil
	default:
		return ErrFull
	}
}

// Close stops intake and waits for queued tasks to finish or ctx to expire.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		log.Printf("worker: flush interrupted with %d tasks pending", len(q.jobs))
		return ctx.Err()
	}
}

// Pending reports how many tasks wait for a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}
