package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrQueueStarted = errors.New("queue: already started")
	ErrQueueStopped = errors.New("queue: stopped")
	ErrEnqueueFull  = errors.New("queue: enqueue canceled")
)

// Job is one unit of dispatch work. Jobs never return errors to the
// queue; a handler reports its outcome on the bus, not here.
type Job struct {
	ID  string
	Run func(context.Context)
}

// Serial runs jobs one at a time on a single goroutine. It is the
// dispatch context: handlers enqueued here never run concurrently with
// each other, while callers awaiting responses stay unblocked.
type Serial struct {
	mu       sync.Mutex
	jobs     chan Job
	started  bool
	stopping bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	nextID    atomic.Uint64
	enqueued  atomic.Uint64
	completed atomic.Uint64
}

type Stats struct {
	Started   bool   `json:"started"`
	Depth     int    `json:"depth"`
	Capacity  int    `json:"capacity"`
	Enqueued  uint64 `json:"enqueued"`
	Completed uint64 `json:"completed"`
}

func NewSerial(buffer int) *Serial {
	if buffer <= 0 {
		buffer = 64
	}
	return &Serial{jobs: make(chan Job, buffer)}
}

func (q *Serial) Start(parent context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrQueueStarted
	}
	ctx, cancel := context.WithCancel(parent)
	q.cancel = cancel
	q.started = true
	q.stopping = false
	q.mu.Unlock()

	q.wg.Add(1)
	go q.worker(ctx)
	return nil
}

func (q *Serial) Enqueue(ctx context.Context, job Job) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if job.Run == nil {
		return "", errors.New("queue: job run callback is required")
	}
	if job.ID == "" {
		job.ID = fmt.Sprintf("d-%d", q.nextID.Add(1))
	}

	q.mu.Lock()
	jobs := q.jobs
	stopping := q.stopping
	q.mu.Unlock()
	if stopping {
		return "", ErrQueueStopped
	}

	select {
	case jobs <- job:
		q.enqueued.Add(1)
		return job.ID, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrEnqueueFull, ctx.Err())
	}
}

func (q *Serial) Stats() Stats {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()

	return Stats{
		Started:   started,
		Depth:     len(q.jobs),
		Capacity:  cap(q.jobs),
		Enqueued:  q.enqueued.Load(),
		Completed: q.completed.Load(),
	}
}

// Stop drains queued jobs up to timeout, then cancels the worker.
func (q *Serial) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	cancel := q.cancel
	q.cancel = nil
	q.started = false
	q.stopping = true
	q.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for len(q.jobs) > 0 {
		if timeout > 0 && time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.wg.Wait()
	}()

	remaining := time.Until(deadline)
	if timeout <= 0 {
		<-done
	} else {
		if remaining < 0 {
			remaining = 0
		}
		select {
		case <-done:
		case <-time.After(remaining + 50*time.Millisecond):
			q.finishStop()
			return fmt.Errorf("queue: stop timeout after %s", timeout)
		}
	}
	q.finishStop()
	return nil
}

func (q *Serial) finishStop() {
	q.mu.Lock()
	q.stopping = false
	q.mu.Unlock()
}

func (q *Serial) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			job.Run(ctx)
			q.completed.Add(1)
		}
	}
}
