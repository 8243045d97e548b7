package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// ticketQueue hands out tickets in submission order. Each ticket may run
// only after its predecessor releases.
type ticketQueue struct {
	mu      sync.Mutex
	tail    chan struct{}
	waiting atomic.Int32
}

type ticket struct {
	prev <-chan struct{}
	done chan struct{}
	once sync.Once
	q    *ticketQueue
}

func (q *ticketQueue) take() *ticket {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := &ticket{prev: q.tail, done: make(chan struct{}), q: q}
	q.tail = t.done
	q.waiting.Add(1)
	return t
}

// wait blocks until the predecessor releases. On cancellation the ticket is
// handed off so successors still wait for the predecessor.
func (t *ticket) wait(ctx context.Context) error {
	defer t.q.waiting.Add(-1)
	if t.prev == nil {
		return nil
	}
	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		go func() {
			<-t.prev
			t.release()
		}()
		return ctx.Err()
	}
}

func (t *ticket) release() {
	t.once.Do(func() { close(t.done) })
}

func (q *ticketQueue) queued() int {
	return int(q.waiting.Load())
}
