// Package scheduler implements the ready-queue / CPU-worker scheduler:
// a FIFO admission queue, a pool of worker goroutines running FCFS or
// preemptive round-robin, and the three global tick counters.
package scheduler

import (
	"sync"

	"github.com/csopesy/emulator/pkg/process"
)

// ReadyQueue is a FIFO of process references, protected by a
// mutex+condvar pair: the standard Go worker-pool pattern for a
// bounded set of consumer goroutines draining a shared queue.
type ReadyQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []*process.Process
	closed  bool
}

// NewReadyQueue returns an empty ready queue.
func NewReadyQueue() *ReadyQueue {
	q := &ReadyQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue admits p to the tail and wakes one blocked consumer.
func (q *ReadyQueue) Enqueue(p *process.Process) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	q.cond.Signal()
}

// Close marks the queue shut down; blocked Dequeue calls wake and
// return ok=false once the queue has also been drained.
func (q *ReadyQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Dequeue blocks until a process is available or the queue is closed
// and empty. Workers drain every already-queued process before
// exiting, even after Close.
func (q *ReadyQueue) Dequeue() (*process.Process, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}

// Len reports the current queue length.
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
