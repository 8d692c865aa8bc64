// Package queue implements the session's event dispatcher: a bounded
// two-priority queue feeding a single pinned worker goroutine that is
// the sole mutator of session state, grounded on the same single-
// pinned-thread completion-loop shape used for serializing per-tag
// state elsewhere in the stack.
package queue

import (
	"math"
	"time"

	"github.com/realkv/lab-bcp/internal/adapter"
)

// Forever is the sentinel duration the worker passes to Recv to block
// until an event arrives, matching spec's queue.recv(∞).
const Forever = time.Duration(math.MaxInt64)

// Event is one unit of work posted to the queue. Handle runs on the
// worker goroutine with state, which callers type-assert to their own
// session type.
type Event struct {
	Name   string
	Handle func(state any)
}

// EventQueue wraps an adapter.BoundedQueue typed to Event, translating
// the "normal" and "priority" lanes spec.md assigns to specific
// producers: application sends and data-frame input go through Send;
// ACK/NACK/SYNC/timer-expiry/destroy go through SendPriority.
type EventQueue struct {
	q adapter.BoundedQueue
}

// New creates an EventQueue of depth n using the adapter's queue
// factory.
func New(a *adapter.Adapter, n int) *EventQueue {
	return &EventQueue{q: a.Queues.NewQueue(n)}
}

// Send enqueues ev at the tail. timeout <= 0 is non-blocking. Returns
// false if the queue was full or closed.
func (eq *EventQueue) Send(ev Event, timeout time.Duration) bool {
	return eq.q.Send(ev, timeout)
}

// SendPriority enqueues ev at the head, ahead of any already-queued
// normal events.
func (eq *EventQueue) SendPriority(ev Event, timeout time.Duration) bool {
	return eq.q.SendPriority(ev, timeout)
}

// Recv blocks up to timeout for the next event, head lane first.
func (eq *EventQueue) Recv(timeout time.Duration) (Event, bool) {
	item, ok := eq.q.Recv(timeout)
	if !ok {
		return Event{}, false
	}
	return item.(Event), true
}

// Close unblocks any pending Recv/Send calls, used during destroy.
func (eq *EventQueue) Close() {
	eq.q.Close()
}

// Worker runs the single goroutine that drains an EventQueue and
// invokes each event's Handle against state, serially. This is the
// only goroutine allowed to mutate session state outside of pool
// acquire/release.
type Worker struct {
	queue *EventQueue
	state any
	done  chan struct{}
}

// NewWorker builds a Worker bound to queue and state but does not start
// it; call Start to spawn the goroutine via the adapter's ThreadFactory.
func NewWorker(queue *EventQueue, state any) *Worker {
	return &Worker{queue: queue, state: state, done: make(chan struct{})}
}

// Start spawns the worker loop. exitName is an event Name that, once
// handled, causes the loop to return and close Done(). affinity is an
// optional list of CPUs to pin the worker goroutine to; omit it for an
// unpinned worker.
func (w *Worker) Start(a *adapter.Adapter, threadName, exitEventName string, affinity ...int) {
	a.Threads.Go(adapter.ThreadConfig{Name: threadName, CPUAffinity: affinity}, func() {
		defer close(w.done)
		for {
			ev, ok := w.queue.Recv(Forever)
			if !ok {
				return
			}
			if ev.Handle != nil {
				ev.Handle(w.state)
			}
			if ev.Name == exitEventName {
				return
			}
		}
	})
}

// Done reports when the worker loop has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
