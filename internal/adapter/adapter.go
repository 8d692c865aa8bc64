// Package adapter defines the platform capability-struct the engine is
// built on: clock, sleeper, timer, goroutine spawner, bounded queue,
// critical section, and CRC-16. Every session is constructed with one of
// these; production code uses DefaultAdapter, tests use a fake.
package adapter

import (
	"runtime"
	"sync"
	"time"
)

// Clock reports monotonic time. The engine only ever compares two
// NowMillis() readings with wraparound-safe arithmetic, never the
// wall clock.
type Clock interface {
	NowMillis() uint32
}

// Sleeper blocks the caller for a duration. Used only at teardown, to
// give the worker goroutine a bounded window to drain before a session
// is torn down out from under it.
type Sleeper interface {
	Sleep(d time.Duration)
}

// Timer is a one-shot or periodic callback scheduler. The engine only
// ever uses one-shot timers, for the handshake timeout.
type Timer interface {
	// Start arms the timer to fire fn after d, canceling any previous
	// arming. Start must be safe to call from the worker goroutine.
	Start(d time.Duration, fn func())
	// Stop disarms the timer. A fire already in flight may still run;
	// callers must tolerate a stray callback after Stop.
	Stop()
}

// TimerFactory creates a Timer bound to no callback until first Start.
type TimerFactory interface {
	NewTimer() Timer
}

// ThreadFactory spawns the single worker goroutine a session dedicates
// to serializing its state machine. Go has no native stack-size/priority
// knobs, so Config carries only what the runtime can actually honor.
type ThreadFactory interface {
	Go(cfg ThreadConfig, entry func())
}

// ThreadConfig names the worker for diagnostics; Go goroutines have no
// priority or fixed stack size to configure. CPUAffinity is an opt-in
// hook for hosts (e.g. a gateway proxying several BLE links) that want
// the worker goroutine pinned to specific CPUs; it is ignored unless the
// platform supports SCHED_SETAFFINITY.
type ThreadConfig struct {
	Name        string
	CPUAffinity []int
}

// BoundedQueue is a fixed-capacity blocking queue of events with a
// priority lane: Send appends to the tail, SendPriority jumps to the
// head. A zero timeout is non-blocking.
type BoundedQueue interface {
	Send(item any, timeout time.Duration) bool
	SendPriority(item any, timeout time.Duration) bool
	Recv(timeout time.Duration) (any, bool)
	Close()
}

// QueueFactory creates a BoundedQueue with room for n items per lane
// (head and tail each).
type QueueFactory interface {
	NewQueue(n int) BoundedQueue
}

// Critical is a mutual-exclusion section guarding pool operations. On a
// real OS this is a mutex; on bare metal it could be an interrupt
// disable/enable pair — the interface doesn't care which.
type Critical interface {
	Enter()
	Leave()
}

// CRC16 computes a CRC-16 over a byte slice.
type CRC16 func(data []byte) uint16

// Adapter bundles every platform capability the engine depends on.
type Adapter struct {
	Clock   Clock
	Sleeper Sleeper
	Timers  TimerFactory
	Threads ThreadFactory
	Queues  QueueFactory
	NewCrit func() Critical
	CRC     CRC16
}

// DefaultAdapter returns the production adapter: real wall-clock time
// via time.Now, real goroutines, channel-backed queues, sync.Mutex
// critical sections, and the CRC-16-CCITT-FALSE table implementation.
func DefaultAdapter() *Adapter {
	return &Adapter{
		Clock:   realClock{},
		Sleeper: realSleeper{},
		Timers:  realTimerFactory{},
		Threads: realThreadFactory{},
		Queues:  realQueueFactory{},
		NewCrit: func() Critical { return &mutexCritical{} },
		CRC:     CRC16CCITTFalse,
	}
}

type realClock struct{}

func (realClock) NowMillis() uint32 {
	return uint32(time.Now().UnixMilli())
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

type realTimerFactory struct{}

func (realTimerFactory) NewTimer() Timer { return &realTimer{} }

// realTimer wraps time.Timer, tolerating repeated Start calls by
// stopping any prior timer, so the latest Start replaces an earlier one.
type realTimer struct {
	mu sync.Mutex
	t  *time.Timer
}

func (rt *realTimer) Start(d time.Duration, fn func()) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.t != nil {
		rt.t.Stop()
	}
	rt.t = time.AfterFunc(d, fn)
}

func (rt *realTimer) Stop() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.t != nil {
		rt.t.Stop()
	}
}

type realThreadFactory struct{}

func (realThreadFactory) Go(cfg ThreadConfig, entry func()) {
	if len(cfg.CPUAffinity) == 0 {
		go entry()
		return
	}
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		_ = pinCurrentThread(cfg.CPUAffinity) // best-effort placement hint
		entry()
	}()
}

type realQueueFactory struct{}

func (realQueueFactory) NewQueue(n int) BoundedQueue {
	return newChanQueue(n)
}

type mutexCritical struct {
	mu sync.Mutex
}

func (c *mutexCritical) Enter() { c.mu.Lock() }
func (c *mutexCritical) Leave() { c.mu.Unlock() }
