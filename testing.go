package bcp

import (
	"sync"
	"time"

	"github.com/realkv/lab-bcp/internal/adapter"
)

// FakeClock is a manually-advanceable Clock for deterministic handshake
// tests. It never reads the wall clock.
type FakeClock struct {
	mu     sync.Mutex
	millis uint32
}

// NewFakeClock returns a clock starting at millis=0.
func NewFakeClock() *FakeClock { return &FakeClock{} }

// NowMillis implements adapter.Clock.
func (c *FakeClock) NowMillis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.millis
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.millis += uint32(d.Milliseconds())
	c.mu.Unlock()
}

var _ adapter.Clock = (*FakeClock)(nil)

// fakeTimer is armed by Start but only fires when explicitly told to,
// unlike a real timer racing against wall-clock time. This lets tests
// assert on the state a session is in before and after a timeout fires.
type fakeTimer struct {
	mu      sync.Mutex
	fn      func()
	armed   bool
	stopped bool
}

func (t *fakeTimer) Start(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fn = fn
	t.armed = true
	t.stopped = false
}

func (t *fakeTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.armed = false
}

// Armed reports whether Start has been called more recently than Stop,
// letting a test wait for a worker goroutine to actually arm a timer
// before firing it.
func (t *fakeTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Fire invokes the armed callback, tolerating a timer that was since
// stopped the same way a real timer tolerates a stray callback racing
// its own Stop.
func (t *fakeTimer) Fire() {
	t.mu.Lock()
	fn := t.fn
	armed := t.armed
	t.mu.Unlock()
	if armed && fn != nil {
		fn()
	}
}

// fakeTimerFactory hands out fakeTimers and can fire every outstanding
// one at once, standing in for "the handshake timeout elapsed".
type fakeTimerFactory struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimerFactory) NewTimer() adapter.Timer {
	t := &fakeTimer{}
	f.mu.Lock()
	f.timers = append(f.timers, t)
	f.mu.Unlock()
	return t
}

// anyArmed reports whether at least one outstanding timer is currently
// armed, letting a test wait for a worker goroutine to reach its
// timer.Start call before firing it.
func (f *fakeTimerFactory) anyArmed() bool {
	f.mu.Lock()
	timers := append([]*fakeTimer(nil), f.timers...)
	f.mu.Unlock()
	for _, t := range timers {
		if t.Armed() {
			return true
		}
	}
	return false
}

func (f *fakeTimerFactory) fireAll() {
	f.mu.Lock()
	timers := append([]*fakeTimer(nil), f.timers...)
	f.mu.Unlock()
	for _, t := range timers {
		t.Fire()
	}
}

// FakeAdapter is a deterministic test double for adapter.Adapter: a
// manually-advanceable clock, manually-fired timers, and call counters
// for goroutine spawns and queue construction, so tests can assert on
// resource lifecycle the way a hand-rolled mock tracks read/write/flush
// calls for verification.
type FakeAdapter struct {
	Adapter *adapter.Adapter
	Clock   *FakeClock
	timers  *fakeTimerFactory

	mu           sync.Mutex
	threadSpawns int
	queuesMade   int
}

// NewFakeAdapter builds a FakeAdapter with a fake clock and fake timers;
// goroutine spawning, queueing, critical sections, and CRC16 reuse the
// production implementations since those are already deterministic from
// a caller's point of view.
func NewFakeAdapter() *FakeAdapter {
	prod := adapter.DefaultAdapter()
	fa := &FakeAdapter{
		Clock:  NewFakeClock(),
		timers: &fakeTimerFactory{},
	}
	fa.Adapter = &adapter.Adapter{
		Clock:   fa.Clock,
		Sleeper: prod.Sleeper,
		Timers:  fa,
		Threads: fa,
		Queues:  fa,
		NewCrit: prod.NewCrit,
		CRC:     prod.CRC,
	}
	return fa
}

// NewTimer implements adapter.TimerFactory.
func (fa *FakeAdapter) NewTimer() adapter.Timer { return fa.timers.NewTimer() }

// Go implements adapter.ThreadFactory, tracking how many worker
// goroutines a test has spawned.
func (fa *FakeAdapter) Go(cfg adapter.ThreadConfig, entry func()) {
	fa.mu.Lock()
	fa.threadSpawns++
	fa.mu.Unlock()
	go entry()
}

// NewQueue implements adapter.QueueFactory, tracking how many queues a
// test has constructed.
func (fa *FakeAdapter) NewQueue(n int) adapter.BoundedQueue {
	fa.mu.Lock()
	fa.queuesMade++
	fa.mu.Unlock()
	return adapter.DefaultAdapter().Queues.NewQueue(n)
}

// FireTimers fires every outstanding armed timer, simulating every
// pending handshake timeout elapsing at once.
func (fa *FakeAdapter) FireTimers() { fa.timers.fireAll() }

// ThreadSpawnCount returns how many goroutines this adapter has spawned.
func (fa *FakeAdapter) ThreadSpawnCount() int {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.threadSpawns
}

// QueueCount returns how many queues this adapter has constructed.
func (fa *FakeAdapter) QueueCount() int {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.queuesMade
}

// Compile-time interface checks.
var (
	_ adapter.TimerFactory  = (*FakeAdapter)(nil)
	_ adapter.ThreadFactory = (*FakeAdapter)(nil)
	_ adapter.QueueFactory  = (*FakeAdapter)(nil)
)
