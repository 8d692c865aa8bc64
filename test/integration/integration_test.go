// Package integration exercises two live Session objects talking over an
// in-process link, covering the boundary scenarios a single session's
// unit tests can't reach: multi-frame exchange, NACK-driven recovery, and
// FSN wraparound across hundreds of messages.
package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/realkv/lab-bcp"
	"github.com/realkv/lab-bcp/internal/handshake"
)

// link wires two sessions' Output callbacks into each other's Input,
// with an optional drop hook so a test can simulate a lost slice.
type link struct {
	mu       sync.Mutex
	dropOnce map[string]bool // keyed by sender tag, drops exactly one slice
	a, b     *bcp.Session
}

func (l *link) send(fromTag string, to *bcp.Session, slice []byte) error {
	l.mu.Lock()
	drop := l.dropOnce[fromTag]
	if drop {
		l.dropOnce[fromTag] = false
	}
	l.mu.Unlock()
	if drop {
		return nil
	}
	cp := append([]byte(nil), slice...)
	return to.Input(cp)
}

func newPair(t *testing.T, cfg bcp.Config, onMsgB func([]byte)) (*link, *bcp.Session, *bcp.Session) {
	t.Helper()
	l := &link{dropOnce: map[string]bool{}}

	sa, err := bcp.Create(cfg, bcp.Interface{
		Output: func(slice []byte) error { return l.send("a", l.b, slice) },
	}, "peer-a", nil)
	require.NoError(t, err)

	sb, err := bcp.Create(cfg, bcp.Interface{
		Output:       func(slice []byte) error { return l.send("b", l.a, slice) },
		DataListener: onMsgB,
	}, "peer-b", nil)
	require.NoError(t, err)

	l.a, l.b = sa, sb
	return l, sa, sb
}

func openBoth(t *testing.T, sa, sb *bcp.Session) {
	t.Helper()
	g, _ := errgroup.WithContext(context.Background())
	results := make(chan handshake.OpenStatus, 2)

	g.Go(func() error {
		return sa.Open(2000, func(st handshake.OpenStatus) { results <- st })
	})
	g.Go(func() error {
		return sb.Open(2000, func(st handshake.OpenStatus) { results <- st })
	})
	require.NoError(t, g.Wait())

	for i := 0; i < 2; i++ {
		select {
		case st := <-results:
			require.Equal(t, handshake.OpenOK, st)
		case <-time.After(2 * time.Second):
			t.Fatal("handshake did not complete")
		}
	}
}

// sendWithRetry retries Send against transient backpressure (the
// fixed-depth send-list pool or a momentarily full event queue), the way
// a real caller backs off rather than treating exhaustion as fatal.
func sendWithRetry(t *testing.T, s *bcp.Session, payload []byte) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := s.Send(payload)
		if err == nil {
			return
		}
		if !bcp.IsCode(err, bcp.ErrCodeResourceExhausted) || time.Now().After(deadline) {
			require.NoError(t, err)
		}
		time.Sleep(time.Millisecond)
	}
}

func testConfig() bcp.Config {
	cfg := bcp.DefaultConfig()
	cfg.MTU = 20
	cfg.MFSScale = 2
	cfg.MAL = 4096
	cfg.QueueDepth = 512
	return cfg
}

// TestMultiFrameMessageWithAcks covers a 150-byte message split across
// several DATA_START/MIDDLE/END frames, each cumulatively ACKed.
func TestMultiFrameMessageWithAcks(t *testing.T) {
	msgs := make(chan []byte, 1)
	_, sa, sb := newPair(t, testConfig(), func(m []byte) { msgs <- m })
	defer sa.Destroy()
	defer sb.Destroy()
	openBoth(t, sa, sb)

	payload := make([]byte, 150)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	require.NoError(t, sa.Send(payload))

	select {
	case got := <-msgs:
		if diff := cmp.Diff(payload, got); diff != "" {
			t.Fatalf("reassembled message mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}

	snap := sa.MetricsSnapshot()
	require.Zero(t, snap.ProtocolDrops)
}

// TestSingleCompleteFrame covers the one-frame (DATA_COMPLETE) path for a
// message that fits within a single frame's payload.
func TestSingleCompleteFrame(t *testing.T) {
	msgs := make(chan []byte, 1)
	_, sa, sb := newPair(t, testConfig(), func(m []byte) { msgs <- m })
	defer sa.Destroy()
	defer sb.Destroy()
	openBoth(t, sa, sb)

	payload := []byte("short")
	require.NoError(t, sa.Send(payload))

	select {
	case got := <-msgs:
		require.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}
}

// TestDroppedFrameTriggersNack drops the only slice of a message's frame
// entirely. Retransmission is purely peer-triggered (no timer-driven
// resend in the steady state), so nothing recovers the lost frame until a
// second message arrives out of FSN order: that arrival is what makes the
// receiver NACK the missing FSN, which makes the sender's retransmit
// engine resend both the lost frame and everything sent after it.
func TestDroppedFrameTriggersNack(t *testing.T) {
	msgs := make(chan []byte, 4)
	l, sa, sb := newPair(t, testConfig(), func(m []byte) { msgs <- m })
	defer sa.Destroy()
	defer sb.Destroy()
	openBoth(t, sa, sb)

	l.mu.Lock()
	l.dropOnce["a"] = true
	l.mu.Unlock()

	first := []byte("lost frame")
	second := []byte("next frame")
	require.NoError(t, sa.Send(first))
	require.NoError(t, sa.Send(second))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case m := <-msgs:
			got[string(m)] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only recovered %d/2 messages after dropped frame", i)
		}
	}
	require.True(t, got[string(first)])
	require.True(t, got[string(second)])

	snap := sa.MetricsSnapshot()
	require.NotZero(t, snap.Retransmits)
}

// TestFSNWrapAcrossManyMessages sends enough small messages to wrap the
// 8-bit FSN space past 0xFF back to 0x00, verifying cumulative ACK bookkeeping
// never desyncs across the wrap boundary.
func TestFSNWrapAcrossManyMessages(t *testing.T) {
	const count = 260
	received := make(chan []byte, count)
	_, sa, sb := newPair(t, testConfig(), func(m []byte) { received <- m })
	defer sa.Destroy()
	defer sb.Destroy()
	openBoth(t, sa, sb)

	for i := 0; i < count; i++ {
		sendWithRetry(t, sa, []byte{byte(i)})
	}

	for i := 0; i < count; i++ {
		select {
		case <-received:
		case <-time.After(5 * time.Second):
			t.Fatalf("only received %d/%d messages before timeout", i, count)
		}
	}
}
