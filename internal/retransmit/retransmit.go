// Package retransmit maintains the in-flight list of sent frames and
// applies ACK/NACK semantics to it. Retransmission is purely
// peer-triggered; there is no timer-driven resend in the steady state.
package retransmit

import (
	"github.com/realkv/lab-bcp/internal/fsn"
)

// Entry is one in-flight frame: its FSN and the exact serialized wire
// bytes that were transmitted, kept verbatim so retransmission never
// reassigns the FSN.
type Entry struct {
	FSN  uint8
	Wire []byte
}

// List is the in-flight list, ordered by FSN (insertion order equals
// transmission order).
type List struct {
	entries []Entry
}

// New returns an empty in-flight list.
func New() *List {
	return &List{}
}

// Append adds a newly transmitted frame to the tail of the list.
func (l *List) Append(seq uint8, wireBytes []byte) {
	l.entries = append(l.entries, Entry{FSN: seq, Wire: wireBytes})
}

// Len reports how many frames are currently unacknowledged.
func (l *List) Len() int { return len(l.entries) }

// Clear drops every in-flight entry, releasing them as implicitly
// acknowledged. Used when a SYNC_ACK closes out the handshake's
// in-flight SYNC_REQ.
func (l *List) Clear() {
	l.entries = nil
}

// OnAck applies a cumulative ACK for ackedFSN: every entry at or before
// ackedFSN in FSN order is removed and released. Walking stops at the
// first still-unacknowledged entry, since the list is FSN-ordered and
// ACK semantics are cumulative.
func (l *List) OnAck(ackedFSN uint8) int {
	i := 0
	for ; i < len(l.entries); i++ {
		if fsn.AtOrAfter(ackedFSN, l.entries[i].FSN) {
			continue
		}
		break
	}
	freed := i
	l.entries = l.entries[i:]
	return freed
}

// OnNack returns the wire bytes to re-emit, in order, for a NACK
// requesting reqFSN: the requested frame and everything newer. Frames
// strictly older than reqFSN are released as implicitly acknowledged.
func (l *List) OnNack(reqFSN uint8) [][]byte {
	kept := l.entries[:0:0]
	var resend [][]byte
	for _, e := range l.entries {
		if fsn.Diff(reqFSN, e.FSN) <= 0 {
			resend = append(resend, e.Wire)
			kept = append(kept, e)
		}
	}
	l.entries = kept
	return resend
}
