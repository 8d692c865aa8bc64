// Package reassembler concatenates MTU-sized slices received from the
// link back into complete frames, validates their CRC, and appends the
// resulting payload to the application buffer, notifying the upper
// layer once a full message has arrived.
package reassembler

import (
	"github.com/realkv/lab-bcp/internal/adapter"
	"github.com/realkv/lab-bcp/internal/constants"
	"github.com/realkv/lab-bcp/internal/logging"
	"github.com/realkv/lab-bcp/internal/wire"
)

// Callbacks are the upper-layer hooks the reassembler invokes as slices
// resolve into frames and messages. All three are called synchronously
// from the worker goroutine.
type Callbacks struct {
	// EmitAck sends a cumulative ACK for rcvNext (the just-accepted FSN).
	EmitAck func(rcvNext uint8)
	// EmitNack sends a NACK requesting rcvNext, on a gap or CRC failure.
	EmitNack func(rcvNext uint8)
	// NotifyApp delivers one fully reassembled application message.
	NotifyApp func(msg []byte)
}

// Reassembler holds the per-session receive-side state machine: whether
// a frame is currently in progress, how much of it has arrived, and the
// accumulated application buffer.
type Reassembler struct {
	crc adapter.CRC16
	cb  Callbacks

	mfs uint32
	mal uint32

	rcvNext uint8

	frameFlag   bool
	frameOffset int
	frameLen    int
	frameBuf    []byte

	appBuf    []byte
	appOffset int
}

// New builds a Reassembler sized for mfs-byte frames and mal-byte
// application messages, starting receive sequencing at rcvNext (the
// FSN one past whatever the handshake last observed).
func New(mfs, mal uint32, rcvNext uint8, crc adapter.CRC16, cb Callbacks) *Reassembler {
	return &Reassembler{
		crc:      crc,
		cb:       cb,
		mfs:      mfs,
		mal:      mal,
		rcvNext:  rcvNext,
		frameBuf: make([]byte, mfs),
		appBuf:   make([]byte, mal),
	}
}

// RcvNext returns the next FSN this side expects to receive.
func (r *Reassembler) RcvNext() uint8 { return r.rcvNext }

// Reset reinitializes receive state to rcvNext, releasing any
// in-progress frame and application buffer, as the handshake controller
// does when a SYNC_REQ arrives mid-session.
func (r *Reassembler) Reset(rcvNext uint8) {
	r.rcvNext = rcvNext
	r.frameFlag = false
	r.frameOffset = 0
	r.frameLen = 0
	r.appOffset = 0
}

// ProcessSlice feeds one MTU-sized slice from the link into the state
// machine. It never returns an error to the caller: protocol-level
// problems (FSN gap, CRC mismatch) are handled internally via NACK and
// are never fatal to the session.
func (r *Reassembler) ProcessSlice(slice []byte) {
	if !r.frameFlag {
		magicOK, ctrl, fsnVal, payloadLen, ok := wire.PeekHeader(slice)
		if !ok || !magicOK || !wire.IsDataCtrl(ctrl) {
			return
		}
		if fsnVal != r.rcvNext {
			if r.cb.EmitNack != nil {
				r.cb.EmitNack(r.rcvNext)
			}
			return
		}
		frameLen := payloadLen + constants.HeaderTrailerSize
		if frameLen > len(r.frameBuf) {
			logging.Default().Warn("reassembler: frame exceeds MFS, dropping", "frameLen", frameLen, "mfs", r.mfs)
			return
		}
		r.frameLen = frameLen
		r.frameOffset = copy(r.frameBuf, slice)
		r.frameFlag = true
	} else {
		r.frameOffset += copy(r.frameBuf[r.frameOffset:], slice)
	}

	if r.frameOffset >= r.frameLen {
		r.frameFlag = false
		frame, err := wire.Decode(r.frameBuf[:r.frameLen], r.crc)
		if err != nil {
			logging.Default().Debug("reassembler: frame rejected", "error", err)
			if r.cb.EmitNack != nil {
				r.cb.EmitNack(r.rcvNext)
			}
			return
		}
		r.appDataNotify(frame)
	}
}

func (r *Reassembler) appDataNotify(f *wire.Frame) {
	if r.cb.EmitAck != nil {
		r.cb.EmitAck(r.rcvNext)
	}
	r.rcvNext = f.FSN + 1

	if r.appOffset+len(f.Payload) > len(r.appBuf) {
		logging.Default().Warn("reassembler: application message exceeds MAL, dropping in-progress message")
		r.appOffset = 0
		return
	}
	r.appOffset += copy(r.appBuf[r.appOffset:], f.Payload)

	if wire.IsLastOfMessage(f.Ctrl) {
		msg := make([]byte, r.appOffset)
		copy(msg, r.appBuf[:r.appOffset])
		if r.cb.NotifyApp != nil {
			r.cb.NotifyApp(msg)
		}
		r.appOffset = 0
	}
}
