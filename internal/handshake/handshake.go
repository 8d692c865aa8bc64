// Package handshake implements the SYNC_REQ/SYNC_ACK exchange: building
// and parsing the two handshake frame kinds, and negotiating the peer's
// advertised MFS so the receive side can size its frame buffer
// correctly. The open/timeout/transition sequencing itself belongs to
// the session, which owns the STOP/HANDSHAKE/DONE state machine.
package handshake

import (
	"encoding/binary"
	"errors"

	"github.com/realkv/lab-bcp/internal/constants"
	"github.com/realkv/lab-bcp/internal/wire"
)

// ErrNotSyncReq / ErrNotSyncAck / ErrBadPayload flag malformed or
// unexpected handshake frames.
var (
	ErrNotSyncReq = errors.New("handshake: frame is not SYNC_REQ")
	ErrNotSyncAck = errors.New("handshake: frame is not SYNC_ACK")
	ErrBadPayload = errors.New("handshake: malformed SYNC_REQ payload")
)

// OpenStatus mirrors the library API's open-completion statuses.
type OpenStatus int

const (
	OpenOK            OpenStatus = 0
	OpenErrMemFail    OpenStatus = -3
	OpenErrSendFail   OpenStatus = -4
	OpenErrRspTimeout OpenStatus = -5
)

func (s OpenStatus) String() string {
	switch s {
	case OpenOK:
		return "OK"
	case OpenErrMemFail:
		return "MEM_FAIL"
	case OpenErrSendFail:
		return "SEND_FAIL"
	case OpenErrRspTimeout:
		return "RSP_TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// BuildSyncReq constructs the SYNC_REQ frame this side sends to open a
// session, carrying its own MFS so the peer can size its receive
// buffer.
func BuildSyncReq(fsnVal uint8, localMFS uint16) *wire.Frame {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, localMFS)
	return &wire.Frame{Ctrl: constants.CtrlSyncReq, FSN: fsnVal, Payload: payload}
}

// BuildSyncAck constructs the SYNC_ACK frame echoing the request's FSN,
// with an empty payload.
func BuildSyncAck(reqFSN uint8) *wire.Frame {
	return &wire.Frame{Ctrl: constants.CtrlSyncAck, FSN: reqFSN, Payload: nil}
}

// ParsePeerMFS extracts the peer's advertised MFS from a SYNC_REQ frame.
func ParsePeerMFS(f *wire.Frame) (uint16, error) {
	if f.Ctrl != constants.CtrlSyncReq {
		return 0, ErrNotSyncReq
	}
	if len(f.Payload) < 2 {
		return 0, ErrBadPayload
	}
	return binary.LittleEndian.Uint16(f.Payload), nil
}

// IsSyncAckFor reports whether f is a SYNC_ACK that acknowledges the
// SYNC_REQ sent with reqFSN.
func IsSyncAckFor(f *wire.Frame, reqFSN uint8) bool {
	return f.Ctrl == constants.CtrlSyncAck && f.FSN == reqFSN
}
