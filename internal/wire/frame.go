// Package wire implements the BCP frame codec: a pure encode/decode layer
// over the wire format described by the protocol's data model. It never
// touches session state; the reassembler and retransmit engine own that.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/realkv/lab-bcp/internal/adapter"
	"github.com/realkv/lab-bcp/internal/constants"
)

// ErrShortBuffer is returned when a buffer is too small to hold a frame
// header and trailer.
var ErrShortBuffer = errors.New("wire: buffer too short for frame")

// ErrBadMagic is returned when the leading two bytes don't match the
// protocol's magic marker.
var ErrBadMagic = errors.New("wire: bad magic")

// ErrBadCRC is returned when the trailing CRC doesn't match the computed
// value over header+payload.
var ErrBadCRC = errors.New("wire: CRC mismatch")

// CRC16Func computes a CRC-16 over a byte slice. The concrete algorithm
// (CRC-16-CCITT-FALSE) lives in the platform adapter; wire only consumes
// the function, keeping this package a pure transform. Defined as an
// alias of adapter.CRC16 so callers can pass an adapter's CRC field
// straight through without a conversion.
type CRC16Func = adapter.CRC16

// Frame is the in-memory representation of one wire frame.
type Frame struct {
	Ctrl    uint8
	FSN     uint8
	Payload []byte
}

// WireLen returns the number of bytes this frame occupies on the wire.
func (f *Frame) WireLen() int {
	return constants.HeaderTrailerSize + len(f.Payload)
}

// Encode serializes f into a freshly allocated byte slice, computing the
// CRC with crc16. The two-byte magic is written with
// encoding/binary.LittleEndian, which for the value 0xBFCD produces the
// wire bytes {0xCD, 0xBF} that the protocol's reference implementation
// actually emits.
func Encode(f *Frame, crc16 CRC16Func) []byte {
	buf := make([]byte, f.WireLen())
	EncodeInto(f, buf, crc16)
	return buf
}

// EncodeInto serializes f into buf, which must be at least f.WireLen()
// bytes. Encode calls it on a freshly allocated slice; it lets a caller
// encode into a buffer it already owns.
func EncodeInto(f *Frame, buf []byte, crc16 CRC16Func) {
	binary.LittleEndian.PutUint16(buf[0:2], constants.MagicHead)
	buf[2] = f.Ctrl
	buf[3] = f.FSN
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(f.Payload)))
	copy(buf[6:6+len(f.Payload)], f.Payload)

	crcOffset := 6 + len(f.Payload)
	crc := crc16(buf[:crcOffset])
	binary.LittleEndian.PutUint16(buf[crcOffset:crcOffset+2], crc)
}

// Decode parses a complete frame (header + payload + trailing CRC) out of
// buf. It validates the magic and CRC; ErrBadMagic/ErrBadCRC are returned
// on mismatch so the caller (the reassembler) can decide how to react
// (drop, NACK) per the protocol's error taxonomy.
func Decode(buf []byte, crc16 CRC16Func) (*Frame, error) {
	if len(buf) < constants.HeaderTrailerSize {
		return nil, ErrShortBuffer
	}
	magic := binary.LittleEndian.Uint16(buf[0:2])
	if magic != constants.MagicHead {
		return nil, ErrBadMagic
	}
	payloadLen := int(binary.LittleEndian.Uint16(buf[4:6]))
	total := constants.HeaderTrailerSize + payloadLen
	if len(buf) < total {
		return nil, ErrShortBuffer
	}

	crcOffset := total - 2
	wantCRC := binary.LittleEndian.Uint16(buf[crcOffset:total])
	gotCRC := crc16(buf[:crcOffset])
	if wantCRC != gotCRC {
		return nil, ErrBadCRC
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[6:6+payloadLen])

	return &Frame{
		Ctrl:    buf[2],
		FSN:     buf[3],
		Payload: payload,
	}, nil
}

// PeekHeader inspects the first bytes of a slice without allocating, for
// the fast-path classification the reassembler does on each incoming
// slice: does this look like the start of a new DATA frame?
func PeekHeader(buf []byte) (magicOK bool, ctrl uint8, fsnVal uint8, payloadLen int, ok bool) {
	// Only the 6-byte header (magic, ctrl, fsn, payload_len) is needed.
	if len(buf) < 6 {
		return false, 0, 0, 0, false
	}
	magic := binary.LittleEndian.Uint16(buf[0:2])
	return magic == constants.MagicHead, buf[2], buf[3], int(binary.LittleEndian.Uint16(buf[4:6])), true
}

// IsDataCtrl reports whether ctrl identifies one of the four DATA_* frame
// kinds (COMPLETE/START/MIDDLE/END).
func IsDataCtrl(ctrl uint8) bool {
	switch ctrl {
	case constants.CtrlDataComplete, constants.CtrlDataStart, constants.CtrlDataMiddle, constants.CtrlDataEnd:
		return true
	default:
		return false
	}
}

// IsLastOfMessage reports whether ctrl marks the final frame of an
// application message (COMPLETE or END).
func IsLastOfMessage(ctrl uint8) bool {
	return ctrl == constants.CtrlDataComplete || ctrl == constants.CtrlDataEnd
}
