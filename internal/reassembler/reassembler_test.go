package reassembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realkv/lab-bcp/internal/adapter"
	"github.com/realkv/lab-bcp/internal/constants"
	"github.com/realkv/lab-bcp/internal/wire"
)

func sliceFrame(t *testing.T, f *wire.Frame, mtu int) [][]byte {
	t.Helper()
	buf := wire.Encode(f, adapter.CRC16CCITTFalse)
	var slices [][]byte
	for i := 0; i < len(buf); i += mtu {
		end := i + mtu
		if end > len(buf) {
			end = len(buf)
		}
		slices = append(slices, buf[i:end])
	}
	return slices
}

func TestReassembleSingleFrameAcrossSlices(t *testing.T) {
	var acked []uint8
	var delivered [][]byte
	r := New(40, 2048, 0, adapter.CRC16CCITTFalse, Callbacks{
		EmitAck:   func(n uint8) { acked = append(acked, n) },
		NotifyApp: func(msg []byte) { delivered = append(delivered, msg) },
	})

	f := &wire.Frame{Ctrl: constants.CtrlDataComplete, FSN: 0, Payload: []byte("hello world")}
	for _, s := range sliceFrame(t, f, 6) {
		r.ProcessSlice(s)
	}

	require.Len(t, delivered, 1)
	assert.Equal(t, []byte("hello world"), delivered[0])
	assert.Equal(t, []uint8{0}, acked)
	assert.EqualValues(t, 1, r.RcvNext())
}

func TestReassembleMultiFrameMessage(t *testing.T) {
	var delivered [][]byte
	r := New(40, 2048, 0, adapter.CRC16CCITTFalse, Callbacks{
		NotifyApp: func(msg []byte) { delivered = append(delivered, msg) },
	})

	frames := []*wire.Frame{
		{Ctrl: constants.CtrlDataStart, FSN: 0, Payload: []byte("abc")},
		{Ctrl: constants.CtrlDataMiddle, FSN: 1, Payload: []byte("def")},
		{Ctrl: constants.CtrlDataEnd, FSN: 2, Payload: []byte("ghi")},
	}
	for _, f := range frames {
		for _, s := range sliceFrame(t, f, 6) {
			r.ProcessSlice(s)
		}
	}

	require.Len(t, delivered, 1)
	assert.Equal(t, []byte("abcdefghi"), delivered[0])
	assert.EqualValues(t, 3, r.RcvNext())
}

func TestReassemblerNacksOnFSNGap(t *testing.T) {
	var nacked []uint8
	r := New(40, 2048, 5, adapter.CRC16CCITTFalse, Callbacks{
		EmitNack: func(n uint8) { nacked = append(nacked, n) },
	})

	f := &wire.Frame{Ctrl: constants.CtrlDataComplete, FSN: 9, Payload: []byte("x")}
	for _, s := range sliceFrame(t, f, 100) {
		r.ProcessSlice(s)
	}

	require.Len(t, nacked, 1)
	assert.EqualValues(t, 5, nacked[0])
	assert.EqualValues(t, 5, r.RcvNext())
}

func TestReassemblerNacksOnCRCMismatch(t *testing.T) {
	var nacked []uint8
	r := New(40, 2048, 0, adapter.CRC16CCITTFalse, Callbacks{
		EmitNack: func(n uint8) { nacked = append(nacked, n) },
	})

	f := &wire.Frame{Ctrl: constants.CtrlDataComplete, FSN: 0, Payload: []byte("corrupt me")}
	buf := wire.Encode(f, adapter.CRC16CCITTFalse)
	buf[len(buf)-1] ^= 0xFF

	r.ProcessSlice(buf)
	require.Len(t, nacked, 1)
	assert.EqualValues(t, 0, nacked[0])
}

func TestReassemblerDropsOversizedApplicationMessageButStaysAlive(t *testing.T) {
	var delivered [][]byte
	r := New(20, 10, 0, adapter.CRC16CCITTFalse, Callbacks{
		NotifyApp: func(msg []byte) { delivered = append(delivered, msg) },
	})

	big := &wire.Frame{Ctrl: constants.CtrlDataStart, FSN: 0, Payload: []byte("0123456789ab")}
	for _, s := range sliceFrame(t, big, 100) {
		r.ProcessSlice(s)
	}
	assert.Empty(t, delivered)
	assert.EqualValues(t, 1, r.RcvNext())

	small := &wire.Frame{Ctrl: constants.CtrlDataComplete, FSN: 1, Payload: []byte("ok")}
	for _, s := range sliceFrame(t, small, 100) {
		r.ProcessSlice(s)
	}
	require.Len(t, delivered, 1)
	assert.Equal(t, []byte("ok"), delivered[0])
}

func TestResetClearsInProgressFrame(t *testing.T) {
	r := New(40, 2048, 0, adapter.CRC16CCITTFalse, Callbacks{})
	f := &wire.Frame{Ctrl: constants.CtrlDataStart, FSN: 0, Payload: []byte("partial")}
	slices := sliceFrame(t, f, 5)
	r.ProcessSlice(slices[0])

	r.Reset(7)
	assert.EqualValues(t, 7, r.RcvNext())
}
