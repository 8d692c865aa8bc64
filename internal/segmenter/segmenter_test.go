package segmenter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realkv/lab-bcp/internal/constants"
)

func TestSegmentSingleFrameIsComplete(t *testing.T) {
	sl, err := Segment([]byte("hello"), 2048, 32)
	require.NoError(t, err)
	require.Len(t, sl.Frames, 1)
	assert.Equal(t, constants.CtrlDataComplete, sl.Frames[0].Ctrl)
	assert.Equal(t, []byte("hello"), sl.Frames[0].Payload)
}

func TestSegmentMultiFrameClassification(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 100)
	sl, err := Segment(payload, 2048, 32)
	require.NoError(t, err)
	require.Len(t, sl.Frames, 4)
	assert.Equal(t, constants.CtrlDataStart, sl.Frames[0].Ctrl)
	assert.Equal(t, constants.CtrlDataMiddle, sl.Frames[1].Ctrl)
	assert.Equal(t, constants.CtrlDataMiddle, sl.Frames[2].Ctrl)
	assert.Equal(t, constants.CtrlDataEnd, sl.Frames[3].Ctrl)

	var reassembled []byte
	for _, f := range sl.Frames {
		reassembled = append(reassembled, f.Payload...)
	}
	assert.Equal(t, payload, reassembled)
}

func TestSegmentRejectsEmptyMessage(t *testing.T) {
	_, err := Segment(nil, 2048, 32)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSegmentRejectsOversizedMessage(t *testing.T) {
	_, err := Segment(make([]byte, 100), 50, 32)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestSegmentExactMultiple(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 64)
	sl, err := Segment(payload, 2048, 32)
	require.NoError(t, err)
	require.Len(t, sl.Frames, 2)
	assert.Len(t, sl.Frames[0].Payload, 32)
	assert.Len(t, sl.Frames[1].Payload, 32)
}
