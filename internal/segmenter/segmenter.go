// Package segmenter splits an outbound application message into the
// ordered slice of DATA frames (COMPLETE/START/MIDDLE/END) that make up
// one atomic send-batch event.
package segmenter

import (
	"errors"

	"github.com/realkv/lab-bcp/internal/constants"
	"github.com/realkv/lab-bcp/internal/wire"
)

// ErrEmptyMessage is returned when the caller asks to segment a
// zero-length message; the protocol requires len >= 1.
var ErrEmptyMessage = errors.New("segmenter: message must be at least one byte")

// ErrTooLarge is returned when the message exceeds the session's MAL.
var ErrTooLarge = errors.New("segmenter: message exceeds configured MAL")

// SendList is one atomically-enqueued batch: the ordered frames that
// make up a single application message. FSN assignment is deferred to
// the worker, which stamps consecutive values from snd_next so that
// FSNs reflect real transmission order among competing Send calls.
type SendList struct {
	Frames []*wire.Frame
}

// Segment splits payload into frames of at most maxPayload bytes each,
// classifying each frame's ctrl byte. A payload that fits in one frame
// becomes a single DATA_COMPLETE frame; otherwise the first frame is
// DATA_START, the last is DATA_END, and everything between is
// DATA_MIDDLE.
func Segment(payload []byte, mal, maxPayload int) (*SendList, error) {
	if len(payload) < 1 {
		return nil, ErrEmptyMessage
	}
	if len(payload) > mal {
		return nil, ErrTooLarge
	}
	if maxPayload < 1 {
		maxPayload = 1
	}

	count := (len(payload) + maxPayload - 1) / maxPayload
	frames := make([]*wire.Frame, 0, count)

	for i := 0; i < count; i++ {
		start := i * maxPayload
		end := start + maxPayload
		if end > len(payload) {
			end = len(payload)
		}
		chunk := make([]byte, end-start)
		copy(chunk, payload[start:end])

		frames = append(frames, &wire.Frame{
			Ctrl:    classify(i, count),
			Payload: chunk,
		})
	}

	return &SendList{Frames: frames}, nil
}

func classify(index, count int) uint8 {
	switch {
	case count == 1:
		return constants.CtrlDataComplete
	case index == 0:
		return constants.CtrlDataStart
	case index == count-1:
		return constants.CtrlDataEnd
	default:
		return constants.CtrlDataMiddle
	}
}
