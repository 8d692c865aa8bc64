// Package constants holds wire-level and default configuration constants
// shared across the BCP engine's internal packages.
package constants

import "time"

// MagicHead is the two-byte frame marker, transmitted little-endian over
// the wire as {0xCD, 0xBF} per spec §3.
const MagicHead uint16 = 0xBFCD

// Control byte values identifying frame kind.
const (
	CtrlDataComplete uint8 = 0x10
	CtrlDataStart    uint8 = 0x11
	CtrlDataMiddle   uint8 = 0x12
	CtrlDataEnd      uint8 = 0x13
	CtrlDataAck      uint8 = 0x14
	CtrlDataNack     uint8 = 0x15
	CtrlSyncReq      uint8 = 0x18
	CtrlSyncAck      uint8 = 0x1C
)

// HeaderTrailerSize is the fixed overhead of every wire frame: magic(2) +
// ctrl(1) + fsn(1) + payload_len(2) + crc16(2).
const HeaderTrailerSize = 8

// Defaults for Config, mirrored from the recommended bounds in the
// protocol's data model invariants.
const (
	DefaultMFSScale     uint8  = 2
	DefaultMTU          uint16 = 20
	DefaultMAL          uint32 = 2048
	MaxRecommendedMAL   uint32 = 8192
	MaxRecommendedScale uint8  = 5

	DefaultQueueDepth = 16

	// DefaultSyncTimeout is the handshake timeout used when a caller
	// passes 0 to Open.
	DefaultSyncTimeout = 2000 * time.Millisecond

	// DestroyDrainTimeout bounds how long Destroy waits for the worker
	// to observe the exit event before force-tearing-down resources.
	DestroyDrainTimeout = 30 * time.Millisecond
)

// destroyPollInterval is how often Destroy polls the exit flag while
// waiting out DestroyDrainTimeout.
const destroyPollInterval = time.Millisecond

// DestroyPollInterval returns the destroy poll interval.
func DestroyPollInterval() time.Duration { return destroyPollInterval }

// FramePoolCount returns the number of frame-pool blocks for a given mal/mfs.
func FramePoolCount(mal uint32, mfs uint32) int {
	if mfs == 0 {
		return 4
	}
	return int(mal/mfs+1) * 4
}

// MTUPoolCount returns the number of MTU-pool blocks for a given mfsScale.
func MTUPoolCount(mfsScale uint8) int {
	return int(mfsScale) * 2
}

// SendListPoolCount is fixed per the data model's pool sizing guidance.
const SendListPoolCount = 3
