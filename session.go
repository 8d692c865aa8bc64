package bcp

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/realkv/lab-bcp/internal/adapter"
	"github.com/realkv/lab-bcp/internal/constants"
	"github.com/realkv/lab-bcp/internal/handshake"
	"github.com/realkv/lab-bcp/internal/logging"
	"github.com/realkv/lab-bcp/internal/pool"
	"github.com/realkv/lab-bcp/internal/queue"
	"github.com/realkv/lab-bcp/internal/reassembler"
	"github.com/realkv/lab-bcp/internal/retransmit"
	"github.com/realkv/lab-bcp/internal/segmenter"
	"github.com/realkv/lab-bcp/internal/wire"
)

// eventExit is the event Name the worker loop watches for to return,
// matching the protocol's "post an exit event, then join" teardown.
const eventExit = "exit"

// Status is a session's position in the STOP/HANDSHAKE/DONE state
// machine.
type Status int32

const (
	StatusStop Status = iota
	StatusHandshake
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusStop:
		return "STOP"
	case StatusHandshake:
		return "HANDSHAKE"
	case StatusDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Config configures a session at Create time, mirroring the library
// API's configuration struct: mfs_scale, mtu, mal, plus the worker
// thread's name/affinity.
type Config struct {
	MFSScale uint8  // 1..5, recommended
	MTU      uint16 // link MTU in bytes
	MAL      uint32 // maximum application message length

	WorkerThreadName  string
	WorkerCPUAffinity []int
	QueueDepth        int

	// Observer receives protocol metrics; defaults to a MetricsObserver
	// wrapping a freshly created Metrics if nil.
	Observer Observer
	// Logger receives per-session diagnostic messages; defaults to the
	// package-global logger if nil.
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults drawn from internal/constants
// rather than inline magic numbers.
func DefaultConfig() Config {
	return Config{
		MFSScale:         constants.DefaultMFSScale,
		MTU:              constants.DefaultMTU,
		MAL:              constants.DefaultMAL,
		WorkerThreadName: "bcp-worker",
		QueueDepth:       constants.DefaultQueueDepth,
	}
}

func validateConfig(cfg Config) error {
	if cfg.MFSScale < 1 {
		return ErrBadConfig
	}
	if cfg.MFSScale > constants.MaxRecommendedScale {
		logging.Default().Warn("bcp: mfs_scale exceeds recommended bound", "scale", cfg.MFSScale)
	}
	if cfg.MTU < 1 {
		return ErrBadConfig
	}
	mfs := uint32(cfg.MTU) * uint32(cfg.MFSScale)
	if mfs <= constants.HeaderTrailerSize {
		return ErrBadConfig
	}
	if cfg.MAL < mfs {
		return ErrBadConfig
	}
	if cfg.MAL > constants.MaxRecommendedMAL {
		logging.Default().Warn("bcp: mal exceeds recommended bound", "mal", cfg.MAL)
	}
	return nil
}

// Interface bundles the two callbacks a session invokes: Output pushes
// one MTU-sized slice onto the link, DataListener delivers one fully
// reassembled application message.
type Interface struct {
	Output       func(slice []byte) error
	DataListener func(msg []byte)
}

// Session owns the adapter, pools, event queue/worker, and protocol
// state machine for one logical channel between two peers.
// Create/Open/Send/Input/Destroy form the object's staged
// construction-then-teardown lifecycle.
type Session struct {
	id  uuid.UUID
	tag string

	cfg   Config
	iface Interface
	adp   *adapter.Adapter

	mfs uint32
	mal uint32
	mtu uint32

	pools *pool.Set

	eq     *queue.EventQueue
	worker *queue.Worker

	status atomic.Int32
	exited atomic.Bool

	sndNext  uint8
	reqFSN   uint8
	peerMFS  uint16
	reasm    *reassembler.Reassembler
	inFlight *retransmit.List

	syncTimer   adapter.Timer
	openedCB    func(handshake.OpenStatus)
	openSettled bool // guards openedCB against both simultaneous-open legs firing it

	metrics  *Metrics
	observer Observer
	logger   *logging.Logger

	closeOnce sync.Once
}

// Create allocates a session's pools, event queue, and worker goroutine,
// and returns it in STOP state. A nil adapter gets adapter.DefaultAdapter().
// The only failure mode is a configuration error; every later
// construction step is infallible, so there is nothing to unwind.
func Create(cfg Config, iface Interface, tag string, a *adapter.Adapter) (*Session, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if a == nil {
		a = adapter.DefaultAdapter()
	}
	if cfg.WorkerThreadName == "" {
		cfg.WorkerThreadName = "bcp-worker"
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = constants.DefaultQueueDepth
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := NewMetrics()
	observer := cfg.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	mfs := uint32(cfg.MTU) * uint32(cfg.MFSScale)
	crit := a.NewCrit()
	pools := pool.NewSet(crit, mfs, cfg.MAL, uint32(cfg.MTU), cfg.MFSScale, 0, 0, 8)

	s := &Session{
		id:        uuid.New(),
		tag:       tag,
		cfg:       cfg,
		iface:     iface,
		adp:       a,
		mfs:       mfs,
		mal:       cfg.MAL,
		mtu:       uint32(cfg.MTU),
		pools:     pools,
		eq:        queue.New(a, cfg.QueueDepth),
		inFlight:  retransmit.New(),
		syncTimer: a.Timers.NewTimer(),
		metrics:   metrics,
		observer:  observer,
		logger:    logger,
	}
	s.status.Store(int32(StatusStop))
	s.worker = queue.NewWorker(s.eq, s)
	s.worker.Start(a, cfg.WorkerThreadName, eventExit, cfg.WorkerCPUAffinity...)

	logger.Debug("bcp: session created", "tag", tag, "mfs", mfs, "mal", cfg.MAL)
	return s, nil
}

// ID returns the session's unique identity, for correlating sessions
// across a host that runs many sessions at once. It is distinct from
// Tag, which is what log lines and promexport labels carry.
func (s *Session) ID() string { return s.id.String() }

// Tag returns the caller-supplied label passed to Create.
func (s *Session) Tag() string { return s.tag }

// Status returns the session's current lifecycle state.
func (s *Session) Status() Status { return Status(s.status.Load()) }

// Metrics returns the session's metrics counters.
func (s *Session) Metrics() *Metrics { return s.metrics }

// MetricsSnapshot returns a point-in-time snapshot of session metrics.
func (s *Session) MetricsSnapshot() MetricsSnapshot { return s.metrics.Snapshot() }

// Open transitions a STOP session to HANDSHAKE and posts a high-priority
// SYNC_REQ send event. opened is invoked exactly once, from the worker
// goroutine, with the outcome: OpenOK, or OpenErrRspTimeout if no
// SYNC_ACK/SYNC_REQ resolves the handshake within timeoutMs.
func (s *Session) Open(timeoutMs uint32, opened func(handshake.OpenStatus)) error {
	if !s.status.CompareAndSwap(int32(StatusStop), int32(StatusHandshake)) {
		return ErrAlreadyOpen
	}
	if timeoutMs == 0 {
		timeoutMs = uint32(constants.DefaultSyncTimeout.Milliseconds())
	}
	s.openedCB = opened
	s.observer.ObserveHandshakeAttempt()

	ev := queue.Event{Name: "sync_send", Handle: func(state any) {
		state.(*Session).handleSyncSend(timeoutMs)
	}}
	if !s.eq.SendPriority(ev, 0) {
		s.status.Store(int32(StatusStop))
		s.observer.ObserveQueueFullDrop()
		return ErrQueueFull
	}
	return nil
}

func (s *Session) handleSyncSend(timeoutMs uint32) {
	req := handshake.BuildSyncReq(s.sndNext, uint16(s.mfs))
	s.reqFSN = s.sndNext
	s.sndNext++

	wireBytes := s.transmit(req)
	s.inFlight.Append(req.FSN, wireBytes)

	d := time.Duration(timeoutMs) * time.Millisecond
	s.syncTimer.Start(d, func() {
		s.eq.SendPriority(queue.Event{Name: "sync_timeout", Handle: func(state any) {
			state.(*Session).handleSyncTimeout()
		}}, 0)
	})
}

func (s *Session) handleSyncTimeout() {
	if Status(s.status.Load()) != StatusHandshake {
		return
	}
	s.observer.ObserveHandshakeTimeout()
	s.completeOpen(handshake.OpenErrRspTimeout)
}

// completeOpen delivers the Open callback exactly once. Status alone
// can't gate this: in a simultaneous open, receiving the peer's SYNC_REQ
// and receiving the SYNC_ACK reply to this side's own SYNC_REQ can both
// complete the handshake, and either one may be the one to flip status
// to DONE first, racing the other's attempt to detect "was HANDSHAKE".
func (s *Session) completeOpen(st handshake.OpenStatus) {
	if s.openSettled {
		return
	}
	s.openSettled = true
	if s.openedCB != nil {
		s.openedCB(st)
	}
}

// Send segments payload into frames and enqueues one atomic send-batch
// event. Requires the session to be DONE and len(payload) to fit within
// MAL.
func (s *Session) Send(payload []byte) error {
	if Status(s.status.Load()) != StatusDone {
		return ErrNotOpen
	}
	if len(payload) == 0 || uint32(len(payload)) > s.mal {
		return ErrMessageTooLarge
	}

	maxPayload := int(s.mfs) - constants.HeaderTrailerSize
	list, err := segmenter.Segment(payload, int(s.mal), maxPayload)
	if err != nil {
		return WrapError("Send", err)
	}

	sendListBlk, err := s.pools.SendList.Acquire()
	if err != nil {
		s.observer.ObservePoolExhaustion()
		return WrapError("Send", ErrPoolExhausted)
	}

	frameBlks := make([][]byte, 0, len(list.Frames))
	for range list.Frames {
		blk, err := s.pools.Frame.Acquire()
		if err != nil {
			for _, b := range frameBlks {
				s.pools.Frame.Release(b)
			}
			s.pools.SendList.Release(sendListBlk)
			s.observer.ObservePoolExhaustion()
			return WrapError("Send", ErrPoolExhausted)
		}
		frameBlks = append(frameBlks, blk)
	}

	release := func() {
		for _, b := range frameBlks {
			s.pools.Frame.Release(b)
		}
		s.pools.SendList.Release(sendListBlk)
	}

	ev := queue.Event{Name: "send_batch", Handle: func(state any) {
		state.(*Session).handleSendBatch(list)
		release()
	}}
	if !s.eq.Send(ev, 0) {
		release()
		s.observer.ObserveQueueFullDrop()
		return ErrQueueFull
	}
	return nil
}

func (s *Session) handleSendBatch(list *segmenter.SendList) {
	if Status(s.status.Load()) != StatusDone {
		return
	}
	for _, f := range list.Frames {
		f.FSN = s.sndNext
		s.sndNext++
		wireBytes := s.transmit(f)
		s.inFlight.Append(f.FSN, wireBytes)
	}
}

// Input copies slice into a pooled MTU buffer and enqueues it classified
// by peeking at magic+ctrl: ACK/NACK/SYNC go to the head priority lane,
// everything else (a DATA frame's first slice, or a bare continuation
// slice of one already in progress) goes to the normal tail lane.
// Requires the session to not be STOP.
func (s *Session) Input(slice []byte) error {
	if Status(s.status.Load()) == StatusStop {
		return ErrSessionStopped
	}

	blk, err := s.pools.MTU.Acquire()
	if err != nil {
		s.observer.ObservePoolExhaustion()
		return WrapError("Input", ErrPoolExhausted)
	}
	n := copy(blk, slice)
	buf := blk[:n]

	priority := isControlSlice(buf)
	ev := queue.Event{Name: "input", Handle: func(state any) {
		sess := state.(*Session)
		if priority {
			sess.handleControlInput(buf)
		} else {
			sess.handleDataInput(buf)
		}
		sess.pools.MTU.Release(blk)
	}}

	var enqueued bool
	if priority {
		enqueued = s.eq.SendPriority(ev, 0)
	} else {
		enqueued = s.eq.Send(ev, 0)
	}
	if !enqueued {
		s.pools.MTU.Release(blk)
		s.observer.ObserveQueueFullDrop()
		return ErrQueueFull
	}
	return nil
}

// isControlSlice reports whether buf looks like an ACK/NACK/SYNC_REQ/
// SYNC_ACK frame. ACK, NACK, and SYNC frames all fit within a single MTU
// slice (their payloads are at most 2 bytes), so this classification
// never needs to account for multi-slice control frames.
func isControlSlice(buf []byte) bool {
	magicOK, ctrl, _, _, ok := wire.PeekHeader(buf)
	if !ok || !magicOK {
		return false
	}
	switch ctrl {
	case constants.CtrlDataAck, constants.CtrlDataNack, constants.CtrlSyncReq, constants.CtrlSyncAck:
		return true
	default:
		return false
	}
}

func (s *Session) handleDataInput(slice []byte) {
	if magicOK, ctrl, _, _, ok := wire.PeekHeader(slice); ok && magicOK && wire.IsDataCtrl(ctrl) {
		s.observer.ObserveReceive(ctrl)
	}
	if s.reasm == nil {
		return
	}
	s.reasm.ProcessSlice(slice)
}

func (s *Session) handleControlInput(slice []byte) {
	magicOK, ctrl, _, _, ok := wire.PeekHeader(slice)
	if !ok || !magicOK {
		return
	}
	s.observer.ObserveReceive(ctrl)

	switch ctrl {
	case constants.CtrlDataAck:
		s.handleAck(slice)
	case constants.CtrlDataNack:
		s.handleNack(slice)
	case constants.CtrlSyncReq:
		s.handleSyncReqRx(slice)
	case constants.CtrlSyncAck:
		s.handleSyncAckRx(slice)
	}
}

func (s *Session) handleAck(slice []byte) {
	f, err := wire.Decode(slice, s.adp.CRC)
	if err != nil || len(f.Payload) < 1 {
		s.observer.ObserveProtocolDrop()
		return
	}
	freed := s.inFlight.OnAck(f.Payload[0])
	if freed > 0 {
		s.observer.ObserveAck(freed)
	}
}

func (s *Session) handleNack(slice []byte) {
	f, err := wire.Decode(slice, s.adp.CRC)
	if err != nil || len(f.Payload) < 1 {
		s.observer.ObserveProtocolDrop()
		return
	}
	resend := s.inFlight.OnNack(f.Payload[0])
	for _, wireBytes := range resend {
		s.retransmitWire(wireBytes)
	}
	if len(resend) > 0 {
		s.observer.ObserveRetransmit(len(resend))
	}
}

// handleSyncReqRx implements the responder side of the handshake: the
// peer's advertised MFS sizes this side's receive frame buffer, so a
// peer with a smaller MFS never causes an over-large allocation. In a
// simultaneous open this fires before this side's own SYNC_ACK ever
// arrives (the ACK is causally downstream of the same SYNC_REQ exchange),
// so it is what completes this side's Open, not handleSyncAckRx.
func (s *Session) handleSyncReqRx(slice []byte) {
	f, err := wire.Decode(slice, s.adp.CRC)
	if err != nil {
		s.observer.ObserveProtocolDrop()
		return
	}
	peerMFS, err := handshake.ParsePeerMFS(f)
	if err != nil {
		s.observer.ObserveProtocolDrop()
		return
	}

	s.peerMFS = peerMFS
	rcvNext := f.FSN + 1
	s.reasm = reassembler.New(uint32(peerMFS), s.mal, rcvNext, s.adp.CRC, s.reassemblerCallbacks())

	ack := handshake.BuildSyncAck(f.FSN)
	s.transmit(ack)
	s.status.Store(int32(StatusDone))
	s.completeOpen(handshake.OpenOK)
}

// handleSyncAckRx implements the opener side: stop the timeout, clear
// the acknowledged SYNC_REQ from the in-flight list, and report success.
// The opener never learns the peer's MFS from a SYNC_ACK (its payload is
// empty per the wire format), so its own receive buffer is sized to its
// own configured MFS.
func (s *Session) handleSyncAckRx(slice []byte) {
	f, err := wire.Decode(slice, s.adp.CRC)
	if err != nil {
		s.observer.ObserveProtocolDrop()
		return
	}
	if !handshake.IsSyncAckFor(f, s.reqFSN) {
		return
	}

	s.syncTimer.Stop()
	s.inFlight.Clear()
	if s.reasm == nil {
		s.reasm = reassembler.New(s.mfs, s.mal, 0, s.adp.CRC, s.reassemblerCallbacks())
	}

	s.status.Store(int32(StatusDone))
	s.completeOpen(handshake.OpenOK)
}

func (s *Session) reassemblerCallbacks() reassembler.Callbacks {
	return reassembler.Callbacks{
		EmitAck:  func(rcvNext uint8) { s.transmit(buildAck(rcvNext)) },
		EmitNack: func(rcvNext uint8) { s.transmit(buildNack(rcvNext)) },
		NotifyApp: func(msg []byte) {
			if s.iface.DataListener != nil {
				s.iface.DataListener(msg)
			}
		},
	}
}

func buildAck(fsnVal uint8) *wire.Frame {
	return &wire.Frame{Ctrl: constants.CtrlDataAck, FSN: fsnVal, Payload: []byte{fsnVal}}
}

func buildNack(fsnVal uint8) *wire.Frame {
	return &wire.Frame{Ctrl: constants.CtrlDataNack, FSN: fsnVal, Payload: []byte{fsnVal}}
}

// transmit encodes f, slices it into MTU-sized chunks, and pushes each
// chunk through the adapter's output callback, returning the full
// encoded frame so the caller can append it to the in-flight list.
func (s *Session) transmit(f *wire.Frame) []byte {
	buf := wire.Encode(f, s.adp.CRC)
	s.observer.ObserveSend(f.Ctrl, len(f.Payload))
	s.retransmitWire(buf)
	return buf
}

// retransmitWire re-emits already-encoded wire bytes verbatim (FSN is
// never reassigned on retransmission), slicing into MTU-sized chunks.
func (s *Session) retransmitWire(buf []byte) {
	if s.iface.Output == nil {
		return
	}
	mtu := int(s.mtu)
	for off := 0; off < len(buf); off += mtu {
		end := off + mtu
		if end > len(buf) {
			end = len(buf)
		}
		if err := s.iface.Output(buf[off:end]); err != nil {
			s.logger.Warn("bcp: adapter output failed", "error", err)
			return
		}
	}
}

// Destroy posts a terminating event to the worker, polls for it to be
// observed up to DestroyDrainTimeout, and then releases the session's
// resources. Safe to call more than once; only the first call has
// effect.
func (s *Session) Destroy() {
	s.closeOnce.Do(func() {
		s.status.Store(int32(StatusStop))
		s.eq.SendPriority(queue.Event{Name: eventExit, Handle: func(state any) {
			state.(*Session).exited.Store(true)
		}}, 0)

		deadline := time.Now().Add(constants.DestroyDrainTimeout)
		for !s.exited.Load() && time.Now().Before(deadline) {
			s.adp.Sleeper.Sleep(constants.DestroyPollInterval())
		}
		if !s.exited.Load() {
			s.logger.Warn("bcp: destroy timed out waiting for worker to drain")
		}

		s.syncTimer.Stop()
		s.eq.Close()
		s.metrics.Stop()
	})
}
