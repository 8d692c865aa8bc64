// Package pool implements fixed-block memory pools: a fixed set of N
// equally-sized buffers, each allocated up front, handed out and reclaimed via a LIFO free
// list. Generalizes the size-bucketed sync.Pool idea used elsewhere in
// the stack into a bounded, fixed-count pool so a session has a hard
// ceiling on outstanding buffers instead of an unbounded growth path.
package pool

import (
	"errors"

	"github.com/realkv/lab-bcp/internal/adapter"
	"github.com/realkv/lab-bcp/internal/constants"
)

// ErrExhausted is returned by Acquire when every block is checked out.
// Exhaustion is recoverable: the caller's send or input operation fails
// and the caller decides whether to retry.
var ErrExhausted = errors.New("pool: exhausted")

// Pool is a fixed-block allocator of blockSize-byte buffers, count
// blocks total. All operations run inside the supplied Critical section,
// matching the protocol's rule that pool mutation is always guarded.
type Pool struct {
	crit      adapter.Critical
	blockSize int
	free      [][]byte
}

// New allocates count blocks of blockSize bytes up front and returns a
// Pool ready to Acquire from. crit guards free-list mutation.
func New(crit adapter.Critical, blockSize, count int) *Pool {
	p := &Pool{
		crit:      crit,
		blockSize: blockSize,
		free:      make([][]byte, 0, count),
	}
	for i := 0; i < count; i++ {
		p.free = append(p.free, make([]byte, blockSize))
	}
	return p
}

// BlockSize returns the fixed size of every block in the pool.
func (p *Pool) BlockSize() int { return p.blockSize }

// Len reports the number of free blocks currently available.
func (p *Pool) Len() int {
	p.crit.Enter()
	defer p.crit.Leave()
	return len(p.free)
}

// Acquire pops one block off the free list, or ErrExhausted if none
// remain. The returned slice is full length (blockSize) and its
// contents are not zeroed between uses.
func (p *Pool) Acquire() ([]byte, error) {
	p.crit.Enter()
	defer p.crit.Leave()
	n := len(p.free)
	if n == 0 {
		return nil, ErrExhausted
	}
	blk := p.free[n-1]
	p.free = p.free[:n-1]
	return blk, nil
}

// Release returns a block to the free list. The caller must not use the
// slice afterward.
func (p *Pool) Release(blk []byte) {
	p.crit.Enter()
	defer p.crit.Leave()
	p.free = append(p.free, blk[:p.blockSize])
}

// Set bundles the three session-scoped pools (frame, MTU, send-list),
// sized per the engine's create-time formulas.
type Set struct {
	Frame    *Pool
	MTU      *Pool
	SendList *Pool
}

// NewSet builds the frame/MTU/send-list pools for a session configured
// with the given MFS, MAL, MTU, and MFS-scale.
func NewSet(crit adapter.Critical, mfs, mal, mtu uint32, mfsScale uint8, frameRecordOverhead, sliceRecordOverhead, sendListRecordSize int) *Set {
	return &Set{
		Frame:    New(crit, int(mfs)+frameRecordOverhead, constants.FramePoolCount(mal, mfs)),
		MTU:      New(crit, int(mtu)+sliceRecordOverhead, constants.MTUPoolCount(mfsScale)),
		SendList: New(crit, sendListRecordSize, constants.SendListPoolCount),
	}
}
