package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCrit struct {
	mu sync.Mutex
}

func (c *fakeCrit) Enter() { c.mu.Lock() }
func (c *fakeCrit) Leave() { c.mu.Unlock() }

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New(&fakeCrit{}, 32, 2)
	require.Equal(t, 2, p.Len())

	b1, err := p.Acquire()
	require.NoError(t, err)
	assert.Len(t, b1, 32)
	assert.Equal(t, 1, p.Len())

	b2, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len())

	_, err = p.Acquire()
	assert.ErrorIs(t, err, ErrExhausted)

	p.Release(b1)
	assert.Equal(t, 1, p.Len())
	p.Release(b2)
	assert.Equal(t, 2, p.Len())
}

func TestAcquireIsLIFO(t *testing.T) {
	p := New(&fakeCrit{}, 8, 3)
	a, _ := p.Acquire()
	b, _ := p.Acquire()
	p.Release(a)
	p.Release(b)

	got, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, &got[0], &b[0])
}

func TestNewSetSizing(t *testing.T) {
	s := NewSet(&fakeCrit{}, 40, 2048, 20, 2, 8, 4, 16)
	assert.Equal(t, 40+8, s.Frame.BlockSize())
	assert.Equal(t, (2048/40+1)*4, s.Frame.Len())
	assert.Equal(t, 20+4, s.MTU.BlockSize())
	assert.Equal(t, 2*2, s.MTU.Len())
	assert.Equal(t, 16, s.SendList.BlockSize())
	assert.Equal(t, 3, s.SendList.Len())
}

func TestPoolConcurrentAccessSerializedByCritical(t *testing.T) {
	p := New(&fakeCrit{}, 16, 50)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blk, err := p.Acquire()
			if err == nil {
				p.Release(blk)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, p.Len())
}
