package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsNonPowerOfTwo(t *testing.T) {
	_, err := New(3, 64)
	assert.Error(t, err)
}

func TestPool_AllocateExhaustionNeverBlocks(t *testing.T) {
	p, err := New(2, 16)
	require.NoError(t, err)

	_, _, ok := p.Allocate()
	require.True(t, ok)
	_, _, ok = p.Allocate()
	require.True(t, ok)

	_, _, ok = p.Allocate()
	assert.False(t, ok, "a third allocate on a 2-buffer pool must report exhaustion, not block")
}

func TestPool_FreeConservation(t *testing.T) {
	p, err := New(4, 16)
	require.NoError(t, err)

	idx, _, ok := p.Allocate()
	require.True(t, ok)
	assert.Equal(t, 3, p.Available())

	p.Free(idx)
	assert.Equal(t, 4, p.Available())
}

func TestTransitionPool_NilAfterShutdown(t *testing.T) {
	tp := NewTransitionPool(2, 128)
	assert.NotNil(t, tp.Buffer(0))

	tp.Shutdown()
	assert.Nil(t, tp.Buffer(0))

	tp.Reopen(128)
	assert.NotNil(t, tp.Buffer(0))
}
