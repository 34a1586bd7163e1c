package ringqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PushPopFIFO(t *testing.T) {
	q := New[int](4)

	for i := 0; i < 4; i++ {
		require.True(t, q.Push(i))
	}
	assert.False(t, q.Push(4), "push onto a full queue must drop, not evict")
	assert.Equal(t, 4, q.Len())

	for i := 0; i < 4; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueue_PeekDoesNotConsume(t *testing.T) {
	q := New[string](2)
	q.Push("a")
	q.Push("b")

	v, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	// Peek again: head unchanged.
	v, ok = q.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = q.Peek()
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestQueue_CloseStillDrainable(t *testing.T) {
	q := New[int](4)
	q.Push(1)
	q.Push(2)
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Push(3), "closed queue must refuse new pushes")

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_Reopen(t *testing.T) {
	q := New[int](2)
	q.Push(1)
	q.Close()
	q.Reopen()

	assert.False(t, q.Closed())
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.Push(7))
}

func TestQueue_WraparoundMetrics(t *testing.T) {
	q := New[int](2)
	q.Push(1)
	q.Pop()
	q.Push(2)
	q.Push(3)
	assert.False(t, q.Push(4))

	m := q.GetMetrics()
	assert.Equal(t, uint64(3), m.Pushed)
	assert.Equal(t, uint64(1), m.Dropped)
	assert.Equal(t, uint64(1), m.Popped)
}
