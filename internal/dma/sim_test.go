package dma

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimDriver_ReadBulkTimesOutWhenEmpty(t *testing.T) {
	d, err := NewSimDriver(2, 16, 20)
	require.NoError(t, err)
	defer d.Close()

	start := time.Now()
	comps, err := d.ReadBulk(4)
	require.NoError(t, err)
	assert.Nil(t, comps)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestSimDriver_PushWakesReadBulk(t *testing.T) {
	d, err := NewSimDriver(2, 16, 2000)
	require.NoError(t, err)
	defer d.Close()

	copy(d.Buffer(0), []byte{1, 2, 3})
	done := make(chan []Completion, 1)
	go func() {
		comps, _ := d.ReadBulk(4)
		done <- comps
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, d.Push(Completion{BufferIndex: 0, RetLen: 3, Data: d.Buffer(0)}))

	select {
	case comps := <-done:
		require.Len(t, comps, 1)
		assert.Equal(t, uint32(0), comps[0].BufferIndex)
	case <-time.After(time.Second):
		t.Fatal("ReadBulk never woke up after Push")
	}
}
