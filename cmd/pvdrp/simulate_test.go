package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadorlhiac/pvdrp/internal/dma"
	"github.com/gadorlhiac/pvdrp/internal/pv"
	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

func TestSimTransport_TryGetParams_UnarmedUntilFirstTick(t *testing.T) {
	tr := newSimTransport(4, xtc.Float64, 1)

	_, _, _, ready, err := tr.TryGetParams()
	require.NoError(t, err)
	assert.False(t, ready, "must report not-ready before any tick")

	spec, err := pv.ParseSpec("XPP:GON:01", "det", 0)
	require.NoError(t, err)
	mon := pv.NewMonitor(0, spec, tr, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.run(ctx, mon, 5*time.Millisecond, 0)

	dt, nElem, rank, ready, err := waitReady(t, tr)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, xtc.Float64, dt)
	assert.Equal(t, 4, nElem)
	assert.Equal(t, 1, rank)
}

func waitReady(t *testing.T, tr *simTransport) (xtc.DataType, int, int, bool, error) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("transport never armed")
		default:
		}
		dt, n, rank, ready, err := tr.TryGetParams()
		if ready || err != nil {
			return dt, n, rank, ready, err
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSimTransport_FetchReportsTruncation(t *testing.T) {
	tr := newSimTransport(8, xtc.Float64, 1)
	spec, err := pv.ParseSpec("XPP:GON:01", "det", 0)
	require.NoError(t, err)
	mon := pv.NewMonitor(0, spec, tr, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.run(ctx, mon, time.Millisecond, 0)

	_, _, _, err = waitReady(t, tr)
	require.NoError(t, err)

	small := make([]byte, 4)
	_, n, truncated, err := tr.Fetch(small)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, truncated)
}

func TestSimDMAProducer_PushesCompletions(t *testing.T) {
	driver, err := dma.NewSimDriver(4, 4096, 250)
	require.NoError(t, err)
	defer driver.Close()

	producer := newSimDMAProducer(driver, 4, 4096)
	ctx, cancel := context.WithCancel(context.Background())
	go producer.run(ctx, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.Greater(t, producer.evtCounter, uint64(0), "producer must have pushed at least one completion")
}
