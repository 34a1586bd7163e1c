package pv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

// fakeTransport is a hand-driven Transport double: tests call Arm/Push to
// simulate the underlying channel delivering type information and data.
type fakeTransport struct {
	armed   bool
	dt      xtc.DataType
	nElem   int
	rank    int
	armErr  error
	fetchTS xtc.TimeStamp
	payload []byte
	shape   [xtc.MaxRank]uint32
	truncate bool
	fetchErr error
	tsErr    error

	configured   string
	configureErr error
}

func (f *fakeTransport) TryGetParams() (xtc.DataType, int, int, bool, error) {
	if f.armErr != nil {
		return 0, 0, 0, false, f.armErr
	}
	if !f.armed {
		return 0, 0, 0, false, nil
	}
	return f.dt, f.nElem, f.rank, true, nil
}

func (f *fakeTransport) Timestamp() (xtc.TimeStamp, error) {
	return f.fetchTS, f.tsErr
}

func (f *fakeTransport) Fetch(buf []byte) ([xtc.MaxRank]uint32, int, bool, error) {
	if f.fetchErr != nil {
		return [xtc.MaxRank]uint32{}, 0, false, f.fetchErr
	}
	n := copy(buf, f.payload)
	return f.shape, n, f.truncate, nil
}

func (f *fakeTransport) Configure(request string) error {
	f.configured = request
	return f.configureErr
}

func testSpec(t *testing.T) Spec {
	t.Helper()
	s, err := ParseSpec("XPP:GON:01", "det", 0)
	require.NoError(t, err)
	return s
}

func TestMonitor_GetParams_SynchronousArm(t *testing.T) {
	ft := &fakeTransport{armed: true, dt: xtc.Float64, nElem: 4, rank: 1}
	m := NewMonitor(0, testSpec(t), ft, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	field, dt, rank, req, err := m.GetParams(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, "value", field)
	assert.Equal(t, xtc.Float64, dt)
	assert.Equal(t, 1, rank)
	assert.Equal(t, "field(value,timeStamp,dimension)", req)
	assert.Equal(t, Ready, m.State())
}

func TestMonitor_GetParams_AsyncArmViaUpdated(t *testing.T) {
	ft := &fakeTransport{}
	m := NewMonitor(0, testSpec(t), ft, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _, _, _, err := m.GetParams(ctx, 4)
		assert.NoError(t, err)
	}()

	time.Sleep(20 * time.Millisecond)
	ft.armed = true
	ft.dt = xtc.Uint32
	ft.nElem = 1
	ft.rank = 0
	m.Updated()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("GetParams never returned after async arm")
	}
	assert.Equal(t, Ready, m.State())
}

func TestMonitor_GetParams_TimesOut(t *testing.T) {
	ft := &fakeTransport{}
	m := NewMonitor(0, testSpec(t), ft, nil, nil)
	m.paramWaitOverrideForTest(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, _, _, err := m.GetParams(ctx, 4)
	assert.Error(t, err)
	assert.Equal(t, NotReady, m.State())
}

func TestMonitor_UpdatedEnqueuesDatagram(t *testing.T) {
	ft := &fakeTransport{
		armed: true, dt: xtc.Uint8, nElem: 3, rank: 1,
		fetchTS: xtc.TimeStamp{Seconds: 1}, payload: []byte{1, 2, 3},
		shape: [xtc.MaxRank]uint32{3},
	}
	m := NewMonitor(0, testSpec(t), ft, nil, nil)
	ctx := context.Background()
	_, _, _, _, err := m.GetParams(ctx, 2)
	require.NoError(t, err)

	m.Updated()

	dg, ok := m.Peek()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, dg.Payload)
	assert.False(t, dg.Truncated)
	assert.Equal(t, uint64(1), m.Stats().Updates)
}

func TestMonitor_UpdatedFreelistExhaustionCountsMissed(t *testing.T) {
	ft := &fakeTransport{armed: true, dt: xtc.Uint8, nElem: 1, rank: 0, payload: []byte{9}}
	m := NewMonitor(0, testSpec(t), ft, nil, nil)
	_, _, _, _, err := m.GetParams(context.Background(), 1)
	require.NoError(t, err)

	m.Updated() // consumes the one freelist slot
	m.Updated() // freelist now empty

	assert.Equal(t, uint64(1), m.Stats().Missed)
}

func TestMonitor_Timeout(t *testing.T) {
	ft := &fakeTransport{armed: true, dt: xtc.Uint8, nElem: 1, rank: 0, payload: []byte{1}}
	m := NewMonitor(0, testSpec(t), ft, nil, nil)
	_, _, _, _, err := m.GetParams(context.Background(), 2)
	require.NoError(t, err)

	ft.fetchTS = xtc.TimeStamp{Seconds: 5}
	m.Updated()

	assert.False(t, m.Timeout(xtc.TimeStamp{Seconds: 4}), "watermark before the queued PV must not discard it")
	assert.True(t, m.Timeout(xtc.TimeStamp{Seconds: 5}), "watermark at or after the queued PV must discard it")
	_, ok := m.Peek()
	assert.False(t, ok)
}

func TestMonitor_OnDisconnect_NotifiesWithoutChangingState(t *testing.T) {
	ft := &fakeTransport{armed: true, dt: xtc.Uint8, nElem: 1, rank: 0}
	notify := make(chan Notification, 1)
	m := NewMonitor(0, testSpec(t), ft, notify, nil)
	_, _, _, _, err := m.GetParams(context.Background(), 1)
	require.NoError(t, err)

	m.OnDisconnect()

	select {
	case n := <-notify:
		assert.Equal(t, LevelWarn, n.Level)
	default:
		t.Fatal("expected a disconnect notification")
	}
	assert.Equal(t, Ready, m.State())
}

func TestMonitor_ShutdownResetsForReconfigure(t *testing.T) {
	ft := &fakeTransport{armed: true, dt: xtc.Uint8, nElem: 1, rank: 0, payload: []byte{1}}
	m := NewMonitor(0, testSpec(t), ft, nil, nil)
	_, _, _, _, err := m.GetParams(context.Background(), 1)
	require.NoError(t, err)
	m.Updated()

	m.Shutdown()
	assert.Equal(t, NotReady, m.State())
	assert.Equal(t, uint64(0), m.Stats().Updates)

	ft.armed = false
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _, _, err := m.GetParams(context.Background(), 1)
		assert.NoError(t, err)
	}()
	time.Sleep(10 * time.Millisecond)
	ft.armed = true
	m.Updated()
	<-done
	assert.Equal(t, Ready, m.State())
}

func TestMonitor_TryArm_HardFailureNotifies(t *testing.T) {
	ft := &fakeTransport{armErr: errors.New("channel disconnected")}
	notify := make(chan Notification, 1)
	m := NewMonitor(0, testSpec(t), ft, notify, nil)

	m.Updated()

	select {
	case n := <-notify:
		assert.Contains(t, n.Message, "channel disconnected")
	default:
		t.Fatal("expected a probe-failure notification")
	}
	assert.Equal(t, NotReady, m.State())
}
