package xtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXtc_AllocOverflow(t *testing.T) {
	x := NewXtc(make([]byte, 8))
	_, err := x.Alloc(4)
	require.NoError(t, err)
	_, err = x.Alloc(8)
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, 4, x.Len(), "a failed alloc must not reserve partial space")
}

func TestWriteRawArray_RoundTrip(t *testing.T) {
	x := NewXtc(make([]byte, 256))
	shape := [MaxRank]uint32{3, 0, 0, 0, 0}
	payload := []byte{1, 2, 3}

	require.NoError(t, WriteRawArray(x, shape, payload))
	assert.Equal(t, MaxRank*4+len(payload), x.Len())

	gotShape, gotPayload, err := ReadRawArray(x.Payload())
	require.NoError(t, err)
	assert.Equal(t, shape, gotShape)
	assert.Equal(t, payload, gotPayload)
}

func TestWriteInfoRecord_RoundTrip(t *testing.T) {
	x := NewXtc(make([]byte, 256))
	require.NoError(t, WriteInfoRecord(x, "sig,aux", "XPP:GON:01\nXPP:GON:02"))

	keys, names, err := ReadInfoRecord(x.Payload())
	require.NoError(t, err)
	assert.Equal(t, "sig,aux", keys)
	assert.Equal(t, "XPP:GON:01\nXPP:GON:02", names)
}

func TestDamage_ComposesIndependentBits(t *testing.T) {
	var d Damage
	d.Increase(DamageMissingData)
	d.Increase(DamageTimedOut)
	assert.True(t, d.Has(DamageMissingData))
	assert.True(t, d.Has(DamageTimedOut))
	assert.False(t, d.Has(DamageTruncated))
	assert.Equal(t, "MissingData|TimedOut", d.String())
}

func TestTimeStamp_Ordering(t *testing.T) {
	a := TimeStamp{Seconds: 10, Nanoseconds: 500}
	b := TimeStamp{Seconds: 10, Nanoseconds: 1000}
	assert.True(t, b.After(a))
	assert.True(t, a.Before(b))
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(TimeStamp{Seconds: 10, Nanoseconds: 500}))
}
